/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldcontext

import (
	"github.com/piprate/json-gold/ld"
)

// DocumentLoader is the resolver hook handed to the canonicalization layer.
// Whenever a @context URL must be dereferenced during JSON-LD processing it
// consults the context cache before any network fetch. It holds no state of
// its own beyond the cache handle.
type DocumentLoader struct {
	cache *Cache
}

// NewDocumentLoader returns a document loader backed by the given context cache.
func NewDocumentLoader(cache *Cache) *DocumentLoader {
	return &DocumentLoader{cache: cache}
}

// LoadDocument resolves the given URL via the context cache.
// It implements the json-gold ld.DocumentLoader interface.
func (l *DocumentLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return l.cache.GetOrFetch(u)
}
