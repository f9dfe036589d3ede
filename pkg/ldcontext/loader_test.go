/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldcontext_test

import (
	"testing"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/badgevc/pkg/internal/testutil"
	"github.com/trustbloc/badgevc/pkg/ldcontext"
)

func TestLoadDocument(t *testing.T) {
	server := testutil.NewContextServer()
	cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

	var loader ld.DocumentLoader = ldcontext.NewDocumentLoader(cache)

	t.Run("Success - delegates to the context cache", func(t *testing.T) {
		doc, err := loader.LoadDocument(ldcontext.ContextCredentialsV2)
		require.NoError(t, err)
		require.Equal(t, ldcontext.ContextCredentialsV2, doc.DocumentURL)

		_, err = loader.LoadDocument(ldcontext.ContextCredentialsV2)
		require.NoError(t, err)
		require.Equal(t, 1, server.FetchCount(ldcontext.ContextCredentialsV2))
	})
	t.Run("Failure - fetch error passes through", func(t *testing.T) {
		doc, err := loader.LoadDocument("https://example.com/missing.json")
		require.Error(t, err)
		require.Nil(t, doc)
	})
}
