/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package testutil provides an in-memory stand-in for the remote context hosts,
// serving minimal context documents that define the terms used in credential
// documents and proof options.
package testutil

import (
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
)

// Minimal context documents. They define only the terms the engine emits, which is
// enough for canonicalization to be stable and for tampering with any signed field
// to change the canonical form.
const (
	credentialsContextDoc = `{
  "@context": {
    "@version": 1.1,
    "@protected": true,
    "id": "@id",
    "type": "@type",
    "cred": "https://www.w3.org/2018/credentials#",
    "sec": "https://w3id.org/security#",
    "xsd": "http://www.w3.org/2001/XMLSchema#",
    "VerifiableCredential": "cred:VerifiableCredential",
    "issuer": {"@id": "cred:issuer", "@type": "@id"},
    "validFrom": {"@id": "cred:validFrom", "@type": "xsd:dateTime"},
    "validUntil": {"@id": "cred:validUntil", "@type": "xsd:dateTime"},
    "credentialSubject": {"@id": "cred:credentialSubject", "@type": "@id"},
    "evidence": {"@id": "cred:evidence", "@type": "@id"},
    "proof": {"@id": "sec:proof", "@type": "@id", "@container": "@graph"}
  }
}`

	openBadgesContextDoc = `{
  "@context": {
    "@version": 1.1,
    "@protected": true,
    "id": "@id",
    "type": "@type",
    "ob": "https://purl.imsglobal.org/spec/vc/ob/vocab.html#",
    "OpenBadgeCredential": "ob:OpenBadgeCredential",
    "Achievement": "ob:Achievement",
    "AchievementSubject": "ob:AchievementSubject",
    "Profile": "ob:Profile",
    "IdentityObject": "ob:IdentityObject",
    "Evidence": "ob:Evidence",
    "achievement": {"@id": "ob:achievement", "@type": "@id"},
    "identifier": {"@id": "ob:identifier", "@type": "@id"},
    "identityType": "ob:identityType",
    "identityHash": "ob:identityHash",
    "narrative": "ob:narrative",
    "name": "https://schema.org/name",
    "image": {"@id": "https://schema.org/image", "@type": "@id"}
  }
}`

	extensionsContextDoc = `{"@context": {"@version": 1.1}}`

	securityContextDoc = `{
  "@context": {
    "@version": 1.1,
    "id": "@id",
    "type": "@type",
    "sec": "https://w3id.org/security#",
    "xsd": "http://www.w3.org/2001/XMLSchema#",
    "Ed25519Signature2020": "sec:Ed25519Signature2020",
    "assertionMethod": {"@id": "sec:assertionMethod", "@type": "@id"},
    "created": {"@id": "http://purl.org/dc/terms/created", "@type": "xsd:dateTime"},
    "verificationMethod": {"@id": "sec:verificationMethod", "@type": "@id"},
    "proofPurpose": {"@id": "sec:proofPurpose", "@type": "@vocab"},
    "proofValue": "sec:proofValue"
  }
}`
)

// ContextServer is a fake HTTP client serving context documents from memory and
// counting how often each URL is actually fetched.
type ContextServer struct {
	mutex       sync.Mutex
	documents   map[string]string
	fetchCounts map[string]int
}

// NewContextServer returns a context server pre-loaded with test doubles for the
// well-known credential, Open Badges and security suite contexts.
func NewContextServer() *ContextServer {
	return &ContextServer{
		documents: map[string]string{
			"https://www.w3.org/ns/credentials/v2":                       credentialsContextDoc,
			"https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json": openBadgesContextDoc,
			"https://purl.imsglobal.org/spec/ob/v3p0/extensions.json":    extensionsContextDoc,
			"https://w3id.org/security/suites/ed25519-2020/v1":           securityContextDoc,
		},
		fetchCounts: make(map[string]int),
	}
}

// Add registers (or replaces) the document served for the given URL.
func (c *ContextServer) Add(url, document string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.documents[url] = document
}

// FetchCount returns how many times the given URL was fetched.
func (c *ContextServer) FetchCount(url string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.fetchCounts[url]
}

// TotalFetches returns the total number of fetches across all URLs.
func (c *ContextServer) TotalFetches() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := 0

	for _, count := range c.fetchCounts {
		total += count
	}

	return total
}

// Do implements the HTTP client seam of the context cache.
// Unknown URLs get a 404 response.
func (c *ContextServer) Do(req *http.Request) (*http.Response, error) {
	c.mutex.Lock()

	u := req.URL.String()
	c.fetchCounts[u]++
	document, ok := c.documents[u]

	c.mutex.Unlock()

	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       ioutil.NopCloser(strings.NewReader("not found")),
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       ioutil.NopCloser(strings.NewReader(document)),
	}, nil
}
