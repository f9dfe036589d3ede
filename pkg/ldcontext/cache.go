/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldcontext

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"
	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

const logModuleName = "badgevc-ldcontext"

var logger = log.New(logModuleName)

// Well-known context URLs that are pre-warmed at process start.
const (
	// ContextCredentialsV2 is the W3C Verifiable Credentials v2 context.
	ContextCredentialsV2 = "https://www.w3.org/ns/credentials/v2"
	// ContextOpenBadgesV3 is the 1EdTech Open Badges v3 context.
	ContextOpenBadgesV3 = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"
	// ContextOpenBadgesExtensions is the 1EdTech Open Badges v3 extensions context.
	ContextOpenBadgesExtensions = "https://purl.imsglobal.org/spec/ob/v3p0/extensions.json"
)

// WellKnownContexts is the default pre-warm list.
var WellKnownContexts = []string{ //nolint:gochecknoglobals
	ContextCredentialsV2,
	ContextOpenBadgesV3,
	ContextOpenBadgesExtensions,
}

const (
	defaultDocumentCacheSize = 100
	defaultResolvedCacheSize = 1000
	defaultFetchTimeout      = 30 * time.Second

	prewarmRetryBackoff = time.Second
	prewarmMaxRetries   = 2
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type options struct {
	httpClient        httpClient
	documentCacheSize int
	resolvedCacheSize int
}

// Option configures the context cache.
type Option func(opts *options)

// WithHTTPClient sets the HTTP client used to fetch remote context documents.
func WithHTTPClient(client httpClient) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithDocumentCacheSize sets the capacity of the raw context document cache.
func WithDocumentCacheSize(size int) Option {
	return func(opts *options) {
		opts.documentCacheSize = size
	}
}

// WithResolvedCacheSize sets the capacity of the resolved context cache.
func WithResolvedCacheSize(size int) Option {
	return func(opts *options) {
		opts.resolvedCacheSize = size
	}
}

// Cache fetches, parses and caches remote JSON-LD context documents.
// Raw documents and resolved (merged) context sets are kept in separate bounded
// LRU caches. Eviction is a performance optimization only: the cache behaves
// identically (just slower) when entries are evicted.
//
// The cache is safe for concurrent use. Two callers fetching the same URL at the
// same time may both hit the network; both converge on the same cache slot.
type Cache struct {
	documents  gcache.Cache
	resolved   gcache.Cache
	httpClient httpClient
}

// NewCache returns a new context cache.
func NewCache(opts ...Option) *Cache {
	options := &options{
		httpClient:        &http.Client{Timeout: defaultFetchTimeout},
		documentCacheSize: defaultDocumentCacheSize,
		resolvedCacheSize: defaultResolvedCacheSize,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Cache{
		documents:  gcache.New(options.documentCacheSize).LRU().Build(),
		resolved:   gcache.New(options.resolvedCacheSize).LRU().Build(),
		httpClient: options.httpClient,
	}
}

// GetOrFetch returns the cached context document for the given URL, fetching and
// caching it first if it isn't cached yet. Fetch failures are returned as
// *vcerrors.ContextFetchError and are never cached, so transient errors can be retried.
func (c *Cache) GetOrFetch(u string) (*ld.RemoteDocument, error) {
	cached, err := c.documents.Get(u)
	if err == nil {
		logger.Debugf("context cache hit for %s", u)

		return cached.(*ld.RemoteDocument), nil
	}

	logger.Debugf("context cache miss for %s", u)

	doc, err := c.fetchDocument(u)
	if err != nil {
		return nil, vcerrors.NewContextFetch(u, err)
	}

	if err := c.documents.Set(u, doc); err != nil {
		return nil, fmt.Errorf("failed to cache context document [%s]: %w", u, err)
	}

	return doc, nil
}

// Resolve returns the ordered @context values of the documents at the given URLs.
// The result is cached under the ordered URL tuple since merging contexts is more
// expensive than a single fetch. Given unchanged upstream documents, resolution is
// a pure function of its cached inputs.
func (c *Cache) Resolve(urls []string) ([]interface{}, error) {
	key := strings.Join(urls, "\n")

	cached, err := c.resolved.Get(key)
	if err == nil {
		return cached.([]interface{}), nil
	}

	contexts := make([]interface{}, 0, len(urls))

	for _, u := range urls {
		doc, err := c.GetOrFetch(u)
		if err != nil {
			return nil, err
		}

		contexts = append(contexts, contextValue(doc.Document))
	}

	if err := c.resolved.Set(key, contexts); err != nil {
		return nil, fmt.Errorf("failed to cache resolved contexts: %w", err)
	}

	return contexts, nil
}

// Prewarm eagerly fetches the given context URLs so that the first credential signed
// doesn't pay the fetch cost. Each URL is retried a bounded number of times; failures
// are logged as warnings and never block startup.
func (c *Cache) Prewarm(urls []string) {
	for _, u := range urls {
		u := u

		err := backoff.Retry(func() error {
			_, err := c.GetOrFetch(u)

			return err
		}, backoff.WithMaxRetries(backoff.NewConstantBackOff(prewarmRetryBackoff), prewarmMaxRetries))
		if err != nil {
			logger.Warnf("failed to pre-warm context %s: %s", u, err)
		}
	}
}

func (c *Cache) fetchDocument(u string) (*ld.RemoteDocument, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/ld+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Warnf("failed to close response body: %s", errClose)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var document interface{}

	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("failed to parse context document: %w", err)
	}

	return &ld.RemoteDocument{DocumentURL: u, Document: document}, nil
}

// contextValue extracts the @context value of a context document. A document
// without an @context member is used as-is.
func contextValue(document interface{}) interface{} {
	if m, ok := document.(map[string]interface{}); ok {
		if ctx, ok := m["@context"]; ok {
			return ctx
		}
	}

	return document
}
