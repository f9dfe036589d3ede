/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldcontext_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/badgevc/pkg/internal/testutil"
	"github.com/trustbloc/badgevc/pkg/ldcontext"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

func TestGetOrFetch(t *testing.T) {
	t.Run("Success - repeated calls hit the network only once per URL", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		for i := 0; i < 5; i++ {
			doc, err := cache.GetOrFetch(ldcontext.ContextCredentialsV2)
			require.NoError(t, err)
			require.NotNil(t, doc)
			require.Equal(t, ldcontext.ContextCredentialsV2, doc.DocumentURL)
			require.NotNil(t, doc.Document)
		}

		require.Equal(t, 1, server.FetchCount(ldcontext.ContextCredentialsV2))
	})
	t.Run("Failure - unknown URL returns a context fetch error and is not cached", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		const missingURL = "https://example.com/missing.json"

		doc, err := cache.GetOrFetch(missingURL)
		require.Error(t, err)
		require.True(t, vcerrors.IsContextFetch(err))
		require.Contains(t, err.Error(), missingURL)
		require.Nil(t, doc)

		// Failures must not be cached: once the document becomes available, the
		// next call succeeds.
		server.Add(missingURL, `{"@context": {"@version": 1.1}}`)

		doc, err = cache.GetOrFetch(missingURL)
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Equal(t, 2, server.FetchCount(missingURL))
	})
	t.Run("Failure - invalid JSON", func(t *testing.T) {
		server := testutil.NewContextServer()
		server.Add("https://example.com/broken.json", "{not json")

		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		doc, err := cache.GetOrFetch("https://example.com/broken.json")
		require.Error(t, err)
		require.True(t, vcerrors.IsContextFetch(err))
		require.Nil(t, doc)
	})
}

func TestLRUEviction(t *testing.T) {
	server := testutil.NewContextServer()

	urls := make([]string, 3)

	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/context-%d.json", i)
		server.Add(urls[i], `{"@context": {"@version": 1.1}}`)
	}

	cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server), ldcontext.WithDocumentCacheSize(2))

	// Fill the cache past capacity. urls[0] becomes the least recently used entry
	// once urls[1] and urls[2] have been inserted.
	for _, u := range urls {
		_, err := cache.GetOrFetch(u)
		require.NoError(t, err)
	}

	_, err := cache.GetOrFetch(urls[0])
	require.NoError(t, err)
	require.Equal(t, 2, server.FetchCount(urls[0]))

	// Eviction is a performance optimization only: a huge capacity must behave
	// identically, just without refetches.
	server = testutil.NewContextServer()

	for i := range urls {
		server.Add(urls[i], `{"@context": {"@version": 1.1}}`)
	}

	cache = ldcontext.NewCache(ldcontext.WithHTTPClient(server), ldcontext.WithDocumentCacheSize(1000))

	for _, u := range urls {
		_, err := cache.GetOrFetch(u)
		require.NoError(t, err)
	}

	_, err = cache.GetOrFetch(urls[0])
	require.NoError(t, err)
	require.Equal(t, 1, server.FetchCount(urls[0]))
}

func TestResolve(t *testing.T) {
	t.Run("Success - resolution is cached and pure", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		urls := []string{ldcontext.ContextCredentialsV2, ldcontext.ContextOpenBadgesV3}

		first, err := cache.Resolve(urls)
		require.NoError(t, err)
		require.Len(t, first, 2)

		fetchesAfterFirst := server.TotalFetches()

		second, err := cache.Resolve(urls)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, fetchesAfterFirst, server.TotalFetches())
	})
	t.Run("Failure - unresolvable member URL", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		resolved, err := cache.Resolve([]string{"https://example.com/missing.json"})
		require.Error(t, err)
		require.True(t, vcerrors.IsContextFetch(err))
		require.Nil(t, resolved)
	})
}

func TestPrewarm(t *testing.T) {
	t.Run("Success - well-known contexts are fetched eagerly", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		cache.Prewarm(ldcontext.WellKnownContexts)

		for _, u := range ldcontext.WellKnownContexts {
			require.Equal(t, 1, server.FetchCount(u))
		}

		// Subsequent lookups are served from the cache.
		_, err := cache.GetOrFetch(ldcontext.ContextOpenBadgesV3)
		require.NoError(t, err)
		require.Equal(t, 1, server.FetchCount(ldcontext.ContextOpenBadgesV3))
	})
	t.Run("Failure does not block startup", func(t *testing.T) {
		server := testutil.NewContextServer()
		cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

		const missingURL = "https://example.com/missing.json"

		cache.Prewarm([]string{missingURL, ldcontext.ContextCredentialsV2})

		// The failing URL was retried a bounded number of times, and the healthy
		// URL was still warmed.
		require.Equal(t, 3, server.FetchCount(missingURL))
		require.Equal(t, 1, server.FetchCount(ldcontext.ContextCredentialsV2))
	})
}

func TestConcurrentAccess(t *testing.T) {
	server := testutil.NewContextServer()
	cache := ldcontext.NewCache(ldcontext.WithHTTPClient(server))

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			doc, err := cache.GetOrFetch(ldcontext.ContextCredentialsV2)
			require.NoError(t, err)
			require.NotNil(t, doc)
		}()
	}

	wg.Wait()

	// Concurrent callers may each hit the network (no dog-piling de-duplication),
	// but they all converge on the same cache slot.
	require.GreaterOrEqual(t, server.FetchCount(ldcontext.ContextCredentialsV2), 1)

	doc, err := cache.GetOrFetch(ldcontext.ContextCredentialsV2)
	require.NoError(t, err)
	require.NotNil(t, doc)
}
