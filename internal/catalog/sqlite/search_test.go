package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

// seedUpperTag 写入一个只能通过大写标签命中的工具
func seedUpperTag(t *testing.T) *Store {
	t.Helper()
	s := openSeeded(t)
	require.NoError(t, s.Seed(context.Background(), SeedData{Tools: []catalog.Tool{{
		ID: "t9", Name: "Thinker", Slug: "thinker", Description: "Reasoning assistant",
		URL: "https://thinker.example", Category: "writing", Pricing: catalog.PricingFree,
		Tags: []string{"LLM"},
	}}}))
	return s
}

func newSearchService(t *testing.T, s *Store) *catalog.Service {
	t.Helper()
	cache, err := xttl.New(xttl.Config{Capacity: 100, TTL: time.Minute}, xttl.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	svc, err := catalog.NewService(s, cache, catalog.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func TestStore_SearchTagIgnoresCase(t *testing.T) {
	s := seedUpperTag(t)
	for _, q := range []string{"llm", "LLM", "Llm"} {
		got, err := s.ListTools(context.Background(), catalog.ToolQuery{Search: q})
		require.NoError(t, err, q)
		require.Len(t, got, 1, q)
		assert.Equal(t, "thinker", got[0].Slug, q)
	}
}

func TestService_SearchSharesResultAcrossCase(t *testing.T) {
	for _, order := range [][]string{{"llm", "LLM"}, {"LLM", "llm"}} {
		svc := newSearchService(t, seedUpperTag(t))
		for _, q := range order {
			got, err := svc.Search(context.Background(), q, 10)
			require.NoError(t, err, "%v/%s", order, q)
			require.Len(t, got, 1, "%v/%s", order, q)
			assert.Equal(t, "thinker", got[0].Slug, "%v/%s", order, q)
		}
	}
}
