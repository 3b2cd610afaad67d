package searchcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antihax/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary322/twist-sub006/internal/lib/apy"
	"github.com/gary322/twist-sub006/internal/lib/fixedpoint"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

func TestQueryNormalizeAndValidate(t *testing.T) {
	q := Query{}.Normalize()
	assert.Equal(t, SortTotalStaked, q.Sort)
	assert.True(t, q.Descending)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	require.NoError(t, q.Validate())

	q = Query{Sort: SortAPY, PageSize: 5000, Tier: optional.NewString(" Gold ")}.Normalize()
	assert.Equal(t, MaxPageSize, q.PageSize)
	assert.Equal(t, "gold", q.Tier.Value())
	assert.False(t, q.Descending)

	testCases := []struct {
		name string
		q    Query
	}{
		{"unknown sort", Query{Sort: "volume", Page: 1, PageSize: 10}},
		{"zero page", Query{Sort: SortAPY, PageSize: 10}},
		{"page too large", Query{Sort: SortAPY, Page: 1, PageSize: MaxPageSize + 1}},
		{"bad tier", Query{Sort: SortAPY, Page: 1, PageSize: 10, Tier: optional.NewString("diamond")}},
		{"empty influencer", Query{Sort: SortAPY, Page: 1, PageSize: 10, Influencer: optional.NewString("")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.q.Validate(), ErrInvalidQuery)
		})
	}
}

func TestQuerySignature(t *testing.T) {
	base := Query{Sort: SortStakerCount, Page: 2, PageSize: 10}.Normalize()
	same := Query{Sort: SortStakerCount, Page: 2, PageSize: 10}.Normalize()
	assert.Equal(t, base.Signature(), same.Signature())
	assert.Equal(t, Query{}.Normalize().Signature(), Query{Sort: SortTotalStaked, Descending: true, Page: 1, PageSize: 20}.Signature())

	variants := []Query{
		{Sort: SortStakerCount, Page: 3, PageSize: 10},
		{Sort: SortStakerCount, Page: 2, PageSize: 11},
		{Sort: SortStakerCount, Descending: true, Page: 2, PageSize: 10},
		{Sort: SortStakerCount, Page: 2, PageSize: 10, Active: optional.NewBool(true)},
		{Sort: SortStakerCount, Page: 2, PageSize: 10, Active: optional.NewBool(false)},
		{Sort: SortStakerCount, Page: 2, PageSize: 10, MinTotalStaked: optional.NewUint64(0)},
		{Sort: SortStakerCount, Page: 2, PageSize: 10, Influencer: optional.NewString("alice")},
		{Sort: SortStakerCount, Page: 2, PageSize: 10, Tier: optional.NewString("bronze")},
	}
	seen := map[string]int{base.Signature(): -1}
	for i, v := range variants {
		sig := v.Normalize().Signature()
		prev, dup := seen[sig]
		assert.False(t, dup, "variant %d collides with %d", i, prev)
		seen[sig] = i
	}
}

func TestCacheInvalidatePool(t *testing.T) {
	c := NewCache(16, time.Minute)
	c.Put("q1", []byte("one"), "alice", "bob")
	c.Put("q2", []byte("two"), "bob")
	c.Put("q3", []byte("three"), MembershipTag, "carol")

	c.InvalidatePool("alice")
	_, found := c.Get("q1")
	assert.False(t, found)
	_, found = c.Get("q2")
	assert.True(t, found)

	c.InvalidatePool("bob")
	_, found = c.Get("q2")
	assert.False(t, found)
	_, found = c.Get("q3")
	assert.True(t, found)

	// a pool nothing was derived from is a new pool - membership dependent entries go
	c.InvalidatePool("dave")
	_, found = c.Get("q3")
	assert.False(t, found)
	assert.Zero(t, c.Len())
}

func TestLateEvictionKeepsNewerTags(t *testing.T) {
	c := NewCache(16, time.Minute)
	c.Put("q1", []byte("old"), "alice")
	old, found := c.lru.Peek("q1")
	require.True(t, found)
	c.Put("q1", []byte("new"), "bob")

	// the expiry callback for the replaced entry arrives after the new one was tagged
	c.onEvict("q1", old)

	val, found := c.Get("q1")
	require.True(t, found)
	assert.Equal(t, []byte("new"), val)
	c.InvalidatePool("bob")
	_, found = c.Get("q1")
	assert.False(t, found)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(16, 20*time.Millisecond)
	c.Put("q1", []byte("one"), "alice")
	_, found := c.Get("q1")
	require.True(t, found)
	assert.Eventually(t, func() bool {
		_, found := c.Get("q1")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestCacheGetOrLoad(t *testing.T) {
	c := NewCache(16, time.Minute)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, []string, error) {
		loads.Add(1)
		<-release
		return []byte("v"), []string{"alice"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, _, err := c.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, []byte("v"), val)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, loads.Load(), int32(10))

	before := loads.Load()
	_, hit, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, before, loads.Load())

	errBoom := errors.New("boom")
	_, _, err = c.GetOrLoad(context.Background(), "bad", func(context.Context) ([]byte, []string, error) {
		return nil, nil, errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	_, found := c.Get("bad")
	assert.False(t, found)
}

func TestCacheDropsLoadRacingInvalidation(t *testing.T) {
	c := NewCache(16, time.Minute)
	val, hit, err := c.GetOrLoad(context.Background(), "k", func(context.Context) ([]byte, []string, error) {
		// the pool changes while the query runs
		c.InvalidatePool("alice")
		return []byte("stale"), []string{"alice"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("stale"), val)
	_, found := c.Get("k")
	assert.False(t, found)
}

type poolsFunc func() []ledger.StakingPool

func (f poolsFunc) Pools(context.Context) ([]ledger.StakingPool, error) {
	return f(), nil
}

type estimates map[string]apy.Estimate

func (e estimates) Estimate(id string) (apy.Estimate, bool) {
	est, found := e[id]
	return est, found
}

func TestSearch(t *testing.T) {
	tok := fixedpoint.OneToken
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pools := []ledger.StakingPool{
		{InfluencerID: "alice", TotalStaked: 150_000 * tok, StakerCount: 3, IsActive: true, CreatedAt: created},
		{InfluencerID: "bob", TotalStaked: 2_000 * tok, StakerCount: 9, IsActive: true, CreatedAt: created.Add(time.Hour)},
		{InfluencerID: "carol", TotalStaked: 2_000 * tok, StakerCount: 1, IsActive: false, CreatedAt: created.Add(2 * time.Hour)},
		{InfluencerID: "dave", TotalStaked: 10, StakerCount: 1, IsActive: true, CreatedAt: created.Add(3 * time.Hour)},
	}
	var scans atomic.Int32
	lister := poolsFunc(func() []ledger.StakingPool {
		scans.Add(1)
		return pools
	})
	classifier, err := tier.NewClassifier(tier.DefaultBands())
	require.NoError(t, err)
	est := estimates{
		"alice": {PoolID: "alice", APYBps: 500, Defined: true},
		"bob":   {PoolID: "bob", APYBps: 1200, Defined: true},
		"dave":  {PoolID: "dave"},
	}
	s := NewSearcher(slog.Default(), NewCache(64, time.Minute), lister, est, classifier)
	ctx := context.Background()

	ids := func(res Result) []string {
		var out []string
		for _, p := range res.Pools {
			out = append(out, p.ID())
		}
		return out
	}

	testCases := []struct {
		name  string
		q     Query
		ids   []string
		total int
	}{
		{"default is total staked desc, ties by id", Query{}, []string{"alice", "bob", "carol", "dave"}, 4},
		{"staker count asc", Query{Sort: SortStakerCount}, []string{"carol", "dave", "alice", "bob"}, 4},
		{"apy desc puts undefined last", Query{Sort: SortAPY, Descending: true}, []string{"bob", "alice", "carol", "dave"}, 4},
		{"active only", Query{Active: optional.NewBool(true)}, []string{"alice", "bob", "dave"}, 3},
		{"min staked", Query{MinTotalStaked: optional.NewUint64(1000 * tok)}, []string{"alice", "bob", "carol"}, 3},
		{"tier", Query{Tier: optional.NewString("bronze")}, []string{"bob", "carol"}, 2},
		{"influencer", Query{Influencer: optional.NewString("carol")}, []string{"carol"}, 1},
		{"second page", Query{Sort: SortCreatedAt, Page: 2, PageSize: 3}, []string{"dave"}, 4},
		{"past the end", Query{Page: 9, PageSize: 3}, nil, 4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Search(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.ids, ids(res))
			assert.Equal(t, tc.total, res.Total)
		})
	}

	res, err := s.Search(ctx, Query{Influencer: optional.NewString("alice")})
	require.NoError(t, err)
	require.Len(t, res.Pools, 1)
	assert.Equal(t, tier.Gold, res.Pools[0].Tier)
	require.NotNil(t, res.Pools[0].APY)
	assert.Equal(t, uint64(500), res.Pools[0].APY.APYBps)

	_, err = s.Search(ctx, Query{Sort: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSearchCachesUntilInvalidated(t *testing.T) {
	var mu sync.Mutex
	pools := []ledger.StakingPool{{InfluencerID: "alice", TotalStaked: 5, IsActive: true}}
	lister := poolsFunc(func() []ledger.StakingPool {
		mu.Lock()
		defer mu.Unlock()
		return slicesClone(pools)
	})
	classifier, err := tier.NewClassifier(tier.DefaultBands())
	require.NoError(t, err)
	cache := NewCache(64, time.Minute)
	s := NewSearcher(slog.Default(), cache, lister, nil, classifier)
	ctx := context.Background()

	res, err := s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	res, err = s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.True(t, res.Cached)

	mu.Lock()
	pools[0].TotalStaked = 7
	mu.Unlock()
	res, err = s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Pools[0].TotalStaked)

	cache.InvalidatePool("alice")
	res, err = s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, uint64(7), res.Pools[0].TotalStaked)

	// a new pool shows up once the ledger announces it
	mu.Lock()
	pools = append(pools, ledger.StakingPool{InfluencerID: "bob", TotalStaked: 9, IsActive: true})
	mu.Unlock()
	cache.InvalidatePool("bob")
	res, err = s.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func slicesClone(p []ledger.StakingPool) []ledger.StakingPool {
	return append([]ledger.StakingPool(nil), p...)
}
