package searchcache

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gary322/twist-sub006/internal/lib/apy"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/misc"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

type PoolLister interface {
	Pools(ctx context.Context) ([]ledger.StakingPool, error)
}

// Estimates supplies APY estimates; nil means none are joined.
type Estimates interface {
	Estimate(poolID string) (apy.Estimate, bool)
}

// PoolSummary is one listed pool.  APY is an advisory estimate, absent until first computed.
type PoolSummary struct {
	ledger.StakingPool
	Tier tier.Tier     `json:"tier"`
	APY  *apy.Estimate `json:"apy,omitempty"`
}

type Result struct {
	Pools    []PoolSummary `json:"pools"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	// Cached is set when the result was served from cache.  Not serialized.
	Cached bool `json:"-"`
}

type Searcher struct {
	logger     *slog.Logger
	cache      *Cache
	pools      PoolLister
	estimates  Estimates
	classifier *tier.Classifier
}

func NewSearcher(logger *slog.Logger, cache *Cache, pools PoolLister, estimates Estimates, classifier *tier.Classifier) *Searcher {
	return &Searcher{logger: logger, cache: cache, pools: pools, estimates: estimates, classifier: classifier}
}

// Search answers q from cache when possible.
func (s *Searcher) Search(ctx context.Context, q Query) (Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	key := q.Signature()
	raw, hit, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, []string, error) {
		res, tags, err := s.execute(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding search result: %w", err)
		}
		return raw, tags, nil
	})
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decoding cached search result %s: %w", key, err)
	}
	res.Cached = hit
	return res, nil
}

// execute runs q against the store.  The returned tags are every pool scanned, since a change to any of them can
// move it in or out of the result.
func (s *Searcher) execute(ctx context.Context, q Query) (Result, []string, error) {
	pools, err := s.pools.Pools(ctx)
	if err != nil {
		return Result{}, nil, fmt.Errorf("listing pools: %w", err)
	}
	tags := make([]string, 0, len(pools)+1)
	tags = append(tags, MembershipTag)

	var wantTier tier.Tier
	if q.Tier.IsSet() {
		wantTier, _ = tier.Parse(q.Tier.Value())
	}
	matched := make([]PoolSummary, 0, len(pools))
	for _, pool := range pools {
		tags = append(tags, pool.ID())
		sum := PoolSummary{StakingPool: pool, Tier: s.classifier.Classify(pool.TotalStaked)}
		if q.Active.IsSet() && pool.IsActive != q.Active.Value() {
			continue
		}
		if q.MinTotalStaked.IsSet() && pool.TotalStaked < q.MinTotalStaked.Value() {
			continue
		}
		if q.Tier.IsSet() && sum.Tier != wantTier {
			continue
		}
		if q.Influencer.IsSet() && pool.InfluencerID != q.Influencer.Value() {
			continue
		}
		if s.estimates != nil {
			if est, found := s.estimates.Estimate(pool.ID()); found {
				sum.APY = &est
			}
		}
		matched = append(matched, sum)
	}
	if q.Influencer.IsSet() {
		tags = append(tags, q.Influencer.Value())
	}

	slices.SortStableFunc(matched, func(a, b PoolSummary) int {
		c := compareBy(q.Sort, a, b)
		if q.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})

	res := Result{Total: len(matched), Page: q.Page, PageSize: q.PageSize, Pools: []PoolSummary{}}
	start := (q.Page - 1) * q.PageSize
	if start < len(matched) {
		res.Pools = matched[start:min(start+q.PageSize, len(matched))]
	}
	misc.Debugf(s.logger, "search sort:%s page:%d matched %d of %d pools", q.Sort, q.Page, len(matched), len(pools))
	return res, tags, nil
}

func compareBy(field SortField, a, b PoolSummary) int {
	switch field {
	case SortStakerCount:
		return cmp.Compare(a.StakerCount, b.StakerCount)
	case SortAPY:
		return cmp.Compare(apyKey(a), apyKey(b))
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortRewards:
		return cmp.Compare(a.TotalRewardsDistributed, b.TotalRewardsDistributed)
	case SortRevenueShare:
		return cmp.Compare(a.RevenueShareBps, b.RevenueShareBps)
	default:
		return cmp.Compare(a.TotalStaked, b.TotalStaked)
	}
}

// apyKey orders pools without a defined estimate below every pool with one.
func apyKey(p PoolSummary) int64 {
	if p.APY == nil || !p.APY.Defined {
		return -1
	}
	return int64(min(p.APY.APYBps, 1<<62))
}
