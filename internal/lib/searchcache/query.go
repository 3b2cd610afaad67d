package searchcache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antihax/optional"
	"golang.org/x/crypto/blake2b"

	"github.com/gary322/twist-sub006/internal/lib/tier"
)

type SortField string

const (
	SortTotalStaked  SortField = "totalStaked"
	SortStakerCount  SortField = "stakerCount"
	SortAPY          SortField = "apy"
	SortCreatedAt    SortField = "createdAt"
	SortRewards      SortField = "totalRewardsDistributed"
	SortRevenueShare SortField = "revenueShareBps"
)

var sortFields = []SortField{SortTotalStaked, SortStakerCount, SortAPY, SortCreatedAt, SortRewards, SortRevenueShare}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidQuery = errors.New("invalid search query")

// Query is a pool listing request.  Only the fields here are recognized; unset optional filters don't filter.
type Query struct {
	Sort       SortField
	Descending bool

	Active         optional.Bool
	MinTotalStaked optional.Uint64
	// Tier matches the pool aggregate tier by name (bronze, silver...).
	Tier       optional.String
	Influencer optional.String

	// Page is 1-based.
	Page     int
	PageSize int
}

// Normalize fills defaults and clamps the page size.
func (q Query) Normalize() Query {
	if q.Sort == "" {
		q.Sort = SortTotalStaked
		q.Descending = true
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	if q.Tier.IsSet() {
		q.Tier = optional.NewString(strings.ToLower(strings.TrimSpace(q.Tier.Value())))
	}
	return q
}

func (q Query) Validate() error {
	known := false
	for _, f := range sortFields {
		if q.Sort == f {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, q.Sort)
	}
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page %d size %d", ErrInvalidQuery, q.Page, q.PageSize)
	}
	if q.Tier.IsSet() {
		if _, err := tier.Parse(q.Tier.Value()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
	}
	if q.Influencer.IsSet() && q.Influencer.Value() == "" {
		return fmt.Errorf("%w: empty influencer filter", ErrInvalidQuery)
	}
	return nil
}

// Signature is a stable key for a normalized query - equal queries always share it.
func (q Query) Signature() string {
	var sb strings.Builder
	field := func(name, val string) {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(val))
		sb.WriteByte(';')
	}
	field("sort", string(q.Sort))
	field("desc", strconv.FormatBool(q.Descending))
	if q.Active.IsSet() {
		field("active", strconv.FormatBool(q.Active.Value()))
	}
	if q.MinTotalStaked.IsSet() {
		field("min", strconv.FormatUint(q.MinTotalStaked.Value(), 10))
	}
	if q.Tier.IsSet() {
		field("tier", q.Tier.Value())
	}
	if q.Influencer.IsSet() {
		field("influencer", q.Influencer.Value())
	}
	field("page", strconv.Itoa(q.Page))
	field("size", strconv.Itoa(q.PageSize))

	sum := blake2b.Sum256([]byte(sb.String()))
	return "search:" + hex.EncodeToString(sum[:16])
}
