package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/ledger"
	"github.com/gary322/twist-sub006/internal/lib/tier"
)

var (
	_ ledger.Store     = (*SQLiteStore)(nil)
	_ decay.StateStore = (*SQLiteStore)(nil)
	_ ledger.Store     = (*MemoryStore)(nil)
	_ decay.StateStore = (*MemoryStore)(nil)
)

// amounts are stored as decimal text - sqlite integers are signed 64 bit and can't hold every uint64.
const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id                        TEXT PRIMARY KEY,
	total_staked              TEXT NOT NULL,
	staker_count              INTEGER NOT NULL,
	revenue_share_bps         INTEGER NOT NULL,
	min_stake                 TEXT NOT NULL,
	total_rewards_distributed TEXT NOT NULL,
	pending_rewards           TEXT NOT NULL,
	is_active                 INTEGER NOT NULL,
	created_at                INTEGER NOT NULL,
	version                   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stakes (
	pool_id         TEXT NOT NULL REFERENCES pools(id),
	staker          TEXT NOT NULL,
	amount          TEXT NOT NULL,
	staked_at       INTEGER NOT NULL,
	last_claim_at   INTEGER NOT NULL,
	total_claimed   TEXT NOT NULL,
	pending_rewards TEXT NOT NULL,
	reward_seq      INTEGER NOT NULL,
	PRIMARY KEY (pool_id, staker)
);
CREATE TABLE IF NOT EXISTS rewards (
	seq                   INTEGER PRIMARY KEY AUTOINCREMENT,
	id                    TEXT NOT NULL,
	pool_id               TEXT NOT NULL REFERENCES pools(id),
	distributed_at        INTEGER NOT NULL,
	earning_amount        TEXT NOT NULL,
	staker_share          TEXT NOT NULL,
	influencer_share      TEXT NOT NULL,
	credited              TEXT NOT NULL,
	carried               TEXT NOT NULL,
	total_staked_snapshot TEXT NOT NULL,
	UNIQUE (pool_id, id)
);
CREATE INDEX IF NOT EXISTS rewards_pool_time ON rewards (pool_id, distributed_at);
CREATE TABLE IF NOT EXISTS history (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	pool_id  TEXT NOT NULL,
	staker   TEXT NOT NULL,
	action   TEXT NOT NULL,
	amount   TEXT NOT NULL,
	old_tier INTEGER NOT NULL,
	new_tier INTEGER NOT NULL,
	at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS history_pool ON history (pool_id, seq);
CREATE TABLE IF NOT EXISTS claim_receipts (
	pool_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	staker     TEXT NOT NULL,
	amount     TEXT NOT NULL,
	claimed_at INTEGER NOT NULL,
	PRIMARY KEY (pool_id, key)
);
CREATE TABLE IF NOT EXISTS decay_state (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	total_supply    TEXT NOT NULL,
	floor_balance   TEXT NOT NULL,
	ops_balance     TEXT NOT NULL,
	total_decayed   TEXT NOT NULL,
	last_applied_at INTEGER NOT NULL,
	daily_rate_bps  INTEGER NOT NULL,
	split_bps       INTEGER NOT NULL,
	paused          INTEGER NOT NULL
);
CREATE TRIGGER IF NOT EXISTS history_no_update BEFORE UPDATE ON history BEGIN SELECT RAISE(ABORT, 'history is append-only'); END;
CREATE TRIGGER IF NOT EXISTS history_no_delete BEFORE DELETE ON history BEGIN SELECT RAISE(ABORT, 'history is append-only'); END;
CREATE TRIGGER IF NOT EXISTS rewards_no_update BEFORE UPDATE ON rewards BEGIN SELECT RAISE(ABORT, 'rewards are append-only'); END;
CREATE TRIGGER IF NOT EXISTS rewards_no_delete BEFORE DELETE ON rewards BEGIN SELECT RAISE(ABORT, 'rewards are append-only'); END;
`

// SQLiteStore is a durable ledger.Store and decay.StateStore.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	return newWithDB(db)
}

// NewMem creates a private in-memory database.
func NewMem() (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_txlock=immediate&_foreign_keys=1", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// the database lives as long as its one connection does
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return newWithDB(db)
}

func newWithDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Version returns the linked sqlite library version.
func Version() string {
	v, _, _ := sqlite3.Version()
	return v
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, errors.Wrapf(err, "parse amount %q", s)
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// amountScanner collects text amount columns and parses them after Scan.
type amountScanner struct {
	raw  []*string
	dest []*uint64
}

func (a *amountScanner) col(dest *uint64) any {
	raw := new(string)
	a.raw = append(a.raw, raw)
	a.dest = append(a.dest, dest)
	return raw
}

func (a *amountScanner) parse() error {
	for i, r := range a.raw {
		v, err := parseU64(*r)
		if err != nil {
			return err
		}
		*a.dest[i] = v
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const poolColumns = `id, total_staked, staker_count, revenue_share_bps, min_stake, total_rewards_distributed, pending_rewards, is_active, created_at, version`

func scanPool(row rowScanner) (ledger.StakingPool, error) {
	var (
		p         ledger.StakingPool
		a         = &amountScanner{}
		active    int
		createdAt int64
	)
	err := row.Scan(&p.InfluencerID, a.col(&p.TotalStaked), &p.StakerCount, &p.RevenueShareBps, a.col(&p.MinStake),
		a.col(&p.TotalRewardsDistributed), a.col(&p.PendingRewards), &active, &createdAt, &p.Version)
	if err != nil {
		return p, err
	}
	p.IsActive = active == 1
	p.CreatedAt = fromNanos(createdAt)
	return p, a.parse()
}

const stakeColumns = `pool_id, staker, amount, staked_at, last_claim_at, total_claimed, pending_rewards, reward_seq`

func scanStake(row rowScanner) (ledger.UserStake, error) {
	var (
		st                  ledger.UserStake
		a                   = &amountScanner{}
		stakedAt, lastClaim int64
	)
	err := row.Scan(&st.PoolID, &st.Staker, a.col(&st.Amount), &stakedAt, &lastClaim, a.col(&st.TotalClaimed),
		a.col(&st.PendingRewards), &st.RewardSeq)
	if err != nil {
		return st, err
	}
	st.StakedAt = fromNanos(stakedAt)
	st.LastClaimAt = fromNanos(lastClaim)
	return st, a.parse()
}

const rewardColumns = `id, pool_id, distributed_at, earning_amount, staker_share, influencer_share, credited, carried, total_staked_snapshot`

func scanReward(row rowScanner) (ledger.StakingReward, error) {
	var (
		r  ledger.StakingReward
		a  = &amountScanner{}
		at int64
	)
	err := row.Scan(&r.ID, &r.PoolID, &at, a.col(&r.EarningAmount), a.col(&r.StakerShare), a.col(&r.InfluencerShare),
		a.col(&r.Credited), a.col(&r.Carried), a.col(&r.TotalStakedSnapshot))
	if err != nil {
		return r, err
	}
	r.DistributedAt = fromNanos(at)
	return r, a.parse()
}

func (s *SQLiteStore) CreatePool(ctx context.Context, pool ledger.StakingPool, rec ledger.HistoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools WHERE id = ?`, pool.ID()).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "check pool")
	}
	if exists > 0 {
		return ledger.ErrPoolExists
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO pools (`+poolColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		pool.ID(), u64(pool.TotalStaked), pool.StakerCount, pool.RevenueShareBps, u64(pool.MinStake),
		u64(pool.TotalRewardsDistributed), u64(pool.PendingRewards), boolInt(pool.IsActive), nanos(pool.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "insert pool")
	}
	if err := insertHistory(ctx, tx, rec); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (s *SQLiteStore) GetPool(ctx context.Context, poolID string) (ledger.StakingPool, error) {
	return getPool(ctx, s.db, poolID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getPool(ctx context.Context, q querier, poolID string) (ledger.StakingPool, error) {
	pool, err := scanPool(q.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = ?`, poolID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StakingPool{}, ledger.ErrPoolNotFound
	}
	return pool, errors.Wrap(err, "get pool")
}

func (s *SQLiteStore) ListPools(ctx context.Context) ([]ledger.StakingPool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list pools")
	}
	defer rows.Close()
	var pools []ledger.StakingPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan pool")
		}
		pools = append(pools, p)
	}
	return pools, errors.Wrap(rows.Err(), "list pools")
}

func (s *SQLiteStore) GetStake(ctx context.Context, poolID, staker string) (ledger.UserStake, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return ledger.UserStake{}, err
	}
	st, found, err := getStake(ctx, s.db, poolID, staker)
	if err != nil {
		return ledger.UserStake{}, err
	}
	if !found {
		return ledger.UserStake{}, ledger.ErrStakeNotFound
	}
	return st, nil
}

func getStake(ctx context.Context, q querier, poolID, staker string) (ledger.UserStake, bool, error) {
	st, err := scanStake(q.QueryRowContext(ctx, `SELECT `+stakeColumns+` FROM stakes WHERE pool_id = ? AND staker = ?`, poolID, staker))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.UserStake{}, false, nil
	}
	if err != nil {
		return ledger.UserStake{}, false, errors.Wrap(err, "get stake")
	}
	return st, true, nil
}

func (s *SQLiteStore) ListStakes(ctx context.Context, poolID string) ([]ledger.UserStake, error) {
	return listStakes(ctx, s.db, poolID, false)
}

func listStakes(ctx context.Context, q querier, poolID string, activeOnly bool) ([]ledger.UserStake, error) {
	query := `SELECT ` + stakeColumns + ` FROM stakes WHERE pool_id = ?`
	if activeOnly {
		query += ` AND amount != '0'`
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY staker`, poolID)
	if err != nil {
		return nil, errors.Wrap(err, "list stakes")
	}
	defer rows.Close()
	var stakes []ledger.UserStake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan stake")
		}
		stakes = append(stakes, st)
	}
	return stakes, errors.Wrap(rows.Err(), "list stakes")
}

func (s *SQLiteStore) RewardsSince(ctx context.Context, poolID string, since time.Time) ([]ledger.StakingReward, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE pool_id = ? AND distributed_at >= ? ORDER BY seq`,
		poolID, nanos(since))
	if err != nil {
		return nil, errors.Wrap(err, "list rewards")
	}
	defer rows.Close()
	var rewards []ledger.StakingReward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan reward")
		}
		rewards = append(rewards, r)
	}
	return rewards, errors.Wrap(rows.Err(), "list rewards")
}

func (s *SQLiteStore) History(ctx context.Context, poolID string, limit int) ([]ledger.HistoryRecord, error) {
	query := `SELECT id, pool_id, staker, action, amount, old_tier, new_tier, at FROM history WHERE pool_id = ? ORDER BY seq DESC`
	args := []any{poolID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()
	var out []ledger.HistoryRecord
	for rows.Next() {
		var (
			rec              ledger.HistoryRecord
			a                = &amountScanner{}
			oldTier, newTier uint8
			at               int64
		)
		if err := rows.Scan(&rec.ID, &rec.PoolID, &rec.Staker, &rec.Action, a.col(&rec.Amount), &oldTier, &newTier, &at); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		if err := a.parse(); err != nil {
			return nil, err
		}
		rec.OldTier, rec.NewTier = tier.Tier(oldTier), tier.Tier(newTier)
		rec.At = fromNanos(at)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "list history")
}

func insertHistory(ctx context.Context, q querier, rec ledger.HistoryRecord) error {
	_, err := q.ExecContext(ctx, `INSERT INTO history (id, pool_id, staker, action, amount, old_tier, new_tier, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PoolID, rec.Staker, string(rec.Action), u64(rec.Amount), uint8(rec.OldTier), uint8(rec.NewTier), nanos(rec.At))
	return errors.Wrap(err, "insert history")
}

func (s *SQLiteStore) UpdatePool(ctx context.Context, poolID string, fn func(tx ledger.PoolTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	pool, err := getPool(ctx, tx, poolID)
	if err != nil {
		return err
	}
	stx := &sqlTx{ctx: ctx, tx: tx, pool: pool, startVersion: pool.Version}
	if err := fn(stx); err != nil {
		return err
	}
	if !stx.wrote {
		return nil
	}
	res, err := tx.ExecContext(ctx, `UPDATE pools SET version = version + 1 WHERE id = ? AND version = ?`, poolID, stx.startVersion)
	if err != nil {
		return errors.Wrap(err, "bump version")
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return ledger.ErrConflict
	}
	return errors.Wrap(tx.Commit(), "commit")
}

type sqlTx struct {
	ctx          context.Context
	tx           *sql.Tx
	pool         ledger.StakingPool
	startVersion uint64
	wrote        bool
}

func (t *sqlTx) Pool() ledger.StakingPool {
	return t.pool
}

func (t *sqlTx) Stake(staker string) (ledger.UserStake, bool, error) {
	return getStake(t.ctx, t.tx, t.pool.ID(), staker)
}

func (t *sqlTx) ActiveStakes() ([]ledger.UserStake, error) {
	return listStakes(t.ctx, t.tx, t.pool.ID(), true)
}

func (t *sqlTx) Reward(id string) (ledger.StakingReward, bool, error) {
	r, err := scanReward(t.tx.QueryRowContext(t.ctx, `SELECT `+rewardColumns+` FROM rewards WHERE pool_id = ? AND id = ?`, t.pool.ID(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StakingReward{}, false, nil
	}
	if err != nil {
		return ledger.StakingReward{}, false, errors.Wrap(err, "get reward")
	}
	return r, true, nil
}

func (t *sqlTx) ClaimReceipt(key string) (ledger.ClaimReceipt, bool, error) {
	var (
		r         ledger.ClaimReceipt
		a         = &amountScanner{}
		claimedAt int64
	)
	err := t.tx.QueryRowContext(t.ctx, `SELECT pool_id, key, staker, amount, claimed_at FROM claim_receipts WHERE pool_id = ? AND key = ?`,
		t.pool.ID(), key).Scan(&r.PoolID, &r.Key, &r.Staker, a.col(&r.Amount), &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ClaimReceipt{}, false, nil
	}
	if err != nil {
		return ledger.ClaimReceipt{}, false, errors.Wrap(err, "get claim receipt")
	}
	r.ClaimedAt = fromNanos(claimedAt)
	return r, true, a.parse()
}

func (t *sqlTx) PutPool(pool ledger.StakingPool) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE pools SET total_staked = ?, staker_count = ?, revenue_share_bps = ?, min_stake = ?,
		total_rewards_distributed = ?, pending_rewards = ?, is_active = ? WHERE id = ? AND version = ?`,
		u64(pool.TotalStaked), pool.StakerCount, pool.RevenueShareBps, u64(pool.MinStake), u64(pool.TotalRewardsDistributed),
		u64(pool.PendingRewards), boolInt(pool.IsActive), t.pool.ID(), t.startVersion)
	if err != nil {
		return errors.Wrap(err, "update pool")
	}
	t.pool = pool
	t.wrote = true
	return nil
}

func (t *sqlTx) PutStake(st ledger.UserStake) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO stakes (`+stakeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool_id, staker) DO UPDATE SET amount = excluded.amount, staked_at = excluded.staked_at,
		last_claim_at = excluded.last_claim_at, total_claimed = excluded.total_claimed,
		pending_rewards = excluded.pending_rewards, reward_seq = excluded.reward_seq`,
		t.pool.ID(), st.Staker, u64(st.Amount), nanos(st.StakedAt), nanos(st.LastClaimAt), u64(st.TotalClaimed),
		u64(st.PendingRewards), st.RewardSeq)
	if err != nil {
		return errors.Wrap(err, "put stake")
	}
	t.wrote = true
	return nil
}

func (t *sqlTx) AppendReward(r ledger.StakingReward) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO rewards (`+rewardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, t.pool.ID(), nanos(r.DistributedAt), u64(r.EarningAmount), u64(r.StakerShare), u64(r.InfluencerShare),
		u64(r.Credited), u64(r.Carried), u64(r.TotalStakedSnapshot))
	if err != nil {
		return errors.Wrap(err, "append reward")
	}
	t.wrote = true
	return nil
}

func (t *sqlTx) AppendHistory(rec ledger.HistoryRecord) error {
	if err := insertHistory(t.ctx, t.tx, rec); err != nil {
		return err
	}
	t.wrote = true
	return nil
}

func (t *sqlTx) PutClaimReceipt(r ledger.ClaimReceipt) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO claim_receipts (pool_id, key, staker, amount, claimed_at) VALUES (?, ?, ?, ?, ?)`,
		t.pool.ID(), r.Key, r.Staker, u64(r.Amount), nanos(r.ClaimedAt))
	if err != nil {
		return errors.Wrap(err, "put claim receipt")
	}
	t.wrote = true
	return nil
}

const decayColumns = `total_supply, floor_balance, ops_balance, total_decayed, last_applied_at, daily_rate_bps, split_bps, paused`

func (s *SQLiteStore) LoadState(ctx context.Context) (decay.State, error) {
	var (
		st     decay.State
		a      = &amountScanner{}
		last   int64
		paused int
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+decayColumns+` FROM decay_state WHERE id = 1`).Scan(
		a.col(&st.TotalSupply), a.col(&st.FloorTreasuryBalance), a.col(&st.OpsTreasuryBalance), a.col(&st.TotalDecayed),
		&last, &st.DailyDecayRateBps, &st.TreasurySplitBps, &paused)
	if errors.Is(err, sql.ErrNoRows) {
		return decay.State{}, decay.ErrStateNotFound
	}
	if err != nil {
		return decay.State{}, errors.Wrap(err, "load decay state")
	}
	st.LastDecayAppliedAt = fromNanos(last)
	st.Paused = paused == 1
	return st, a.parse()
}

func (s *SQLiteStore) InitState(ctx context.Context, st decay.State) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO decay_state (id, `+decayColumns+`) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u64(st.TotalSupply), u64(st.FloorTreasuryBalance), u64(st.OpsTreasuryBalance), u64(st.TotalDecayed),
		nanos(st.LastDecayAppliedAt), st.DailyDecayRateBps, st.TreasurySplitBps, boolInt(st.Paused))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return decay.ErrStateExists
	}
	return errors.Wrap(err, "init decay state")
}

// SaveState is a compare-and-swap on the fields identifying prev.
func (s *SQLiteStore) SaveState(ctx context.Context, prev, next decay.State) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decay_state SET total_supply = ?, floor_balance = ?, ops_balance = ?,
		total_decayed = ?, last_applied_at = ?, daily_rate_bps = ?, split_bps = ?, paused = ?
		WHERE id = 1 AND last_applied_at = ? AND paused = ? AND total_supply = ?`,
		u64(next.TotalSupply), u64(next.FloorTreasuryBalance), u64(next.OpsTreasuryBalance), u64(next.TotalDecayed),
		nanos(next.LastDecayAppliedAt), next.DailyDecayRateBps, next.TreasurySplitBps, boolInt(next.Paused),
		nanos(prev.LastDecayAppliedAt), boolInt(prev.Paused), u64(prev.TotalSupply))
	if err != nil {
		return errors.Wrap(err, "save decay state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "save decay state")
	}
	if n != 1 {
		return decay.ErrStateConflict
	}
	return nil
}
