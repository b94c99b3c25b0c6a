// Package txcache keeps transactions in memory sharded by ledger and month.
//
// Load fetches only the months not yet held, in parallel, and merges the
// results into the shards. Concurrent loads of the same month share one
// fetch. Writes merge with last-write-wins on UpdatedAt.
package txcache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// DefaultConcurrency bounds the number of months fetched at once.
const DefaultConcurrency = 4

// Source reads the stored transactions of one ledger month.
type Source interface {
	FetchMonth(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error)

// FetchMonth calls f.
func (f SourceFunc) FetchMonth(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error) {
	return f(ctx, ledgerID, month)
}

type shardKey struct {
	ledgerID string
	month    string
}

func (k shardKey) String() string {
	return k.ledgerID + "/" + k.month
}

// shard holds the transactions of one ledger month. A shard can exist
// without being loaded when Put added entries before the month was fetched.
type shard struct {
	loaded bool
	txs    map[string]*types.Transaction
}

// Cache is a month-sharded transaction cache. It is safe for concurrent use.
type Cache struct {
	source      Source
	concurrency int
	logger      *zap.Logger

	group singleflight.Group

	mu     sync.RWMutex
	shards map[shardKey]*shard
	months map[string]map[string]string // ledger -> transaction -> month
	gen    map[string]uint64            // ledger -> invalidation generation
	epoch  uint64                       // bumped by Reset

	// Tombstones of removed transactions, kept while fetches are in flight
	// so a fetch that read storage before the removal cannot restore them.
	removed  map[removedKey]uint64 // -> removal sequence
	seq      uint64
	inflight int
}

type removedKey struct {
	ledgerID, transactionID string
}

// Option configures a Cache.
type Option func(*Cache)

// WithConcurrency bounds parallel month fetches per Load call.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns an empty cache over source.
func New(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:      source,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
		shards:      make(map[shardKey]*shard),
		months:      make(map[string]map[string]string),
		gen:         make(map[string]uint64),
		removed:     make(map[removedKey]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the transactions of the given months, newest first. Months
// not yet loaded are fetched from the source. If any fetch fails the error
// is returned and the failed month stays unloaded; months fetched
// successfully remain cached.
func (c *Cache) Load(ctx context.Context, ledgerID string, months ...string) ([]*types.Transaction, error) {
	if ledgerID == "" {
		return nil, types.ErrInvalidID
	}
	for _, m := range months {
		if _, err := types.ParseMonth(m); err != nil {
			return nil, err
		}
	}

	missing := c.missing(ledgerID, months)
	if len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for _, m := range missing {
			key := shardKey{ledgerID: ledgerID, month: m}
			g.Go(func() error {
				_, err, _ := c.group.Do(key.String(), func() (any, error) {
					return nil, c.fetch(gctx, key)
				})
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return c.collect(ledgerID, months), nil
}

// missing returns the requested months that are not loaded, deduplicated.
func (c *Cache) missing(ledgerID string, months []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool, len(months))
	var out []string
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		if s, ok := c.shards[shardKey{ledgerID, m}]; !ok || !s.loaded {
			out = append(out, m)
		}
	}
	return out
}

// fetch reads one month from the source and merges it. The shard is only
// marked loaded if the ledger was not invalidated while the fetch ran.
// Transactions removed while the fetch ran are not merged.
func (c *Cache) fetch(ctx context.Context, key shardKey) error {
	c.mu.Lock()
	gen, epoch, start := c.gen[key.ledgerID], c.epoch, c.seq
	c.inflight++
	c.mu.Unlock()

	txs, err := c.source.FetchMonth(ctx, key.ledgerID, key.month)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.doneFetchLocked()
	if err != nil {
		c.logger.Debug("month fetch failed", zap.String("shard", key.String()), zap.Error(err))
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	if c.gen[key.ledgerID] != gen || c.epoch != epoch {
		return nil
	}
	for _, tx := range txs {
		if tx == nil || tx.LedgerID != key.ledgerID {
			continue
		}
		if c.removed[removedKey{tx.LedgerID, tx.TransactionID}] > start {
			continue
		}
		c.mergeLocked(tx.Clone())
	}
	c.shardLocked(key).loaded = true
	c.logger.Debug("month loaded", zap.String("shard", key.String()), zap.Int("transactions", len(txs)))
	return nil
}

// doneFetchLocked drops the tombstones once no fetch can still hold a
// stale read.
func (c *Cache) doneFetchLocked() {
	c.inflight--
	if c.inflight == 0 && len(c.removed) > 0 {
		c.removed = make(map[removedKey]uint64)
	}
}

// collect copies the cached transactions of months, newest first.
func (c *Cache) collect(ledgerID string, months []string) []*types.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool, len(months))
	out := []*types.Transaction{}
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		s, ok := c.shards[shardKey{ledgerID, m}]
		if !ok {
			continue
		}
		for _, tx := range s.txs {
			out = append(out, tx.Clone())
		}
	}
	Sort(out)
	return out
}

// Sort orders transactions by date, then creation time, newest first, with
// the ID as a final tiebreak.
func Sort(txs []*types.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.TransactionID > b.TransactionID
	})
}

// Put merges tx into its month shard and reports whether it was applied.
// An entry whose UpdatedAt is older than the cached one is ignored. If the
// transaction moved to another month it leaves its old shard.
func (c *Cache) Put(tx *types.Transaction) bool {
	if tx == nil || tx.LedgerID == "" || tx.TransactionID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked(tx.Clone())
}

func (c *Cache) mergeLocked(tx *types.Transaction) bool {
	byID := c.months[tx.LedgerID]
	if byID == nil {
		byID = make(map[string]string)
		c.months[tx.LedgerID] = byID
	}
	if oldMonth, ok := byID[tx.TransactionID]; ok {
		if old := c.shards[shardKey{tx.LedgerID, oldMonth}]; old != nil {
			if cur := old.txs[tx.TransactionID]; cur != nil && tx.UpdatedAt.Before(cur.UpdatedAt) {
				return false
			}
			delete(old.txs, tx.TransactionID)
		}
	}
	key := shardKey{tx.LedgerID, tx.Month()}
	c.shardLocked(key).txs[tx.TransactionID] = tx
	byID[tx.TransactionID] = key.month
	return true
}

func (c *Cache) shardLocked(key shardKey) *shard {
	s, ok := c.shards[key]
	if !ok {
		s = &shard{txs: make(map[string]*types.Transaction)}
		c.shards[key] = s
	}
	return s
}

// Remove drops a transaction from the cache. A month fetch already in
// flight will not bring it back.
func (c *Cache) Remove(ledgerID, transactionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight > 0 {
		c.seq++
		c.removed[removedKey{ledgerID, transactionID}] = c.seq
	}
	byID := c.months[ledgerID]
	month, ok := byID[transactionID]
	if !ok {
		return
	}
	delete(byID, transactionID)
	if s := c.shards[shardKey{ledgerID, month}]; s != nil {
		delete(s.txs, transactionID)
	}
}

// Invalidate forgets the given months of a ledger, or the whole ledger when
// no months are given. The next Load fetches them again.
func (c *Cache) Invalidate(ledgerID string, months ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen[ledgerID]++
	byID := c.months[ledgerID]
	drop := func(key shardKey) {
		s, ok := c.shards[key]
		if !ok {
			return
		}
		for id := range s.txs {
			delete(byID, id)
		}
		delete(c.shards, key)
	}

	if len(months) == 0 {
		for key := range c.shards {
			if key.ledgerID == ledgerID {
				drop(key)
			}
		}
		delete(c.months, ledgerID)
		return
	}
	for _, m := range months {
		drop(shardKey{ledgerID, m})
	}
}

// Loaded reports whether a ledger month has been fetched.
func (c *Cache) Loaded(ledgerID, month string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shards[shardKey{ledgerID, month}]
	return ok && s.loaded
}

// Len returns the number of cached transactions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.shards {
		n += len(s.txs)
	}
	return n
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.shards = make(map[shardKey]*shard)
	c.months = make(map[string]map[string]string)
}
