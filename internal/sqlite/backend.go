// Package sqlite implements the homebook storage backend. SQLite is the query
// engine; JSONL files in the data directory are the source of truth and are
// loaded into a fresh database on every Attach.
//
// Transactions are partitioned on disk by ledger and month
// (transactions/<ledger_id>/<YYYY-MM>.jsonl) so a change rewrites a single
// month file. Sensitive fields are sealed with the ledger key before they
// reach either SQLite or JSONL when Config.EncryptFields is set.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/homebook/internal/fieldcrypt"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// dbFileName is the SQLite file created inside DataDir.
const dbFileName = "homebook.db"

// Backend implements types.Store using SQLite as the query engine and JSONL
// files as the source of truth.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	dataDir  string
	db       *sql.DB
	tables   map[string]types.Table
	keys     *fieldcrypt.KeyCache
	logger   *zap.Logger
	now      func() time.Time

	// Sync strategy state.
	syncStrategy  string
	batchSize     int
	batchInterval time.Duration
	pendingOrder  []string                // keys of pendingWrites in arrival order
	pendingWrites map[string]pendingWrite // deduplicated by target file
	batchTimer    *time.Timer
	batchMu       sync.Mutex // protects pendingOrder, pendingWrites and batchTimer
}

// pendingWrite is a deferred JSONL write used by the on_close and batch
// sync strategies. Writes to the same file collapse into one.
type pendingWrite struct {
	target  string
	persist func() error
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for load diagnostics and flush failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[string]types.Table),
		keys:   fieldcrypt.NewKeyCache(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ types.Store = (*Backend)(nil)

// GetTable returns the Table for the given name.
// Returns ErrStoreDetached if the backend is not attached and
// ErrTableNotFound if the name is not a standard table.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	table, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return table, nil
}

// Attach validates config, creates DataDir, builds a fresh SQLite schema and
// loads every JSONL file into it.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(filepath.Join(dataDir, transactionsDir), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// The database is a disposable index over the JSONL files.
	dbPath := filepath.Join(dataDir, dbFileName)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}
	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir, b.logger); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config
	b.dataDir = dataDir
	b.syncStrategy = config.EffectiveSyncStrategy()
	b.batchSize = config.EffectiveBatchSize()
	b.batchInterval = time.Duration(config.EffectiveBatchInterval()) * time.Second
	b.pendingOrder = nil
	b.pendingWrites = make(map[string]pendingWrite)
	b.attached = true

	b.tables[types.LedgersTable] = &ledgersTable{backend: b}
	b.tables[types.MembersTable] = &membersTable{backend: b}
	b.tables[types.InvitationsTable] = &invitationsTable{backend: b}
	b.tables[types.TransactionsTable] = &transactionsTable{backend: b}
	b.tables[types.AssetsTable] = &assetsTable{backend: b}
	b.tables[types.AssetMutationsTable] = &assetMutationsTable{backend: b}
	b.tables[types.CategoriesTable] = &categoriesTable{backend: b}

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}

	b.logger.Debug("storage attached",
		zap.String("data_dir", dataDir),
		zap.String("sync", b.syncStrategy),
		zap.Bool("encrypt_fields", config.EncryptFields))
	return nil
}

// Detach flushes pending writes and releases the database. After Detach,
// GetTable returns ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.tables = make(map[string]types.Table)
	b.keys = fieldcrypt.NewKeyCache()
	return nil
}

// Flush writes every queued JSONL change now. It is a no-op for the
// immediate strategy.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return b.flushPendingWritesLocked()
}

// lockWrite takes the write lock for a table mutation. It fails with
// ErrStoreDetached, releasing the lock, when the backend is detached.
func (b *Backend) lockWrite() error {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return types.ErrStoreDetached
	}
	return nil
}

// lockRead is the read-lock counterpart of lockWrite.
func (b *Backend) lockRead() error {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		return types.ErrStoreDetached
	}
	return nil
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// persist runs a JSONL write according to the sync strategy. target names
// the file being rewritten and deduplicates queued writes.
// The caller must hold b.mu.
func (b *Backend) persist(target string, fn func() error) error {
	if b.syncStrategy == types.SyncImmediate {
		return fn()
	}
	b.queueWrite(target, fn)
	return nil
}

// queueWrite adds a write to the pending queue. For the batch strategy the
// queue is flushed once it reaches batchSize.
func (b *Backend) queueWrite(target string, fn func() error) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if _, ok := b.pendingWrites[target]; !ok {
		b.pendingOrder = append(b.pendingOrder, target)
	}
	b.pendingWrites[target] = pendingWrite{target: target, persist: fn}

	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 && len(b.pendingOrder) >= b.batchSize {
		if err := b.flushPendingWritesBatchLocked(); err != nil {
			b.logger.Warn("batch flush failed", zap.Error(err))
		}
	}
}

// flushPendingWritesLocked flushes all pending writes.
// The caller must hold b.mu.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked executes pending writes in arrival order.
// Writes that fail stay queued for the next flush.
// The caller must hold b.batchMu.
func (b *Backend) flushPendingWritesBatchLocked() error {
	for len(b.pendingOrder) > 0 {
		target := b.pendingOrder[0]
		pw := b.pendingWrites[target]
		if err := pw.persist(); err != nil {
			return fmt.Errorf("flush %s: %w", pw.target, err)
		}
		delete(b.pendingWrites, target)
		b.pendingOrder = b.pendingOrder[1:]
	}
	b.pendingOrder = nil
	return nil
}

// pendingCount returns the number of queued writes.
func (b *Backend) pendingCount() int {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return len(b.pendingOrder)
}

// startBatchTimer starts the periodic flush for the batch strategy.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}
		if err := b.flushPendingWritesLocked(); err != nil {
			b.logger.Warn("interval flush failed", zap.Error(err))
		}

		b.batchMu.Lock()
		if b.batchTimer != nil {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the batch interval timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}

// timestamp returns the current time in UTC.
func (b *Backend) timestamp() time.Time {
	return b.now().UTC()
}

// ledgerExists reports whether a ledger row exists.
// The caller must hold b.mu.
func (b *Backend) ledgerExists(ledgerID string) (bool, error) {
	var one int
	err := b.db.QueryRow("SELECT 1 FROM ledgers WHERE ledger_id = ?", ledgerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ledger: %w", err)
	}
	return true, nil
}

// requireLedger returns ErrNotFound wrapped with context when the ledger
// does not exist.
func (b *Backend) requireLedger(ledgerID string) error {
	if ledgerID == "" {
		return fmt.Errorf("ledger_id: %w", types.ErrInvalidID)
	}
	ok, err := b.ledgerExists(ledgerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger %s: %w", ledgerID, types.ErrNotFound)
	}
	return nil
}
