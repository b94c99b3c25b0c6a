package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func TestBackendAttachDetach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(cfg))
	assert.FileExists(t, filepath.Join(dir, dbFileName))
	for _, spec := range flatSpecs {
		assert.FileExists(t, filepath.Join(dir, spec.file))
	}
	assert.DirExists(t, filepath.Join(dir, transactionsDir))
	assert.ErrorIs(t, b.Attach(cfg), types.ErrAlreadyAttached)

	for _, name := range types.StandardTableNames {
		_, err := b.GetTable(name)
		assert.NoError(t, err, name)
	}
	_, err := b.GetTable("widgets")
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")
	_, err = b.GetTable(types.LedgersTable)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func TestBackendAttachRejectsBadConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "postgres"}), types.ErrBackendUnknown)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendSQLite, SyncStrategy: "never"}),
		types.ErrSyncStrategyUnknown)
}

func TestTableOperationsFailAfterDetach(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	ledgers := mustTable(t, b, types.LedgersTable)
	require.NoError(t, b.Detach())

	_, err := ledgers.Fetch(nil)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = ledgers.Set("", &types.Ledger{Name: "Home", OwnerID: "alice"})
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func TestReloadFromJSONL(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir)
	l := createLedger(t, b, "Home")
	tx := addTransaction(t, b, l.LedgerID, "2024-05-03", "12500", "Food")
	require.NoError(t, b.Detach())

	reopened := attachBackend(t, dir)
	got, err := mustTable(t, reopened, types.TransactionsTable).Get(tx.TransactionID)
	require.NoError(t, err)
	loaded := got.(*types.Transaction)
	assert.Equal(t, "12500", loaded.Amount.String())
	assert.Equal(t, "2024-05", loaded.Month())
	assert.Equal(t, "lunch with the team", loaded.Description)
	assert.True(t, loaded.CreatedAt.Equal(tx.CreatedAt))

	gotLedger, err := mustTable(t, reopened, types.LedgersTable).Get(l.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, l.EncryptionKey, gotLedger.(*types.Ledger).EncryptionKey)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"ledger_id":"l1","name":"Home","owner_id":"alice","currency":"KRW","encryption_key":"","created_at":"2024-01-01T00:00:00.000000000Z","updated_at":"2024-01-01T00:00:00.000000000Z","future_field":1}
not json at all
{"name":"no id"}

{"ledger_id":"l2","name":"Trip","owner_id":"bob","currency":"USD"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledgers.jsonl"), []byte(content), 0o644))

	b := attachBackend(t, dir)
	all, err := mustTable(t, b, types.LedgersTable).Fetch(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadDerivesMissingMonth(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir)
	l := createLedger(t, b, "Home")
	require.NoError(t, b.Detach())

	path := partition(dir, l.LedgerID, "2024-07")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	line := `{"transaction_id":"t1","ledger_id":"` + l.LedgerID + `","type":"income","date":"2024-07-25","amount":"3000000","category1":"Salary"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line), 0o644))

	reopened := attachBackend(t, dir)
	months, err := reopened.Months(l.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-07"}, months)
}

func TestSyncOnCloseDefersWrites(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir, func(c *types.Config) { c.SyncStrategy = types.SyncOnClose })
	l := createLedger(t, b, "Home")
	addTransaction(t, b, l.LedgerID, "2024-05-03", "100", "Food")
	addTransaction(t, b, l.LedgerID, "2024-05-04", "200", "Food")

	assert.Equal(t, 0, countLines(t, filepath.Join(dir, "ledgers.jsonl")))
	assert.False(t, fileExists(partition(dir, l.LedgerID, "2024-05")))
	assert.Equal(t, 3, b.pendingCount(), "writes to the same file collapse")

	require.NoError(t, b.Detach())
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "ledgers.jsonl")))
	assert.Equal(t, 2, countLines(t, partition(dir, l.LedgerID, "2024-05")))
}

func TestSyncBatchFlushesOnSize(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir, func(c *types.Config) {
		c.SyncStrategy = types.SyncBatch
		c.BatchSize = 3
		c.BatchInterval = 3600
	})
	l := createLedger(t, b, "Home") // queues ledgers and categories
	assert.Equal(t, 2, b.pendingCount())
	assert.Equal(t, 0, countLines(t, filepath.Join(dir, "ledgers.jsonl")))

	addTransaction(t, b, l.LedgerID, "2024-05-03", "100", "Food")
	assert.Equal(t, 0, b.pendingCount())
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "ledgers.jsonl")))
	assert.Equal(t, 1, countLines(t, partition(dir, l.LedgerID, "2024-05")))
}

func TestFlush(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir, func(c *types.Config) { c.SyncStrategy = types.SyncOnClose })
	createLedger(t, b, "Home")
	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.pendingCount())
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "ledgers.jsonl")))
}
