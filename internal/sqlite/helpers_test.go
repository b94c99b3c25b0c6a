package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// attachBackend attaches a fresh backend in dir and detaches it on cleanup.
func attachBackend(t *testing.T, dir string, mutate ...func(*types.Config)) *Backend {
	t.Helper()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}
	for _, m := range mutate {
		m(&cfg)
	}
	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

func encrypted(cfg *types.Config) { cfg.EncryptFields = true }

func mustTable(t *testing.T, b *Backend, name string) types.Table {
	t.Helper()
	tbl, err := b.GetTable(name)
	require.NoError(t, err)
	return tbl
}

func createLedger(t *testing.T, b *Backend, name string) *types.Ledger {
	t.Helper()
	l := &types.Ledger{Name: name, OwnerID: "alice"}
	_, err := mustTable(t, b, types.LedgersTable).Set("", l)
	require.NoError(t, err)
	return l
}

func addTransaction(t *testing.T, b *Backend, ledgerID, date, amount, category1 string) *types.Transaction {
	t.Helper()
	d, err := time.Parse(types.DateLayout, date)
	require.NoError(t, err)
	tx := &types.Transaction{
		LedgerID:    ledgerID,
		Type:        types.TransactionExpense,
		Date:        d,
		Amount:      decimal.RequireFromString(amount),
		Category1:   category1,
		Description: "lunch with the team",
		CreatedBy:   "alice",
	}
	_, err = mustTable(t, b, types.TransactionsTable).Set("", tx)
	require.NoError(t, err)
	return tx
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	content := strings.TrimSpace(readFile(t, path))
	if content == "" {
		return 0
	}
	return len(strings.Split(content, "\n"))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func partition(dir, ledgerID, month string) string {
	return filepath.Join(dir, transactionsDir, ledgerID, month+".jsonl")
}
