package sqlite

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func importRow(date, amount, c1, c2 string) *types.Transaction {
	d, _ := time.Parse(types.DateLayout, date)
	return &types.Transaction{Type: types.TransactionExpense, Date: d, Amount: decimal.RequireFromString(amount),
		Category1: c1, Category2: c2, CreatedBy: "alice"}
}

func TestImportTransactions(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir)
	l := createLedger(t, b, "Home")

	cats := []*types.Category{
		{Type: types.CategoryExpense, Category1: "Transit"},
		{Type: types.CategoryExpense, Category1: "Transit", Category2: "Trains"},
		{Type: types.CategoryExpense, Category1: "Food"}, // seeded already
	}
	rows := []*types.Transaction{
		importRow("2024-05-02", "10", "Transit", "Trains"),
		importRow("2024-05-09", "12.5", "Transit", "Trains"),
		importRow("2024-06-01", "3", "Food", ""),
	}
	created, err := b.ImportTransactions(l.LedgerID, cats, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	for _, r := range rows {
		assert.NotEmpty(t, r.TransactionID)
		assert.Equal(t, l.LedgerID, r.LedgerID)
	}
	assert.NotEmpty(t, cats[2].CategoryID, "existing node keeps its id")

	assert.Equal(t, 2, countLines(t, partition(dir, l.LedgerID, "2024-05")))
	assert.Equal(t, 1, countLines(t, partition(dir, l.LedgerID, "2024-06")))
	assert.Contains(t, readFile(t, dir+"/categories.jsonl"), "Trains")

	got, err := mustTable(t, b, types.TransactionsTable).Get(rows[1].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "12.5", got.(*types.Transaction).Amount.String())
}

func TestImportTransactionsWritesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	b := attachBackend(t, dir)
	l := createLedger(t, b, "Home")
	before := readFile(t, dir+"/categories.jsonl")

	cats := []*types.Category{
		{Type: types.CategoryExpense, Category1: "Transit"},
		{Type: types.CategoryExpense, Category1: "Boats", Category2: "Ferries"}, // parent missing
	}
	_, err := b.ImportTransactions(l.LedgerID, cats, []*types.Transaction{importRow("2024-05-02", "10", "Transit", "")})
	assert.ErrorIs(t, err, types.ErrInvalidCategory)

	_, err = b.ImportTransactions(l.LedgerID, nil, []*types.Transaction{
		importRow("2024-05-02", "10", "Food", ""),
		importRow("2024-05-03", "0", "Food", ""),
	})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	all, err := mustTable(t, b, types.TransactionsTable).Fetch(map[string]any{"ledger_id": l.LedgerID})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.False(t, fileExists(partition(dir, l.LedgerID, "2024-05")))
	assert.Equal(t, before, readFile(t, dir+"/categories.jsonl"))

	transit, err := mustTable(t, b, types.CategoriesTable).Fetch(map[string]any{"ledger_id": l.LedgerID, "category1": "Transit"})
	require.NoError(t, err)
	assert.Empty(t, transit)

	_, err = b.ImportTransactions("missing", nil, []*types.Transaction{importRow("2024-05-02", "10", "Food", "")})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
