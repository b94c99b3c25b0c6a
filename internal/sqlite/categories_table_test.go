package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func paths(t *testing.T, tbl types.Table, filter map[string]any) []string {
	t.Helper()
	got, err := tbl.Fetch(filter)
	require.NoError(t, err)
	out := make([]string, len(got))
	for i, g := range got {
		out[i] = g.(*types.Category).Path()
	}
	return out
}

func TestCategoryTree(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	l := createLedger(t, b, "Home")
	cats := mustTable(t, b, types.CategoriesTable)
	filter := map[string]any{"ledger_id": l.LedgerID, "type": types.CategoryPayment}

	assert.Equal(t, []string{"Cash", "Debit card", "Credit card", "Bank transfer"}, paths(t, cats, filter))

	pay := &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "Credit card", Category2: "Visa"}
	_, err := cats.Set("", pay)
	require.NoError(t, err)
	assert.Equal(t, 1, pay.Ordinal)
	_, err = cats.Set("", &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "Credit card", Category2: "Amex"})
	require.NoError(t, err)

	top := &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "Gift card"}
	topID, err := cats.Set("", top)
	require.NoError(t, err)
	assert.Equal(t, 5, top.Ordinal)

	assert.Equal(t, []string{"Cash", "Debit card", "Credit card", "Credit card/Visa", "Credit card/Amex", "Bank transfer", "Gift card"},
		paths(t, cats, filter))

	_, err = cats.Set("", &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "Cash"})
	assert.ErrorIs(t, err, types.ErrDuplicate)
	_, err = cats.Set("", &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "Crypto", Category2: "BTC"})
	assert.ErrorIs(t, err, types.ErrInvalidCategory, "parent must exist")
	_, err = cats.Set("", &types.Category{LedgerID: l.LedgerID, Type: "budget", Category1: "X"})
	assert.ErrorIs(t, err, types.ErrInvalidCategoryType)
	_, err = cats.Set("", &types.Category{LedgerID: l.LedgerID, Type: types.CategoryPayment, Category1: "a/b"})
	assert.ErrorIs(t, err, types.ErrInvalidCategory)

	// Renaming a top-level node carries its children along.
	credit, err := cats.Fetch(map[string]any{"ledger_id": l.LedgerID, "type": types.CategoryPayment, "category1": "Credit card"})
	require.NoError(t, err)
	parent := credit[0].(*types.Category)
	require.True(t, parent.IsTopLevel())
	parent.Category1 = "Cards"
	_, err = cats.Set(parent.CategoryID, parent)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cards", "Cards/Visa", "Cards/Amex"},
		paths(t, cats, map[string]any{"ledger_id": l.LedgerID, "type": types.CategoryPayment, "category1": "Cards"}))

	// Deleting a top-level node removes its children.
	require.NoError(t, cats.Delete(parent.CategoryID))
	assert.Equal(t, []string{"Cash", "Debit card", "Bank transfer", "Gift card"}, paths(t, cats, filter))

	require.NoError(t, cats.Delete(topID))
	assert.ErrorIs(t, cats.Delete(topID), types.ErrNotFound)
}
