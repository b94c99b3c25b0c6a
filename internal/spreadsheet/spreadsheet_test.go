package spreadsheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func day(s string) time.Time {
	d, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// workbook builds an xlsx with the given sheets; each sheet is a list of
// rows starting at A1.
func workbook(t *testing.T, sheets map[string][][]any, order ...string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, name := range order {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestExportImportRoundTrip(t *testing.T) {
	txs := []*types.Transaction{
		{Type: types.TransactionExpense, Date: day("2024-05-03"), Amount: decimal.RequireFromString("12.5"),
			Category1: "Food", Category2: "Coffee", Payment: "Cash", Description: "flat white", Memo: "office"},
		{Type: types.TransactionIncome, Date: day("2024-05-25"), Amount: decimal.NewFromInt(3000), Category1: "Salary"},
		{Type: types.TransactionExpense, Date: day("2024-06-01"), Amount: decimal.NewFromInt(900), Category1: "Housing", Category2: "Rent"},
	}
	var buf bytes.Buffer
	err := Export(&buf, ExportData{
		Currency:     "USD",
		Transactions: txs,
		Assets:       []*types.Asset{{Kind: types.AssetAccount, Name: "Checking", Balance: decimal.NewFromInt(100)}},
		Categories:   []*types.Category{{Type: types.CategoryExpense, Category1: "Food", Ordinal: 1}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05", "2024-06", AssetsSheet, CategoriesSheet}, f.GetSheetList())
	formula, err := f.GetCellFormula("2024-05", "F5")
	require.NoError(t, err)
	assert.Equal(t, `SUMIF(B2:B3,"income",F2:F3)`, formula)
	assets, err := f.GetRows(AssetsSheet)
	require.NoError(t, err)
	assert.Equal(t, "Checking", assets[1][1])
	require.NoError(t, f.Close())

	res, err := Import(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05", "2024-06"}, res.Sheets)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, 6, res.Skipped, "totals rows and the gap before them")

	first := res.Transactions[0]
	assert.Equal(t, "2024-05-03", first.Date.Format(types.DateLayout))
	assert.Equal(t, types.TransactionExpense, first.Type)
	assert.Equal(t, "12.5", first.Amount.String())
	assert.Equal(t, "Coffee", first.Category2)
	assert.Equal(t, "Cash", first.Payment)
	assert.Equal(t, "flat white", first.Description)
	assert.Equal(t, "office", first.Memo)
	assert.Equal(t, "Housing", res.Transactions[2].Category1)
}

func TestExportKeepsExactAmounts(t *testing.T) {
	const big = "12345678901234567.89"
	var buf bytes.Buffer
	err := Export(&buf, ExportData{
		Currency: "USD",
		Transactions: []*types.Transaction{
			{Type: types.TransactionIncome, Date: day("2024-05-03"), Amount: decimal.RequireFromString(big), Category1: "Salary"},
			{Type: types.TransactionExpense, Date: day("2024-05-04"), Amount: decimal.RequireFromString("0.1"), Category1: "Food"},
		},
		Assets: []*types.Asset{{Kind: types.AssetInvestment, Name: "Fund", Balance: decimal.RequireFromString(big)}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	balance, err := f.GetCellValue(AssetsSheet, "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, big, balance)
	typ, err := f.GetCellType("2024-05", "F2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ, "amounts are numbers, not text")
	require.NoError(t, f.Close())

	res, err := Import(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, big, res.Transactions[0].Amount.String())
	assert.Equal(t, "0.1", res.Transactions[1].Amount.String())
}

func TestImportAcceptsLooseFormats(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		TransactionsSheet: {
			{"memo", "AMOUNT", "Category1", "type", "date"},
			{"", "1,250,000", "Salary", "+", "2024/05/25"},
			{"", "3.5", "Food", "-", "2024.5.2"},
			{"serial", 7, "Food", "expense", 45413},
			{},
		},
		"Notes": {{"ignored sheet"}},
	}, TransactionsSheet, "Notes")

	res, err := Import(buf)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, "1250000", res.Transactions[0].Amount.String())
	assert.Equal(t, types.TransactionIncome, res.Transactions[0].Type)
	assert.Equal(t, "2024-05-02", res.Transactions[1].Date.Format(types.DateLayout))
	assert.Equal(t, "2024-05-01", res.Transactions[2].Date.Format(types.DateLayout))
	assert.Equal(t, "serial", res.Transactions[2].Memo)
}

func TestImportCollectsRowErrors(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		"2024-05": {
			{"Date", "Type", "Category1", "Amount"},
			{"2024-05-01", "expense", "Food", "10"},
			{"2024-06-01", "expense", "Food", "10"},
			{"yesterday", "gift", "", "-5"},
			{"2024-05-09", "income", "a/b", "abc"},
		},
		TransactionsSheet: {
			{"Date", "Amount"},
		},
	}, "2024-05", TransactionsSheet)

	_, err := Import(buf)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)

	cells := make([]string, 0, len(verr.Errors))
	for _, e := range verr.Errors {
		cells = append(cells, e.Sheet+"!"+e.Cell)
	}
	assert.Equal(t, []string{
		"2024-05!A3",
		"2024-05!A4", "2024-05!B4", "2024-05!D4", "2024-05!C4",
		"2024-05!D5", "2024-05!C5",
		"Transactions!A1", "Transactions!A1",
	}, cells)
	assert.Contains(t, verr.Errors[0].Message, "not in 2024-05")
	assert.Contains(t, err.Error(), "and 8 more errors")
}

func TestImportWithoutTransactionSheet(t *testing.T) {
	buf := workbook(t, map[string][][]any{"Budget": {{"x"}}}, "Budget")
	_, err := Import(buf)
	assert.ErrorIs(t, err, ErrNoTransactionSheet)
}

func TestImportRejectsNonWorkbook(t *testing.T) {
	_, err := Import(strings.NewReader("date,amount\n2024-05-01,10\n"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("date=a, amount=D ,category1=B,category2=C,header=2,default_type=income,sheet=Ledger")
	require.NoError(t, err)
	assert.Equal(t, Layout{Sheet: "Ledger", HeaderRows: 2, Date: "A", Amount: "D", Category1: "B", Category2: "C",
		DefaultType: types.TransactionIncome}, l)

	for _, bad := range []string{
		"date=A,amount=B",
		"date=A,amount=B,category1=C,color=D",
		"date=A,amount=B,category1=1",
		"date=A;amount=B",
		"date=A,amount=B,category1=C,header=-1",
		"date=A,amount=B,category1=C,default_type=gift",
	} {
		_, err := ParseLayout(bad)
		assert.ErrorIs(t, err, ErrInvalidLayout, bad)
	}
}

func TestLegacy(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		"Household": {
			{"Household book 2023"},
			{"Date", "Item", "Where", "Amount", "Note"},
			{"2023-12-01", "Food", "Market", -42.5, "weekly shop"},
			{"2023-12-02", "Salary", "", 3000, ""},
			{"Total", "", "", 2957.5, ""},
		},
	}, "Household")

	layout, err := ParseLayout("date=A,category1=B,category2=C,amount=D,memo=E,header=2,default_type=income")
	require.NoError(t, err)
	res, err := Legacy(buf, layout)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, 1, res.Skipped)

	shop := res.Transactions[0]
	assert.Equal(t, types.TransactionExpense, shop.Type)
	assert.Equal(t, "42.5", shop.Amount.String())
	assert.Equal(t, "Market", shop.Category2)
	assert.Equal(t, "weekly shop", shop.Memo)
	assert.Equal(t, types.TransactionIncome, res.Transactions[1].Type)
}

func TestLegacyReportsCells(t *testing.T) {
	buf := workbook(t, map[string][][]any{
		"Sheet": {
			{"Date", "Amount", "Category"},
			{"someday", 0, ""},
		},
	}, "Sheet")
	_, err := Legacy(buf, Layout{HeaderRows: 1, Date: "A", Amount: "B", Category1: "C"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 3)
	assert.Equal(t, "A2", verr.Errors[0].Cell)
	assert.Equal(t, "B2", verr.Errors[1].Cell)
	assert.Equal(t, "C2", verr.Errors[2].Cell)
}
