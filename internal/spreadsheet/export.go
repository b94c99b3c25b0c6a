// Package spreadsheet reads and writes ledger workbooks.
//
// An exported workbook has one sheet per month named YYYY-MM, followed by
// an Assets and a Categories sheet. Import accepts the same layout, or a
// single Transactions sheet, and validates every row before returning
// anything. Legacy converts one-off spreadsheets through a column mapping.
package spreadsheet

import (
	"fmt"
	"io"
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Sheet names besides the month sheets.
const (
	TransactionsSheet = "Transactions"
	AssetsSheet       = "Assets"
	CategoriesSheet   = "Categories"
)

// Header is the column order of a transaction sheet.
var Header = []string{"Date", "Type", "Category1", "Category2", "Payment", "Amount", "Description", "Memo"}

// Labels of the totals rows at the bottom of a month sheet. Import skips
// rows whose date cell starts with "Total".
const (
	totalIncomeLabel  = "Total income"
	totalExpenseLabel = "Total expense"
)

// Column letters of Type and Amount in Header.
const (
	typeCol   = "B"
	amountCol = "F"
)

// ExportData is the content of an exported workbook.
type ExportData struct {
	Currency     string
	Transactions []*types.Transaction
	Assets       []*types.Asset
	Categories   []*types.Category
}

// Export writes data as an xlsx workbook to w.
func Export(w io.Writer, data ExportData) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f, data.Currency)
	if err != nil {
		return err
	}

	byMonth := make(map[string][]*types.Transaction)
	for _, tx := range data.Transactions {
		byMonth[tx.Month()] = append(byMonth[tx.Month()], tx)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, m := range months {
		if err := writeMonth(f, st, m, byMonth[m]); err != nil {
			return fmt.Errorf("writing sheet %s: %w", m, err)
		}
	}
	if err := writeAssets(f, st, data.Assets); err != nil {
		return fmt.Errorf("writing sheet %s: %w", AssetsSheet, err)
	}
	if err := writeCategories(f, st, data.Categories); err != nil {
		return fmt.Errorf("writing sheet %s: %w", CategoriesSheet, err)
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

type styles struct {
	header int
	amount int
}

// newStyles creates the bold header style and an amount format that shows
// the currency's minor units.
func newStyles(f *excelize.File, currency string) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return styles{}, err
	}
	numFmt := 4 // #,##0.00
	if cur := money.GetCurrency(currency); cur != nil && cur.Fraction == 0 {
		numFmt = 3 // #,##0
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
	if err != nil {
		return styles{}, err
	}
	return styles{header: header, amount: amount}, nil
}

func writeHeader(f *excelize.File, st styles, sheet string, header []string) error {
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, st.header)
}

func writeMonth(f *excelize.File, st styles, month string, txs []*types.Transaction) error {
	if _, err := f.NewSheet(month); err != nil {
		return err
	}
	if err := writeHeader(f, st, month, Header); err != nil {
		return err
	}

	sorted := make([]*types.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for i, tx := range sorted {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			tx.Date.Format(types.DateLayout), tx.Type, tx.Category1, tx.Category2,
			tx.Payment, nil, tx.Description, tx.Memo,
		}
		if err := f.SetSheetRow(month, cell, &row); err != nil {
			return err
		}
		if err := setAmount(f, month, fmt.Sprintf("%s%d", amountCol, i+2), tx.Amount); err != nil {
			return err
		}
	}

	first, last := 2, len(sorted)+1
	totalRow := last + 2
	if err := writeTotal(f, st, month, totalRow, totalIncomeLabel, types.TransactionIncome, first, last); err != nil {
		return err
	}
	if err := writeTotal(f, st, month, totalRow+1, totalExpenseLabel, types.TransactionExpense, first, last); err != nil {
		return err
	}

	amountFirst := fmt.Sprintf("%s%d", amountCol, first)
	amountLast := fmt.Sprintf("%s%d", amountCol, totalRow+1)
	if err := f.SetCellStyle(month, amountFirst, amountLast, st.amount); err != nil {
		return err
	}
	return f.SetColWidth(month, "A", "A", 12)
}

// writeTotal writes a labelled SUMIF over the amount column restricted to
// one transaction type.
func writeTotal(f *excelize.File, st styles, sheet string, row int, label, typ string, first, last int) error {
	labelCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, labelCell, label); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, labelCell, labelCell, st.header); err != nil {
		return err
	}
	formula := "0"
	if last >= first {
		formula = fmt.Sprintf(`SUMIF(%s%d:%s%d,"%s",%s%d:%s%d)`,
			typeCol, first, typeCol, last, typ, amountCol, first, amountCol, last)
	}
	return f.SetCellFormula(sheet, fmt.Sprintf("%s%d", amountCol, row), formula)
}

// setAmount stores d as a numeric cell holding its exact decimal digits.
// Going through float64 would round amounts past 15 significant digits.
func setAmount(f *excelize.File, sheet, cell string, d decimal.Decimal) error {
	return f.SetCellDefault(sheet, cell, d.String())
}

func writeAssets(f *excelize.File, st styles, assets []*types.Asset) error {
	if _, err := f.NewSheet(AssetsSheet); err != nil {
		return err
	}
	if err := writeHeader(f, st, AssetsSheet, []string{"Kind", "Name", "Balance", "Category1", "Category2", "Memo"}); err != nil {
		return err
	}
	for i, a := range assets {
		row := []any{a.Kind, a.Name, nil, a.Category1, a.Category2, a.Memo}
		if err := f.SetSheetRow(AssetsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
		if err := setAmount(f, AssetsSheet, fmt.Sprintf("C%d", i+2), a.Balance); err != nil {
			return err
		}
	}
	if len(assets) == 0 {
		return nil
	}
	return f.SetCellStyle(AssetsSheet, "C2", fmt.Sprintf("C%d", len(assets)+1), st.amount)
}

func writeCategories(f *excelize.File, st styles, cats []*types.Category) error {
	if _, err := f.NewSheet(CategoriesSheet); err != nil {
		return err
	}
	if err := writeHeader(f, st, CategoriesSheet, []string{"Type", "Category1", "Category2", "Ordinal"}); err != nil {
		return err
	}
	for i, c := range cats {
		row := []any{c.Type, c.Category1, c.Category2, c.Ordinal}
		if err := f.SetSheetRow(CategoriesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}
