package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Workbook errors.
var (
	// ErrNoTransactionSheet is returned when a workbook has neither month
	// sheets nor a Transactions sheet.
	ErrNoTransactionSheet = errors.New("workbook has no transaction sheet")
	ErrUnreadable         = errors.New("not a readable xlsx workbook")
)

// RowError locates one invalid cell.
type RowError struct {
	Sheet   string `json:"sheet"`
	Cell    string `json:"cell"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s!%s: %s", e.Sheet, e.Cell, e.Message)
}

// ValidationError collects every RowError found in a workbook.
type ValidationError struct {
	Errors []RowError `json:"errors"`
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "workbook is invalid"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

func (e *ValidationError) add(sheet, cell, format string, args ...any) {
	e.Errors = append(e.Errors, RowError{Sheet: sheet, Cell: cell, Message: fmt.Sprintf(format, args...)})
}

// ImportResult holds the transactions parsed from a workbook. They carry
// no ledger or ID yet.
type ImportResult struct {
	Transactions []*types.Transaction
	Sheets       []string
	Skipped      int
}

var requiredColumns = []string{"date", "type", "category1", "amount"}

// Import parses every month sheet and the Transactions sheet of the
// workbook read from r. Rows are validated as a whole: if any row is
// invalid a *ValidationError listing all of them is returned and no
// transactions are.
func Import(r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	res := &ImportResult{}
	verr := &ValidationError{}
	for _, sheet := range f.GetSheetList() {
		month := ""
		switch {
		case types.ValidMonth(sheet):
			month = sheet
		case strings.EqualFold(sheet, TransactionsSheet):
		default:
			continue
		}
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		res.Sheets = append(res.Sheets, sheet)
		importSheet(sheet, month, rows, res, verr)
	}

	if len(res.Sheets) == 0 {
		return nil, ErrNoTransactionSheet
	}
	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return res, nil
}

func importSheet(sheet, month string, rows [][]string, res *ImportResult, verr *ValidationError) {
	if len(rows) == 0 {
		verr.add(sheet, "A1", "missing header row")
		return
	}
	cols := make(map[string]int)
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := cols[key]; key != "" && !dup {
			cols[key] = i
		}
	}
	missing := false
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			verr.add(sheet, "A1", "missing column %q", name)
			missing = true
		}
	}
	if missing {
		return
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	cell := func(line int, name string) string {
		c, _ := excelize.CoordinatesToCellName(cols[name]+1, line)
		return c
	}

	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) || isTotal(get(row, "date")) {
			res.Skipped++
			continue
		}
		tx := &types.Transaction{
			Category1:   get(row, "category1"),
			Category2:   get(row, "category2"),
			Payment:     get(row, "payment"),
			Description: get(row, "description"),
			Memo:        get(row, "memo"),
		}
		ok := true

		date, err := parseDate(get(row, "date"))
		switch {
		case err != nil:
			verr.add(sheet, cell(line, "date"), "%v", err)
			ok = false
		case month != "" && types.MonthOf(date) != month:
			verr.add(sheet, cell(line, "date"), "date %s is not in %s", date.Format(types.DateLayout), month)
			ok = false
		default:
			tx.Date = date
		}

		if typ, err := parseType(get(row, "type")); err != nil {
			verr.add(sheet, cell(line, "type"), "%v", err)
			ok = false
		} else {
			tx.Type = typ
		}

		amount, err := parseAmount(get(row, "amount"))
		switch {
		case err != nil:
			verr.add(sheet, cell(line, "amount"), "%v", err)
			ok = false
		case !amount.IsPositive():
			verr.add(sheet, cell(line, "amount"), "amount must be positive")
			ok = false
		default:
			tx.Amount = amount
		}

		if tx.Category1 == "" {
			verr.add(sheet, cell(line, "category1"), "category1 is required")
			ok = false
		} else if strings.Contains(tx.Category1, "/") || strings.Contains(tx.Category2, "/") {
			verr.add(sheet, cell(line, "category1"), "category names must not contain /")
			ok = false
		}

		if ok {
			res.Transactions = append(res.Transactions, tx)
		}
	}
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isTotal(v string) bool {
	return strings.HasPrefix(strings.ToLower(v), "total")
}

var dateLayouts = []string{types.DateLayout, "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2", "2006.1.2"}

// parseDate accepts ISO dates, slash or dot separated dates, and Excel
// serial day numbers.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return types.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

func parseType(v string) (string, error) {
	switch strings.ToLower(v) {
	case types.TransactionIncome, "+":
		return types.TransactionIncome, nil
	case types.TransactionExpense, "-":
		return types.TransactionExpense, nil
	}
	return "", fmt.Errorf("invalid type %q, expected income or expense", v)
}

// parseAmount parses a decimal that may contain thousands separators.
func parseAmount(v string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.ReplaceAll(v, ",", ""), " ", "")
	if clean == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", v)
	}
	return d, nil
}
