package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// ErrInvalidLayout is returned for a malformed column mapping.
var ErrInvalidLayout = errors.New("invalid legacy layout")

// Layout maps the columns of a one-off spreadsheet onto transaction fields.
// Column fields hold column letters; empty means the column is absent.
type Layout struct {
	Sheet       string // defaults to the first sheet
	HeaderRows  int    // rows skipped before data, defaults to 1
	Date        string
	Amount      string
	Type        string
	Category1   string
	Category2   string
	Payment     string
	Description string
	Memo        string
	// DefaultType applies to rows without a type column value. A negative
	// amount is always an expense. Defaults to expense.
	DefaultType string
}

// ParseLayout parses a mapping such as
// "date=A,amount=D,category1=B,category2=C,header=2,default_type=expense".
func ParseLayout(s string) (Layout, error) {
	l := Layout{HeaderRows: 1}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Layout{}, fmt.Errorf("%w: %q is not key=value", ErrInvalidLayout, part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "sheet":
			l.Sheet = value
		case "header", "header_rows":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Layout{}, fmt.Errorf("%w: header must be a non-negative number", ErrInvalidLayout)
			}
			l.HeaderRows = n
		case "default_type":
			typ, err := parseType(value)
			if err != nil {
				return Layout{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
			}
			l.DefaultType = typ
		default:
			col := l.column(key)
			if col == nil {
				return Layout{}, fmt.Errorf("%w: unknown key %q", ErrInvalidLayout, key)
			}
			*col = strings.ToUpper(value)
		}
	}
	return l, l.Validate()
}

func (l *Layout) column(key string) *string {
	switch key {
	case "date":
		return &l.Date
	case "amount":
		return &l.Amount
	case "type":
		return &l.Type
	case "category1":
		return &l.Category1
	case "category2":
		return &l.Category2
	case "payment":
		return &l.Payment
	case "description":
		return &l.Description
	case "memo":
		return &l.Memo
	}
	return nil
}

// Validate checks that the required columns are mapped to valid letters.
func (l Layout) Validate() error {
	required := []struct{ name, col string }{{"date", l.Date}, {"amount", l.Amount}, {"category1", l.Category1}}
	for _, r := range required {
		if r.col == "" {
			return fmt.Errorf("%w: %s column is required", ErrInvalidLayout, r.name)
		}
	}
	for _, col := range []string{l.Date, l.Amount, l.Type, l.Category1, l.Category2, l.Payment, l.Description, l.Memo} {
		if col == "" {
			continue
		}
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return fmt.Errorf("%w: bad column %q", ErrInvalidLayout, col)
		}
	}
	return nil
}

// Legacy reads transactions from a spreadsheet laid out as described by
// layout. Validation follows Import: any bad row fails the whole sheet with
// a *ValidationError.
func Legacy(r io.Reader, layout Layout) (*ImportResult, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheet := layout.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}

	defaultType := layout.DefaultType
	if defaultType == "" {
		defaultType = types.TransactionExpense
	}

	res := &ImportResult{Sheets: []string{sheet}}
	verr := &ValidationError{}
	get := func(row []string, col string) string {
		if col == "" {
			return ""
		}
		n, _ := excelize.ColumnNameToNumber(col)
		if n-1 >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[n-1])
	}

	for i, row := range rows {
		line := i + 1
		if line <= layout.HeaderRows {
			continue
		}
		if blank(row) || isTotal(get(row, layout.Date)) {
			res.Skipped++
			continue
		}
		tx := &types.Transaction{
			Category1:   get(row, layout.Category1),
			Category2:   get(row, layout.Category2),
			Payment:     get(row, layout.Payment),
			Description: get(row, layout.Description),
			Memo:        get(row, layout.Memo),
		}
		ok := true

		if date, err := parseDate(get(row, layout.Date)); err != nil {
			verr.add(sheet, fmt.Sprintf("%s%d", layout.Date, line), "%v", err)
			ok = false
		} else {
			tx.Date = date
		}

		amount, err := parseAmount(get(row, layout.Amount))
		if err != nil || amount.IsZero() {
			if err == nil {
				err = errors.New("amount must not be zero")
			}
			verr.add(sheet, fmt.Sprintf("%s%d", layout.Amount, line), "%v", err)
			ok = false
		}
		tx.Type = defaultType
		if raw := get(row, layout.Type); raw != "" {
			typ, err := parseType(raw)
			if err != nil {
				verr.add(sheet, fmt.Sprintf("%s%d", layout.Type, line), "%v", err)
				ok = false
			}
			tx.Type = typ
		}
		if amount.IsNegative() {
			tx.Type = types.TransactionExpense
			amount = amount.Neg()
		}
		tx.Amount = amount

		if tx.Category1 == "" {
			verr.add(sheet, fmt.Sprintf("%s%d", layout.Category1, line), "category1 is required")
			ok = false
		} else if strings.Contains(tx.Category1, "/") || strings.Contains(tx.Category2, "/") {
			verr.add(sheet, fmt.Sprintf("%s%d", layout.Category1, line), "category names must not contain /")
			ok = false
		}

		if ok {
			res.Transactions = append(res.Transactions, tx)
		}
	}

	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return res, nil
}
