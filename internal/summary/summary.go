// Package summary aggregates transactions and assets into the monthly,
// yearly and net worth reports of a ledger.
package summary

import (
	"fmt"
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// CategoryAmount is the total of one category. Children break a category1
// total down by category2; entries without a category2 are grouped under "".
type CategoryAmount struct {
	Category string           `json:"category"`
	Amount   decimal.Decimal  `json:"amount"`
	Count    int              `json:"count"`
	Children []CategoryAmount `json:"children,omitempty"`
}

// MonthOverview summarizes one month of a ledger.
type MonthOverview struct {
	Month             string           `json:"month"`
	Currency          string           `json:"currency"`
	Income            decimal.Decimal  `json:"income"`
	Expense           decimal.Decimal  `json:"expense"`
	Net               decimal.Decimal  `json:"net"`
	Count             int              `json:"count"`
	IncomeByCategory  []CategoryAmount `json:"income_by_category"`
	ExpenseByCategory []CategoryAmount `json:"expense_by_category"`
}

// YearOverview summarizes a calendar year month by month.
type YearOverview struct {
	Year              int              `json:"year"`
	Currency          string           `json:"currency"`
	Months            []MonthOverview  `json:"months"`
	Income            decimal.Decimal  `json:"income"`
	Expense           decimal.Decimal  `json:"expense"`
	Net               decimal.Decimal  `json:"net"`
	Count             int              `json:"count"`
	ExpenseByCategory []CategoryAmount `json:"expense_by_category"`
}

// NetWorthReport totals the assets of a ledger. Liabilities are subtracted.
type NetWorthReport struct {
	Currency    string          `json:"currency"`
	Accounts    decimal.Decimal `json:"accounts"`
	Investments decimal.Decimal `json:"investments"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Total       decimal.Decimal `json:"total"`
}

// Month summarizes the transactions dated in month. Transactions from other
// months are ignored.
func Month(month, currency string, txs []*types.Transaction) MonthOverview {
	o := MonthOverview{Month: month, Currency: currency}
	income := newBreakdown()
	expense := newBreakdown()
	for _, tx := range txs {
		if tx == nil || tx.Month() != month {
			continue
		}
		o.Count++
		switch tx.Type {
		case types.TransactionIncome:
			o.Income = o.Income.Add(tx.Amount)
			income.add(tx)
		case types.TransactionExpense:
			o.Expense = o.Expense.Add(tx.Amount)
			expense.add(tx)
		}
	}
	o.Net = o.Income.Sub(o.Expense)
	o.IncomeByCategory = income.amounts()
	o.ExpenseByCategory = expense.amounts()
	return o
}

// Year summarizes the twelve months of year.
func Year(year int, currency string, txs []*types.Transaction) YearOverview {
	y := YearOverview{Year: year, Currency: currency, Months: make([]MonthOverview, 0, 12)}
	expense := newBreakdown()
	for m := time.January; m <= time.December; m++ {
		key := types.MonthOf(time.Date(year, m, 1, 0, 0, 0, 0, time.UTC))
		mo := Month(key, currency, txs)
		y.Months = append(y.Months, mo)
		y.Income = y.Income.Add(mo.Income)
		y.Expense = y.Expense.Add(mo.Expense)
		y.Count += mo.Count
	}
	for _, tx := range txs {
		if tx != nil && tx.Type == types.TransactionExpense && tx.Date.Year() == year {
			expense.add(tx)
		}
	}
	y.Net = y.Income.Sub(y.Expense)
	y.ExpenseByCategory = expense.amounts()
	return y
}

// NetWorth totals assets by kind.
func NetWorth(currency string, assets []*types.Asset) NetWorthReport {
	r := NetWorthReport{Currency: currency}
	for _, a := range assets {
		if a == nil {
			continue
		}
		switch a.Kind {
		case types.AssetAccount:
			r.Accounts = r.Accounts.Add(a.Balance)
		case types.AssetInvestment:
			r.Investments = r.Investments.Add(a.Balance)
		case types.AssetLiability:
			r.Liabilities = r.Liabilities.Add(a.Balance)
		}
		r.Total = r.Total.Add(a.Contribution())
	}
	return r
}

// Format renders amount with the symbol, separators and minor units of
// currency, e.g. "$1,234.50" or "₩12,500". Unknown currencies fall back to
// the plain decimal followed by the code.
func Format(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return fmt.Sprintf("%s %s", amount.String(), currency)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// breakdown accumulates two-level category totals.
type breakdown struct {
	top      map[string]*CategoryAmount
	children map[string]map[string]*CategoryAmount
}

func newBreakdown() *breakdown {
	return &breakdown{
		top:      make(map[string]*CategoryAmount),
		children: make(map[string]map[string]*CategoryAmount),
	}
}

func (b *breakdown) add(tx *types.Transaction) {
	top, ok := b.top[tx.Category1]
	if !ok {
		top = &CategoryAmount{Category: tx.Category1}
		b.top[tx.Category1] = top
		b.children[tx.Category1] = make(map[string]*CategoryAmount)
	}
	top.Amount = top.Amount.Add(tx.Amount)
	top.Count++

	child, ok := b.children[tx.Category1][tx.Category2]
	if !ok {
		child = &CategoryAmount{Category: tx.Category2}
		b.children[tx.Category1][tx.Category2] = child
	}
	child.Amount = child.Amount.Add(tx.Amount)
	child.Count++
}

// amounts returns the totals sorted by amount, largest first. Children are
// only listed when some entry has a category2.
func (b *breakdown) amounts() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(b.top))
	for name, top := range b.top {
		entry := *top
		kids := b.children[name]
		if _, plainOnly := kids[""]; !(plainOnly && len(kids) == 1) {
			for _, c := range kids {
				entry.Children = append(entry.Children, *c)
			}
			sortAmounts(entry.Children)
		}
		out = append(out, entry)
	}
	sortAmounts(out)
	return out
}

func sortAmounts(list []CategoryAmount) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Amount.Cmp(list[j].Amount); c != 0 {
			return c > 0
		}
		return list[i].Category < list[j].Category
	})
}
