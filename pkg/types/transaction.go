package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// ValidTransactionType reports whether t is a recognized transaction type.
func ValidTransactionType(t string) bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Transaction is a single income or expense record. Storage partitions
// transactions by the month of Date.
//
// Amount, Description and Memo are sensitive: they are sealed with the
// ledger key when field encryption is enabled.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	LedgerID      string          `json:"ledger_id"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Category1     string          `json:"category1"`
	Category2     string          `json:"category2,omitempty"`
	Payment       string          `json:"payment,omitempty"`
	Description   string          `json:"description,omitempty"`
	Memo          string          `json:"memo,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Month returns the storage partition key of the transaction.
func (t *Transaction) Month() string {
	return MonthOf(t.Date)
}

// Validate checks the fields every stored transaction must have.
func (t *Transaction) Validate() error {
	if !ValidTransactionType(t.Type) {
		return ErrInvalidTransactionType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category1) == "" {
		return ErrInvalidCategory
	}
	return nil
}

// Signed returns the amount with its sign applied: positive for income,
// negative for expense.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Clone returns a shallow copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}
