package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Asset kinds.
const (
	AssetAccount    = "account"
	AssetInvestment = "investment"
	AssetLiability  = "liability"
)

// ValidAssetKind reports whether k is a recognized asset kind.
func ValidAssetKind(k string) bool {
	switch k {
	case AssetAccount, AssetInvestment, AssetLiability:
		return true
	}
	return false
}

// Asset mutation operations.
const (
	AssetOpCreate   = "create"
	AssetOpDeposit  = "deposit"
	AssetOpWithdraw = "withdraw"
	AssetOpAdjust   = "adjust"
	AssetOpRename   = "rename"
)

// Asset is a tracked balance. Every change to an asset is recorded as an
// AssetMutation; Version counts them.
//
// Name, Balance and Memo are sensitive fields.
type Asset struct {
	AssetID       string          `json:"asset_id"`
	LedgerID      string          `json:"ledger_id"`
	Kind          string          `json:"kind"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	Category1     string          `json:"category1,omitempty"`
	Category2     string          `json:"category2,omitempty"`
	Memo          string          `json:"memo,omitempty"`
	Version       int64           `json:"version"`
	LastOperation string          `json:"last_operation"`
	ChangedBy     string          `json:"changed_by,omitempty"`
	Note          string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Deposit adds a positive amount to the balance.
func (a *Asset) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	a.touch(AssetOpDeposit)
	return nil
}

// Withdraw subtracts a positive amount from the balance. The balance may go
// negative (overdraft).
func (a *Asset) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Sub(amount)
	a.touch(AssetOpWithdraw)
	return nil
}

// Adjust sets the balance to an absolute value, e.g. after reconciling with
// a bank statement.
func (a *Asset) Adjust(balance decimal.Decimal) {
	a.Balance = balance
	a.touch(AssetOpAdjust)
}

// Rename sets a new, non-empty name.
func (a *Asset) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	a.Name = name
	a.touch(AssetOpRename)
	return nil
}

// Contribution returns the asset's effect on net worth: liabilities count
// negatively.
func (a *Asset) Contribution() decimal.Decimal {
	if a.Kind == AssetLiability {
		return a.Balance.Neg()
	}
	return a.Balance
}

func (a *Asset) touch(op string) {
	a.LastOperation = op
	a.UpdatedAt = time.Now().UTC()
}

// AssetMutation records one change to an asset. Delta is the balance change
// and Balance the balance after the change.
type AssetMutation struct {
	MutationID string          `json:"mutation_id"`
	AssetID    string          `json:"asset_id"`
	LedgerID   string          `json:"ledger_id"`
	Version    int64           `json:"version"`
	Operation  string          `json:"operation"`
	Delta      decimal.Decimal `json:"delta"`
	Balance    decimal.Decimal `json:"balance"`
	Note       string          `json:"note,omitempty"`
	ChangedBy  string          `json:"changed_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
