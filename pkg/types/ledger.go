package types

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

// DefaultCurrency is used when a ledger is created without a currency.
const DefaultCurrency = "KRW"

// Ledger is a named household-finance workspace owned by one user and shared
// with invited members.
type Ledger struct {
	LedgerID string `json:"ledger_id"`
	Name     string `json:"name"`
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`

	// EncryptionKey is the Base64 AES-256 key for the ledger's sensitive
	// fields. It lives in the ledger record itself and is never serialized
	// to API responses.
	EncryptionKey string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rename sets a new, non-empty ledger name.
func (l *Ledger) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	l.Name = name
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidCurrency reports whether code is a known ISO 4217 currency code.
func ValidCurrency(code string) bool {
	if code == "" {
		return false
	}
	return money.GetCurrency(strings.ToUpper(code)) != nil
}
