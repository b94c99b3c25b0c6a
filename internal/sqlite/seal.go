package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/homebook/internal/fieldcrypt"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// cipherFor returns the cached cipher of a ledger, reading its key from the
// ledgers table on a miss.
// The caller must hold b.mu.
func (b *Backend) cipherFor(ledgerID string) (*fieldcrypt.Cipher, error) {
	return b.keys.Get(ledgerID, func() (string, error) {
		var key string
		err := b.db.QueryRow("SELECT encryption_key FROM ledgers WHERE ledger_id = ?", ledgerID).Scan(&key)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("ledger %s: %w", ledgerID, types.ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("loading ledger key: %w", err)
		}
		return key, nil
	})
}

// sealer encrypts sensitive fields on the way into storage. A sealer with
// no cipher passes values through.
type sealer struct {
	c *fieldcrypt.Cipher
}

// sealerFor returns the sealer of a ledger: encrypting when the backend was
// attached with EncryptFields, plaintext otherwise.
func (b *Backend) sealerFor(ledgerID string) (sealer, error) {
	if !b.config.EncryptFields {
		return sealer{}, nil
	}
	c, err := b.cipherFor(ledgerID)
	if err != nil {
		return sealer{}, err
	}
	return sealer{c: c}, nil
}

func (s sealer) text(v string) (string, error) {
	if s.c == nil {
		return v, nil
	}
	return s.c.Encrypt(v)
}

func (s sealer) decimal(d decimal.Decimal) (string, error) {
	if s.c == nil {
		return d.String(), nil
	}
	return s.c.EncryptDecimal(d)
}

// opener decrypts sensitive fields on the way out of storage. Values that
// are not sealed pass through.
type opener struct {
	c *fieldcrypt.Cipher
}

// openerFor always tries the ledger key so that rows sealed earlier remain
// readable after EncryptFields is switched off.
func (b *Backend) openerFor(ledgerID string) opener {
	c, err := b.cipherFor(ledgerID)
	if err != nil {
		return opener{}
	}
	return opener{c: c}
}

func (o opener) text(v string) string {
	if o.c == nil {
		return v
	}
	return o.c.Open(v)
}

func (o opener) decimal(v string) (decimal.Decimal, error) {
	if o.c != nil {
		return o.c.DecryptDecimal(v)
	}
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing decimal: %w", err)
	}
	return d, nil
}
