package types

import "errors"

// Table provides uniform CRUD operations for a single entity type.
// Get and Fetch return any; callers type-assert to the concrete entity struct.
type Table interface {
	// Get retrieves the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Get(id string) (any, error)

	// Set creates or updates an entity. When id is empty a new UUID v7 is
	// generated. Returns the actual ID used (generated or provided).
	Set(id string, data any) (string, error)

	// Delete removes the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Delete(id string) error

	// Fetch returns all entities matching the filter. An empty filter
	// returns every entity in the table.
	Fetch(filter map[string]any) ([]any, error)
}

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter value type")
	ErrReadOnlyTable = errors.New("table is read-only")
	ErrDuplicate     = errors.New("entity already exists")
)

// Entity validation errors.
var (
	ErrInvalidName            = errors.New("invalid name")
	ErrInvalidRole            = errors.New("invalid member role")
	ErrInvalidKind            = errors.New("invalid asset kind")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidMonth           = errors.New("invalid month, expected YYYY-MM")
	ErrInvalidCategory        = errors.New("invalid category")
	ErrInvalidCategoryType    = errors.New("invalid category type")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidCurrency        = errors.New("invalid currency code")
	ErrInvitationClosed       = errors.New("invitation is no longer pending")
	ErrInvitationExpired      = errors.New("invitation has expired")
)
