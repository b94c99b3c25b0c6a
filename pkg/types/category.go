package types

import "strings"

// Category types. Each ledger keeps an independent tree per type.
const (
	CategoryIncome  = "income"
	CategoryExpense = "expense"
	CategoryPayment = "payment"
	CategoryAsset   = "asset"
)

// CategoryTypes lists the category types in display order.
var CategoryTypes = []string{CategoryIncome, CategoryExpense, CategoryPayment, CategoryAsset}

// ValidCategoryType reports whether t is a recognized category type.
func ValidCategoryType(t string) bool {
	switch t {
	case CategoryIncome, CategoryExpense, CategoryPayment, CategoryAsset:
		return true
	}
	return false
}

// Category is one node of a two-level classification tree. A node with an
// empty Category2 is a top-level (category1) node.
type Category struct {
	CategoryID string `json:"category_id"`
	LedgerID   string `json:"ledger_id"`
	Type       string `json:"type"`
	Category1  string `json:"category1"`
	Category2  string `json:"category2,omitempty"`
	Ordinal    int    `json:"ordinal"`
}

// IsTopLevel reports whether the node is a category1 node.
func (c *Category) IsTopLevel() bool {
	return c.Category2 == ""
}

// Path returns "category1" or "category1/category2".
func (c *Category) Path() string {
	if c.Category2 == "" {
		return c.Category1
	}
	return c.Category1 + "/" + c.Category2
}

// Validate checks the type and names of the node.
func (c *Category) Validate() error {
	if !ValidCategoryType(c.Type) {
		return ErrInvalidCategoryType
	}
	if strings.TrimSpace(c.Category1) == "" {
		return ErrInvalidCategory
	}
	if strings.Contains(c.Category1, "/") || strings.Contains(c.Category2, "/") {
		return ErrInvalidCategory
	}
	return nil
}
