package sqlite

import (
	"fmt"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// defaultCategory is a top-level category with its children.
type defaultCategory struct {
	name     string
	children []string
}

// defaultCategories is the tree every new ledger starts with, per type.
var defaultCategories = map[string][]defaultCategory{
	types.CategoryIncome: {
		{"Salary", []string{"Base pay", "Bonus"}},
		{"Side income", nil},
		{"Interest", nil},
		{"Other income", nil},
	},
	types.CategoryExpense: {
		{"Food", []string{"Groceries", "Dining out", "Coffee"}},
		{"Housing", []string{"Rent", "Utilities", "Maintenance"}},
		{"Transport", []string{"Public transit", "Fuel", "Taxi"}},
		{"Health", []string{"Medical", "Pharmacy"}},
		{"Education", nil},
		{"Leisure", []string{"Travel", "Hobbies"}},
		{"Shopping", []string{"Clothing", "Household goods"}},
		{"Insurance", nil},
		{"Other expense", nil},
	},
	types.CategoryPayment: {
		{"Cash", nil},
		{"Debit card", nil},
		{"Credit card", nil},
		{"Bank transfer", nil},
	},
	types.CategoryAsset: {
		{"Bank", []string{"Checking", "Savings"}},
		{"Investment", []string{"Stocks", "Funds"}},
		{"Loan", nil},
	},
}

// seedCategories inserts the default category tree of a new ledger.
// The caller must hold b.mu and persist the categories file afterwards.
func (b *Backend) seedCategories(ledgerID string) error {
	stmt, err := b.db.Prepare(
		"INSERT INTO categories (category_id, ledger_id, type, category1, category2, ordinal) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing category seed: %w", err)
	}
	defer stmt.Close()

	for _, typ := range types.CategoryTypes {
		for i, top := range defaultCategories[typ] {
			if _, err := stmt.Exec(generateUUID(), ledgerID, typ, top.name, "", i+1); err != nil {
				return fmt.Errorf("seeding category %s: %w", top.name, err)
			}
			for j, child := range top.children {
				if _, err := stmt.Exec(generateUUID(), ledgerID, typ, top.name, child, j+1); err != nil {
					return fmt.Errorf("seeding category %s/%s: %w", top.name, child, err)
				}
			}
		}
	}
	return nil
}
