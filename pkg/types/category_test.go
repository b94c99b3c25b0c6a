package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		cat     Category
		wantErr error
	}{
		{name: "top level", cat: Category{Type: CategoryExpense, Category1: "Food"}},
		{name: "second level", cat: Category{Type: CategoryExpense, Category1: "Food", Category2: "Groceries"}},
		{name: "bad type", cat: Category{Type: "misc", Category1: "Food"}, wantErr: ErrInvalidCategoryType},
		{name: "empty category1", cat: Category{Type: CategoryIncome}, wantErr: ErrInvalidCategory},
		{name: "slash in name", cat: Category{Type: CategoryIncome, Category1: "a/b"}, wantErr: ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cat.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCategoryPath(t *testing.T) {
	top := Category{Category1: "Food"}
	assert.True(t, top.IsTopLevel())
	assert.Equal(t, "Food", top.Path())

	sub := Category{Category1: "Food", Category2: "Dining out"}
	assert.False(t, sub.IsTopLevel())
	assert.Equal(t, "Food/Dining out", sub.Path())
}
