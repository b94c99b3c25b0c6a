// Package types defines the Store and Table interfaces, the household-ledger
// entity types, and the standard errors shared by every homebook package.
//
// Entities are plain structs. Storage backends accept and return pointers to
// them through the generic Table interface; callers type-assert the results.
package types
