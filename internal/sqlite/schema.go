package sqlite

import (
	"database/sql"
	"fmt"
)

// Schema DDL. Sensitive columns (amount, description, memo, name, balance,
// delta, note) are TEXT because they may hold sealed values.
const (
	createLedgers = `CREATE TABLE ledgers (
    ledger_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    currency TEXT NOT NULL,
    encryption_key TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createMembers = `CREATE TABLE members (
    member_id TEXT PRIMARY KEY,
    ledger_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    joined_at TEXT NOT NULL
);`

	createInvitations = `CREATE TABLE invitations (
    invitation_id TEXT PRIMARY KEY,
    ledger_id TEXT NOT NULL,
    email TEXT NOT NULL,
    role TEXT NOT NULL,
    code TEXT NOT NULL UNIQUE,
    invited_by TEXT NOT NULL,
    state TEXT NOT NULL,
    accepted_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL DEFAULT ''
);`

	createTransactions = `CREATE TABLE transactions (
    transaction_id TEXT PRIMARY KEY,
    ledger_id TEXT NOT NULL,
    month TEXT NOT NULL,
    type TEXT NOT NULL,
    date TEXT NOT NULL,
    amount TEXT NOT NULL,
    category1 TEXT NOT NULL,
    category2 TEXT NOT NULL DEFAULT '',
    payment TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    memo TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createAssets = `CREATE TABLE assets (
    asset_id TEXT PRIMARY KEY,
    ledger_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    balance TEXT NOT NULL,
    category1 TEXT NOT NULL DEFAULT '',
    category2 TEXT NOT NULL DEFAULT '',
    memo TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL,
    last_operation TEXT NOT NULL,
    changed_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createAssetMutations = `CREATE TABLE asset_mutations (
    mutation_id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL,
    ledger_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    operation TEXT NOT NULL,
    delta TEXT NOT NULL,
    balance TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    changed_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createCategories = `CREATE TABLE categories (
    category_id TEXT PRIMARY KEY,
    ledger_id TEXT NOT NULL,
    type TEXT NOT NULL,
    category1 TEXT NOT NULL,
    category2 TEXT NOT NULL DEFAULT '',
    ordinal INTEGER NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxMembersUnique         = `CREATE UNIQUE INDEX idx_members_unique ON members(ledger_id, user_id);`
	idxMembersUser           = `CREATE INDEX idx_members_user ON members(user_id);`
	idxInvitationsLedger     = `CREATE INDEX idx_invitations_ledger ON invitations(ledger_id);`
	idxTransactionsMonth     = `CREATE INDEX idx_transactions_month ON transactions(ledger_id, month);`
	idxTransactionsDate      = `CREATE INDEX idx_transactions_date ON transactions(ledger_id, date);`
	idxAssetsLedger          = `CREATE INDEX idx_assets_ledger ON assets(ledger_id);`
	idxAssetMutationsAsset   = `CREATE INDEX idx_asset_mutations_asset ON asset_mutations(asset_id, version);`
	idxCategoriesUnique      = `CREATE UNIQUE INDEX idx_categories_unique ON categories(ledger_id, type, category1, category2);`
	idxAssetMutationsLedger  = `CREATE INDEX idx_asset_mutations_ledger ON asset_mutations(ledger_id);`
	idxTransactionsCategory1 = `CREATE INDEX idx_transactions_category1 ON transactions(ledger_id, category1);`
)

var schemaDDL = []string{
	createLedgers,
	createMembers,
	createInvitations,
	createTransactions,
	createAssets,
	createAssetMutations,
	createCategories,
}

var indexDDL = []string{
	idxMembersUnique,
	idxMembersUser,
	idxInvitationsLedger,
	idxTransactionsMonth,
	idxTransactionsDate,
	idxAssetsLedger,
	idxAssetMutationsAsset,
	idxCategoriesUnique,
	idxAssetMutationsLedger,
	idxTransactionsCategory1,
}

// createSchema executes every table and index statement.
func createSchema(db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}
