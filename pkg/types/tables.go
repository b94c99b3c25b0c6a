package types

// Standard table names for Store.GetTable.
const (
	LedgersTable        = "ledgers"
	MembersTable        = "members"
	InvitationsTable    = "invitations"
	TransactionsTable   = "transactions"
	AssetsTable         = "assets"
	AssetMutationsTable = "asset_mutations"
	CategoriesTable     = "categories"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	LedgersTable,
	MembersTable,
	InvitationsTable,
	TransactionsTable,
	AssetsTable,
	AssetMutationsTable,
	CategoriesTable,
}
