package core

// ColumnDef is one column of a relational table.
type ColumnDef struct {
	Name       string
	Type       string // SQL type, e.g. "TEXT", "TIMESTAMPTZ"
	NotNull    bool
	PrimaryKey bool
	Default    string // SQL default expression, empty for none
}

// SchemaDef describes one relational table created for a tenant.
type SchemaDef struct {
	Name    string
	Columns []ColumnDef
	Indexes [][]string // Column lists of non-unique indexes
}

// IndexDef describes an index on a document collection.
type IndexDef struct {
	Collection string
	Name       string
	Keys       []string
	Unique     bool
}

// TenantTables is the relational layout created by database initialization.
var TenantTables = []SchemaDef{
	{
		Name: "workspaces",
		Columns: []ColumnDef{
			{Name: "id", Type: "TEXT", PrimaryKey: true},
			{Name: "name", Type: "TEXT", NotNull: true},
			{Name: "created_at", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
		},
	},
	{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: "UUID", PrimaryKey: true, Default: "gen_random_uuid()"},
			{Name: "email", Type: "TEXT", NotNull: true},
			{Name: "display_name", Type: "TEXT"},
			{Name: "role", Type: "TEXT", NotNull: true, Default: "'agent'"},
			{Name: "created_at", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
		},
		Indexes: [][]string{{"email"}},
	},
	{
		Name: "conversations",
		Columns: []ColumnDef{
			{Name: "id", Type: "UUID", PrimaryKey: true, Default: "gen_random_uuid()"},
			{Name: "workspace_id", Type: "TEXT", NotNull: true},
			{Name: "channel", Type: "TEXT", NotNull: true},
			{Name: "status", Type: "TEXT", NotNull: true, Default: "'open'"},
			{Name: "created_at", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
		},
		Indexes: [][]string{{"workspace_id", "created_at"}},
	},
	{
		Name: "messages",
		Columns: []ColumnDef{
			{Name: "id", Type: "UUID", PrimaryKey: true, Default: "gen_random_uuid()"},
			{Name: "conversation_id", Type: "UUID", NotNull: true},
			{Name: "sender", Type: "TEXT", NotNull: true},
			{Name: "body", Type: "TEXT", NotNull: true},
			{Name: "created_at", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
		},
		Indexes: [][]string{{"conversation_id", "created_at"}},
	},
}

// TenantCollections is the document layout created by database initialization.
var TenantCollections = []string{"knowledge_records", "trigger_rules", "categories", "conversation_events"}

// TenantIndexes are created alongside TenantCollections.
var TenantIndexes = []IndexDef{
	{Collection: "knowledge_records", Name: "workspace_type", Keys: []string{"workspace_id", "data_type"}},
	{Collection: "knowledge_records", Name: "workspace_category", Keys: []string{"workspace_id", "category"}},
	{Collection: "trigger_rules", Name: "workspace_rule", Keys: []string{"workspace_id", "name"}, Unique: true},
	{Collection: "categories", Name: "workspace_category", Keys: []string{"workspace_id", "name"}, Unique: true},
	{Collection: "conversation_events", Name: "workspace_time", Keys: []string{"workspace_id", "created_at"}},
}

// TableNames returns the names of defs in order.
func TableNames(defs []SchemaDef) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
