package core

import "context"

// SchemaBackend creates tenant databases objects on a registered connection.
type SchemaBackend interface {
	// CreateSchema creates the relational tables. Must be idempotent.
	CreateSchema(ctx context.Context, conn ConnectionDescriptor, tables []SchemaDef) error

	// CreateCollections creates document collections and their indexes. Must be idempotent.
	CreateCollections(ctx context.Context, conn ConnectionDescriptor, names []string, indexes []IndexDef) error
}

// PersistOptions controls how a seeded batch is written.
type PersistOptions struct {
	Overwrite      bool // Replace the workspace's records of the data type instead of appending
	AutoCategorize bool
	BatchSize      int
}

// ContentBackend stores workspace records and applies workspace configuration.
type ContentBackend interface {
	PersistRecords(ctx context.Context, workspaceID string, dataType DataType, records []Record, opts PersistOptions) error
	BuildVectorIndex(ctx context.Context, workspaceID string) error
	RegisterTriggerRules(ctx context.Context, workspaceID string) (int, error)
	SyncCategories(ctx context.Context, workspaceID string) (int, error)
}

// Backend is the full collaborator surface used by the Service.
type Backend interface {
	SchemaBackend
	ContentBackend
}

// CombineBackends joins separate schema and content implementations.
func CombineBackends(schema SchemaBackend, content ContentBackend) Backend {
	return combined{SchemaBackend: schema, ContentBackend: content}
}

type combined struct {
	SchemaBackend
	ContentBackend
}
