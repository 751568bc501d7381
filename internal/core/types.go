package core

import (
	"time"
)

// OperationType identifies which initialization stage a log entry tracks.
type OperationType string

const (
	OpDatabaseInit OperationType = "database_init"
	OpDataSeed     OperationType = "data_seed"
	OpConfigApply  OperationType = "config_apply"
)

// Status is the lifecycle state of a log entry or derived status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition may occur from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ConnectionKind distinguishes the two per-tenant database connections.
type ConnectionKind string

const (
	KindRelational ConnectionKind = "relational"
	KindDocument   ConnectionKind = "document"
)

// connectionKindOrder is the order in which database initialization visits kinds.
var connectionKindOrder = []ConnectionKind{KindRelational, KindDocument}

// ConnectionStatus is the result of the last connectivity test for a descriptor.
type ConnectionStatus string

const (
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnError        ConnectionStatus = "error"
)

// ConnectionDescriptor describes one database a tenant owns.
type ConnectionDescriptor struct {
	ID                  string           `json:"id"`
	TenantID            string           `json:"tenant_id" validate:"required"`
	Kind                ConnectionKind   `json:"kind" validate:"required,oneof=relational document"`
	Host                string           `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port                int              `json:"port" validate:"required,min=1,max=65535"`
	DatabaseName        string           `json:"database_name" validate:"required"`
	Username            string           `json:"username"`
	EncryptedCredential string           `json:"-"`
	Status              ConnectionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	SupersededAt        *time.Time       `json:"superseded_at,omitempty"`
}

// Active reports whether the descriptor is the current one for its tenant and kind.
func (d ConnectionDescriptor) Active() bool {
	return d.SupersededAt == nil
}

// DataType is the declared content type of an upload batch.
type DataType string

const (
	DataDocuments DataType = "documents"
	DataFAQ       DataType = "faq"
	DataManual    DataType = "manual"
	DataScenarios DataType = "scenarios"
	DataTemplates DataType = "templates"
)

// FileType is the container format detected from a file name.
type FileType string

const (
	FileCSV  FileType = "csv"
	FileJSON FileType = "json"
	FileXLSX FileType = "xlsx"
	FilePDF  FileType = "pdf"
	FileText FileType = "text"
)

// UploadedFile is a file payload already received by the transport layer.
type UploadedFile struct {
	Name    string `json:"name" validate:"required"`
	Content []byte `json:"content"`
}

// Record is one normalized item produced by the parser.
type Record struct {
	Title    string         `json:"title" bson:"title"`
	Content  string         `json:"content" bson:"content"`
	Category string         `json:"category,omitempty" bson:"category,omitempty"`
	Tags     []string       `json:"tags,omitempty" bson:"tags,omitempty"`
	Fields   map[string]any `json:"fields,omitempty" bson:"fields,omitempty"`
	Source   string         `json:"source" bson:"source"`
	Line     int            `json:"line,omitempty" bson:"line,omitempty"`
}

// FileParseResult is the outcome of parsing one uploaded file.
type FileParseResult struct {
	Filename      string   `json:"filename"`
	DetectedType  FileType `json:"detected_type"`
	TotalRecords  int      `json:"total_records"`
	ParsedRecords int      `json:"parsed_records"`
	FailedRecords int      `json:"failed_records"`
	Errors        []string `json:"errors"`
	Records       []Record `json:"records,omitempty"`
}

// Summary returns a copy without the record payload, for folding into log details.
func (r FileParseResult) Summary() FileParseResult {
	r.Records = nil
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return r
}

// SeedOptions tunes how seeded records are persisted.
type SeedOptions struct {
	BatchSize         int  `json:"batch_size,omitempty" validate:"omitempty,min=1,max=100000"`
	OverwriteExisting bool `json:"overwrite_existing,omitempty"`
	AutoCategorize    bool `json:"auto_categorize,omitempty"`
}

// SeedRequest is the input to SeedWorkspaceData.
type SeedRequest struct {
	WorkspaceID string         `json:"workspace_id" validate:"required"`
	TenantID    string         `json:"tenant_id,omitempty"`
	DataType    DataType       `json:"data_type" validate:"required,oneof=documents faq manual scenarios templates"`
	Files       []UploadedFile `json:"files" validate:"required,min=1,dive"`
	Options     SeedOptions    `json:"options"`
}

// SeedResult is the outcome of SeedWorkspaceData.
type SeedResult struct {
	Success          bool   `json:"success"`
	ProcessedFiles   int    `json:"processed_files"`
	TotalRecords     int    `json:"total_records"`
	FailedRecords    int    `json:"failed_records"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Error            string `json:"error,omitempty"`

	Logs []LogEntry `json:"-"` // Entries written by this call
}

// ConfigOperations selects which post-seed operations to apply.
type ConfigOperations struct {
	CreateVectorIndex    bool `json:"create_vector_index,omitempty"`
	RegisterTriggerRules bool `json:"register_trigger_rules,omitempty"`
	SyncCategories       bool `json:"sync_categories,omitempty"`
}

// ConfigRequest is the input to ApplyWorkspaceConfig.
type ConfigRequest struct {
	WorkspaceID string           `json:"workspace_id" validate:"required"`
	TenantID    string           `json:"tenant_id,omitempty"`
	Operations  ConfigOperations `json:"operations"`
}

// ConfigOperation names one step the config applier can run.
type ConfigOperation string

const (
	ConfigVectorIndex  ConfigOperation = "create_vector_index"
	ConfigTriggerRules ConfigOperation = "register_trigger_rules"
	ConfigCategories   ConfigOperation = "sync_categories"
)

// ConfigResult is the outcome of ApplyWorkspaceConfig.
type ConfigResult struct {
	Success               bool              `json:"success"`
	AppliedOperations     []ConfigOperation `json:"applied_operations"`
	VectorIndexStatus     string            `json:"vector_index_status,omitempty"`
	TriggerRulesCount     *int              `json:"trigger_rules_count,omitempty"`
	SyncedCategoriesCount *int              `json:"synced_categories_count,omitempty"`
	Error                 string            `json:"error,omitempty"`

	Logs []LogEntry `json:"-"`
}

// DatabaseInitResult is the outcome of InitializeTenantDatabase.
type DatabaseInitResult struct {
	Success          bool             `json:"success"`
	InitializedKinds []ConnectionKind `json:"initialized_kinds"`
	Error            string           `json:"error,omitempty"`

	Logs []LogEntry `json:"-"`
}

// WorkspaceStatus summarizes the latest workspace-level operations.
type WorkspaceStatus struct {
	DataSeeding   Status `json:"data_seeding"`
	ConfigApplied Status `json:"config_applied"`
}

// DatabaseStatus holds the latest database_init status per connection kind.
type DatabaseStatus struct {
	Relational Status `json:"relational,omitempty"`
	Document   Status `json:"document,omitempty"`
}

// TenantInitializationStatus is recomputed from the ledger on every query.
type TenantInitializationStatus struct {
	TenantID        string                     `json:"tenant_id"`
	OverallStatus   Status                     `json:"overall_status"`
	DatabaseStatus  DatabaseStatus             `json:"database_status"`
	WorkspaceStatus map[string]WorkspaceStatus `json:"workspace_status"`
	Logs            []LogEntry                 `json:"logs"`
}
