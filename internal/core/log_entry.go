package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogEntry records one tracked initialization operation.
//
// ScopeID is the ledger partition key: the tenant for database initialization,
// and the owning tenant (or the workspace, when no tenant is given) for
// workspace-level operations.
type LogEntry struct {
	ID            string        `json:"id"`
	ScopeID       string        `json:"tenant_id"`
	OperationType OperationType `json:"operation_type"`
	Status        Status        `json:"status"`
	Message       string        `json:"message"`
	Details       Details       `json:"details"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`

	// Sequence is the ledger append order, used to break started_at ties.
	Sequence int64 `json:"-"`
}

// Details is the operation-specific payload of a log entry.
// Exactly one concrete type exists per OperationType.
type Details interface {
	Operation() OperationType
	Workspace() string
}

// DatabaseInitDetails is the payload of a database_init entry.
type DatabaseInitDetails struct {
	Kind         ConnectionKind `json:"kind"`
	ConnectionID string         `json:"connection_id"`
	Created      []string       `json:"created"`
}

func (DatabaseInitDetails) Operation() OperationType { return OpDatabaseInit }
func (DatabaseInitDetails) Workspace() string        { return "" }

// DataSeedDetails is the payload of a data_seed entry.
type DataSeedDetails struct {
	WorkspaceID      string            `json:"workspace_id"`
	TenantID         string            `json:"tenant_id,omitempty"`
	DataType         DataType          `json:"data_type"`
	FileCount        int               `json:"file_count"`
	TotalRecords     int               `json:"total_records"`
	FailedRecords    int               `json:"failed_records"`
	ParseResults     []FileParseResult `json:"parse_results"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	Options          SeedOptions       `json:"options"`
}

func (DataSeedDetails) Operation() OperationType { return OpDataSeed }
func (d DataSeedDetails) Workspace() string      { return d.WorkspaceID }

// ConfigApplyDetails is the payload of a config_apply entry.
type ConfigApplyDetails struct {
	WorkspaceID           string            `json:"workspace_id"`
	TenantID              string            `json:"tenant_id,omitempty"`
	Requested             []ConfigOperation `json:"requested"`
	AppliedOperations     []ConfigOperation `json:"applied_operations"`
	VectorIndexStatus     string            `json:"vector_index_status,omitempty"`
	TriggerRulesCount     *int              `json:"trigger_rules_count,omitempty"`
	SyncedCategoriesCount *int              `json:"synced_categories_count,omitempty"`
}

func (ConfigApplyDetails) Operation() OperationType { return OpConfigApply }
func (d ConfigApplyDetails) Workspace() string      { return d.WorkspaceID }

// DecodeDetails rebuilds the typed payload for an operation from its JSON form.
func DecodeDetails(op OperationType, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var d Details
	switch op {
	case OpDatabaseInit:
		var v DatabaseInitDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", op, err)
		}
		d = v
	case OpDataSeed:
		var v DataSeedDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", op, err)
		}
		d = v
	case OpConfigApply:
		var v ConfigApplyDetails
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", op, err)
		}
		d = v
	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
	return d, nil
}

// UnmarshalJSON decodes details according to the entry's operation type.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	type alias LogEntry
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	details, err := DecodeDetails(e.OperationType, aux.Details)
	if err != nil {
		return err
	}
	e.Details = details
	return nil
}

// workspaceKey returns the status bucket for an entry.
func (e LogEntry) workspaceKey() string {
	if e.Details != nil {
		if ws := e.Details.Workspace(); ws != "" {
			return ws
		}
	}
	return UnknownWorkspace
}

// UnknownWorkspace buckets entries whose details carry no workspace id.
const UnknownWorkspace = "unknown"
