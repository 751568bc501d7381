package core

import (
	"context"
	"fmt"
	"strings"
)

// GetInitializationStatus recomputes a tenant's status from its ledger entries.
// Returns ErrNotFound when the scope has no entries.
func (s *Service) GetInitializationStatus(ctx context.Context, tenantID string) (TenantInitializationStatus, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return TenantInitializationStatus{}, &ValidationError{Fields: []string{"tenant_id: required"}}
	}

	entries, err := s.ledger.List(ctx, LogFilter{ScopeID: tenantID})
	if err != nil {
		return TenantInitializationStatus{}, fmt.Errorf("list logs for %s: %w", tenantID, err)
	}
	if len(entries) == 0 {
		return TenantInitializationStatus{}, fmt.Errorf("tenant %s has no initialization history: %w", tenantID, ErrNotFound)
	}

	return ReduceStatus(tenantID, entries), nil
}

// ReduceStatus folds ledger entries into a TenantInitializationStatus.
// It does not depend on the input order.
func ReduceStatus(tenantID string, entries []LogEntry) TenantInitializationStatus {
	logs := make([]LogEntry, len(entries))
	copy(logs, entries)
	SortEntriesDesc(logs)

	status := TenantInitializationStatus{
		TenantID:        tenantID,
		OverallStatus:   overallStatus(logs),
		WorkspaceStatus: make(map[string]WorkspaceStatus),
		Logs:            logs,
	}

	// logs is newest first, so the first entry seen per key is the latest.
	seenKind := make(map[ConnectionKind]bool)
	seenSeed := make(map[string]bool)
	seenConfig := make(map[string]bool)

	for _, e := range logs {
		switch e.OperationType {
		case OpDatabaseInit:
			d, _ := e.Details.(DatabaseInitDetails)
			if d.Kind == "" || seenKind[d.Kind] {
				continue
			}
			seenKind[d.Kind] = true
			switch d.Kind {
			case KindRelational:
				status.DatabaseStatus.Relational = e.Status
			case KindDocument:
				status.DatabaseStatus.Document = e.Status
			}

		case OpDataSeed:
			key := e.workspaceKey()
			if seenSeed[key] {
				continue
			}
			seenSeed[key] = true
			ws := workspaceEntry(status.WorkspaceStatus, key)
			ws.DataSeeding = e.Status
			status.WorkspaceStatus[key] = ws

		case OpConfigApply:
			key := e.workspaceKey()
			if seenConfig[key] {
				continue
			}
			seenConfig[key] = true
			ws := workspaceEntry(status.WorkspaceStatus, key)
			ws.ConfigApplied = e.Status
			status.WorkspaceStatus[key] = ws
		}
	}

	return status
}

func workspaceEntry(m map[string]WorkspaceStatus, key string) WorkspaceStatus {
	if ws, ok := m[key]; ok {
		return ws
	}
	return WorkspaceStatus{DataSeeding: StatusPending, ConfigApplied: StatusPending}
}

func overallStatus(entries []LogEntry) Status {
	if len(entries) == 0 {
		return StatusPending
	}

	running := false
	for _, e := range entries {
		switch e.Status {
		case StatusFailed:
			return StatusFailed
		case StatusPending, StatusInProgress:
			running = true
		}
	}
	if running {
		return StatusInProgress
	}
	return StatusCompleted
}
