package storage

import (
	"context"
	"sync"

	"github.com/JonMunkholm/tenantinit/internal/core"
)

// MemoryContent is a process-local core.ContentBackend used when no content
// database is configured.
type MemoryContent struct {
	mu         sync.RWMutex
	records    map[string][]storedRecord // workspace -> records
	indexed    map[string]bool
	rules      map[string][]TriggerRule
	categories map[string][]Category
}

type storedRecord struct {
	dataType core.DataType
	record   core.Record
}

// NewMemoryContent creates an empty MemoryContent.
func NewMemoryContent() *MemoryContent {
	return &MemoryContent{
		records:    make(map[string][]storedRecord),
		indexed:    make(map[string]bool),
		rules:      make(map[string][]TriggerRule),
		categories: make(map[string][]Category),
	}
}

var _ core.ContentBackend = (*MemoryContent)(nil)

func (m *MemoryContent) PersistRecords(ctx context.Context, workspaceID string, dataType core.DataType, records []core.Record, opts core.PersistOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.records[workspaceID]
	if opts.Overwrite {
		kept := existing[:0:0]
		for _, r := range existing {
			if r.dataType != dataType {
				kept = append(kept, r)
			}
		}
		existing = kept
	}
	for _, r := range records {
		existing = append(existing, storedRecord{dataType: dataType, record: r})
	}
	m.records[workspaceID] = existing
	return nil
}

func (m *MemoryContent) BuildVectorIndex(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed[workspaceID] = true
	return nil
}

func (m *MemoryContent) RegisterTriggerRules(ctx context.Context, workspaceID string) (int, error) {
	scenarios := m.Records(workspaceID, core.DataScenarios)
	rules := deriveTriggerRules(workspaceID, scenarios)

	m.mu.Lock()
	m.rules[workspaceID] = rules
	m.mu.Unlock()
	return len(rules), nil
}

func (m *MemoryContent) SyncCategories(ctx context.Context, workspaceID string) (int, error) {
	cats := deriveCategories(workspaceID, m.Records(workspaceID, ""))

	m.mu.Lock()
	m.categories[workspaceID] = cats
	m.mu.Unlock()
	return len(cats), nil
}

// Records returns a workspace's records, filtered by data type when non-empty.
func (m *MemoryContent) Records(workspaceID string, dataType core.DataType) []core.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Record
	for _, r := range m.records[workspaceID] {
		if dataType == "" || r.dataType == dataType {
			out = append(out, r.record)
		}
	}
	return out
}

// Indexed reports whether BuildVectorIndex ran for the workspace.
func (m *MemoryContent) Indexed(workspaceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed[workspaceID]
}

// TriggerRules returns the registered rules for a workspace.
func (m *MemoryContent) TriggerRules(workspaceID string) []TriggerRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TriggerRule(nil), m.rules[workspaceID]...)
}

// Categories returns the synced categories for a workspace.
func (m *MemoryContent) Categories(workspaceID string) []Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Category(nil), m.categories[workspaceID]...)
}
