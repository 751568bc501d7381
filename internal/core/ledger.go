package core

// ledger.go defines the append-only Log Ledger and its in-memory implementation.
//
// Every tracked operation appends exactly one entry in in_progress and later
// finishes it exactly once with a terminal status. Finished entries are never
// mutated again and no entry is ever removed.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogFilter restricts a ledger query. Zero values match everything.
type LogFilter struct {
	ScopeID       string
	OperationType OperationType
}

// FinishParams carries the terminal transition for an entry.
type FinishParams struct {
	Status       Status
	Message      string
	Details      Details
	ErrorMessage string
}

// Ledger is the storage abstraction for initialization log entries.
// Implementations must support concurrent Append/Finish/List calls.
type Ledger interface {
	// Append stores a new entry. ID, Sequence and StartedAt are assigned when empty.
	Append(ctx context.Context, entry LogEntry) (LogEntry, error)

	// Finish moves a non-terminal entry to a terminal status and sets CompletedAt.
	// Returns ErrEntryTerminal if the entry was already finished, ErrNotFound if unknown.
	Finish(ctx context.Context, id string, p FinishParams) (LogEntry, error)

	// List returns matching entries sorted by StartedAt descending,
	// later appends first on ties.
	List(ctx context.Context, filter LogFilter) ([]LogEntry, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []LogEntry
	index   map[string]int
	seq     int64
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		index: make(map[string]int),
		now:   time.Now,
	}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, entry LogEntry) (LogEntry, error) {
	if entry.Status.IsTerminal() {
		return LogEntry{}, fmt.Errorf("append %s entry: status %s is terminal", entry.OperationType, entry.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if _, exists := l.index[entry.ID]; exists {
		return LogEntry{}, fmt.Errorf("append entry %s: duplicate id", entry.ID)
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = l.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusInProgress
	}
	entry.CompletedAt = nil

	l.seq++
	entry.Sequence = l.seq

	l.index[entry.ID] = len(l.entries)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Finish implements Ledger.
func (l *MemoryLedger) Finish(ctx context.Context, id string, p FinishParams) (LogEntry, error) {
	if !p.Status.IsTerminal() {
		return LogEntry{}, fmt.Errorf("finish entry %s: status %s is not terminal", id, p.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return LogEntry{}, fmt.Errorf("finish entry %s: %w", id, ErrNotFound)
	}

	entry := l.entries[pos]
	if entry.Status.IsTerminal() {
		return entry, fmt.Errorf("finish entry %s: %w", id, ErrEntryTerminal)
	}

	completed := l.now().UTC()
	if completed.Before(entry.StartedAt) {
		completed = entry.StartedAt
	}

	entry.Status = p.Status
	entry.CompletedAt = &completed
	if p.Message != "" {
		entry.Message = p.Message
	}
	if p.Details != nil {
		entry.Details = p.Details
	}
	entry.ErrorMessage = p.ErrorMessage

	l.entries[pos] = entry
	return entry, nil
}

// List implements Ledger.
func (l *MemoryLedger) List(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	l.mu.RLock()
	result := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter.ScopeID != "" && e.ScopeID != filter.ScopeID {
			continue
		}
		if filter.OperationType != "" && e.OperationType != filter.OperationType {
			continue
		}
		result = append(result, e)
	}
	l.mu.RUnlock()

	SortEntriesDesc(result)
	return result, nil
}

// SortEntriesDesc orders entries newest first, later appends first on ties.
func SortEntriesDesc(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].StartedAt.After(entries[j].StartedAt)
		}
		return entries[i].Sequence > entries[j].Sequence
	})
}
