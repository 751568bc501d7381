package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type persistCall struct {
	WorkspaceID string
	DataType    DataType
	Records     []Record
	Opts        PersistOptions
}

// fakeBackend records collaborator calls and fails on demand.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	schemaErr      error
	collectionsErr error
	persistErr     error
	vectorErr      error
	triggerErr     error
	syncErr        error

	triggerCount  int
	categoryCount int

	schemaConns []ConnectionDescriptor
	persisted   []persistCall
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) CreateSchema(ctx context.Context, conn ConnectionDescriptor, tables []SchemaDef) error {
	f.record("createSchema")
	f.mu.Lock()
	f.schemaConns = append(f.schemaConns, conn)
	f.mu.Unlock()
	return f.schemaErr
}

func (f *fakeBackend) CreateCollections(ctx context.Context, conn ConnectionDescriptor, names []string, indexes []IndexDef) error {
	f.record("createCollections")
	return f.collectionsErr
}

func (f *fakeBackend) PersistRecords(ctx context.Context, workspaceID string, dataType DataType, records []Record, opts PersistOptions) error {
	f.record("persistRecords")
	f.mu.Lock()
	f.persisted = append(f.persisted, persistCall{workspaceID, dataType, records, opts})
	f.mu.Unlock()
	return f.persistErr
}

func (f *fakeBackend) BuildVectorIndex(ctx context.Context, workspaceID string) error {
	f.record("buildVectorIndex")
	return f.vectorErr
}

func (f *fakeBackend) RegisterTriggerRules(ctx context.Context, workspaceID string) (int, error) {
	f.record("registerTriggerRules")
	if f.triggerErr != nil {
		return 0, f.triggerErr
	}
	return f.triggerCount, nil
}

func (f *fakeBackend) SyncCategories(ctx context.Context, workspaceID string) (int, error) {
	f.record("syncCategories")
	if f.syncErr != nil {
		return 0, f.syncErr
	}
	return f.categoryCount, nil
}

type testEnv struct {
	svc      *Service
	ledger   *MemoryLedger
	registry *MemoryRegistry
	backend  *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger:   NewMemoryLedger(),
		registry: NewMemoryRegistry(),
		backend:  &fakeBackend{},
	}
	env.svc = NewService(env.ledger, env.registry, env.backend, Options{
		MaxConcurrent:       4,
		MaxWait:             time.Second,
		CollaboratorTimeout: 5 * time.Second,
	})
	return env
}

func (e *testEnv) register(t *testing.T, tenantID string, kind ConnectionKind) ConnectionDescriptor {
	t.Helper()
	d, err := e.registry.Register(context.Background(), ConnectionDescriptor{
		TenantID:     tenantID,
		Kind:         kind,
		Host:         "db.internal",
		Port:         5432,
		DatabaseName: tenantID + "_" + string(kind),
		Username:     "svc",
	})
	require.NoError(t, err)
	return d
}

func (e *testEnv) entries(t *testing.T, scope string) []LogEntry {
	t.Helper()
	entries, err := e.ledger.List(context.Background(), LogFilter{ScopeID: scope})
	require.NoError(t, err)
	return entries
}

// requireAllTerminal checks that every entry is finished with completed_at >= started_at.
func requireAllTerminal(t *testing.T, entries []LogEntry) {
	t.Helper()
	for _, e := range entries {
		require.True(t, e.Status.IsTerminal(), "entry %s left %s", e.ID, e.Status)
		require.NotNil(t, e.CompletedAt, "entry %s has no completed_at", e.ID)
		require.False(t, e.CompletedAt.Before(e.StartedAt), "entry %s completed before it started", e.ID)
	}
}

// failingFinishLedger wraps a MemoryLedger and rejects the first failFinish
// Finish calls; a negative failFinish rejects all of them.
type failingFinishLedger struct {
	*MemoryLedger

	mu          sync.Mutex
	failFinish  int
	finishCalls int
}

func (l *failingFinishLedger) Finish(ctx context.Context, id string, p FinishParams) (LogEntry, error) {
	l.mu.Lock()
	l.finishCalls++
	fail := l.failFinish < 0 || l.finishCalls <= l.failFinish
	l.mu.Unlock()

	if fail {
		return LogEntry{}, errors.New("write tcp 10.0.0.5:5432: connection reset by peer")
	}
	return l.MemoryLedger.Finish(ctx, id, p)
}

func (l *failingFinishLedger) FinishCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finishCalls
}

// newFailingFinishEnv builds a test env whose ledger rejects Finish calls.
func newFailingFinishEnv(t *testing.T, failFinish int) (*testEnv, *failingFinishLedger) {
	t.Helper()

	delay := finishRetryDelay
	finishRetryDelay = 0
	t.Cleanup(func() { finishRetryDelay = delay })

	env := newTestEnv(t)
	ledger := &failingFinishLedger{MemoryLedger: env.ledger, failFinish: failFinish}
	env.svc = NewService(ledger, env.registry, env.backend, Options{
		MaxConcurrent:       4,
		MaxWait:             time.Second,
		CollaboratorTimeout: 5 * time.Second,
	})
	return env, ledger
}
