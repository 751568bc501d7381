package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/JonMunkholm/tenantinit/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSchema satisfies core.SchemaBackend without touching a database.
type fakeSchema struct {
	err error
}

func (f *fakeSchema) CreateSchema(ctx context.Context, conn core.ConnectionDescriptor, tables []core.SchemaDef) error {
	return f.err
}

func (f *fakeSchema) CreateCollections(ctx context.Context, conn core.ConnectionDescriptor, names []string, indexes []core.IndexDef) error {
	return f.err
}

type testServer struct {
	srv     *Server
	service *core.Service
	schema  *fakeSchema
	content *storage.MemoryContent
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	key, err := storage.GenerateKey()
	require.NoError(t, err)
	box, err := storage.NewCredentialBox(key)
	require.NoError(t, err)

	schema := &fakeSchema{}
	content := storage.NewMemoryContent()
	service := core.NewService(core.NewMemoryLedger(), core.NewMemoryRegistry(),
		core.CombineBackends(schema, content), core.Options{
			MaxConcurrent:       2,
			MaxWait:             50 * time.Millisecond,
			CollaboratorTimeout: 5 * time.Second,
			Sealer:              box,
		})

	srv := NewServer(service, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, service: service, schema: schema, content: content}
}

// envelope is the decoded form of any API response.
type envelope struct {
	Success          bool              `json:"success"`
	Data             json.RawMessage   `json:"data"`
	InitializedKinds []string          `json:"initialized_kinds"`
	Logs             []json.RawMessage `json:"logs"`
	Error            string            `json:"error"`
	Code             string            `json:"code"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, envelope, string) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)

	var env envelope
	raw := rec.Body.String()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), raw)
	return rec.Code, env, raw
}

func (ts *testServer) registerBoth(t *testing.T, tenant string) {
	t.Helper()
	for _, c := range []map[string]any{
		{"tenant_id": tenant, "kind": "relational", "host": "pg.internal", "port": 5432, "database_name": "t", "username": "app", "password": "pw"},
		{"tenant_id": tenant, "kind": "document", "host": "mongo.internal", "port": 27017, "database_name": "t"},
	} {
		code, env, _ := ts.do(t, http.MethodPost, "/api/connections", c)
		require.Equal(t, http.StatusCreated, code, env.Error)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"max_concurrent":2`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestInitializeDatabase_NoConnections(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, env, _ := ts.do(t, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": "acme"})

	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Empty(t, env.InitializedKinds)
	require.Len(t, env.Logs, 1)
	assert.Contains(t, string(env.Logs[0]), `"status":"failed"`)
	assert.Equal(t, "TEN001", env.Code)
}

func TestInitializeDatabase_Success(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.registerBoth(t, "acme")

	code, env, _ := ts.do(t, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": "acme"})

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"relational", "document"}, env.InitializedKinds)
	assert.Len(t, env.Logs, 2)
}

func TestInitializeDatabase_CollaboratorFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.registerBoth(t, "acme")
	ts.schema.err = errors.New("dial tcp: connection refused")

	code, env, _ := ts.do(t, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": "acme"})

	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, env.Success)
	assert.Equal(t, "EXT001", env.Code)
	require.Len(t, env.Logs, 1, "stops at the first failing kind")
}

func TestInitializeDatabase_BadBody(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/initialize-database", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestRegisterConnection_NeverReturnsCredential(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.registerBoth(t, "acme")

	code, env, raw := ts.do(t, http.MethodGet, "/api/connections?tenant_id=acme", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.NotContains(t, raw, "pw")
	assert.NotContains(t, raw, "credential")

	var conns []core.ConnectionDescriptor
	require.NoError(t, json.Unmarshal(env.Data, &conns))
	assert.Len(t, conns, 2)

	code, _, _ = ts.do(t, http.MethodGet, "/api/connections", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env, _ = ts.do(t, http.MethodPost, "/api/connections", map[string]any{"tenant_id": "acme", "kind": "graph"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VAL001", env.Code)
}

func TestSeedWorkspace(t *testing.T) {
	ts := newTestServer(t, Options{})

	csv := []byte("question,answer\nHow do refunds work?,Within 30 days\nShipping time?,\n")
	code, env, _ := ts.do(t, http.MethodPost, "/api/seed-workspace", map[string]any{
		"workspace_id": "ws-1",
		"tenant_id":    "acme",
		"data_type":    "faq",
		"files":        []map[string]any{{"name": "faq.csv", "content": csv}},
		"options":      map[string]any{"auto_categorize": true},
	})

	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, env.Success)
	require.Len(t, env.Logs, 1)

	var result core.SeedResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.ProcessedFiles)
	assert.Equal(t, 2, result.TotalRecords)
	assert.Equal(t, 1, result.FailedRecords)

	records := ts.content.Records("ws-1", core.DataFAQ)
	require.Len(t, records, 1)
	assert.Equal(t, "faq", records[0].Category)
}

func TestSeedWorkspace_UnreadableFile(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, env, _ := ts.do(t, http.MethodPost, "/api/seed-workspace", map[string]any{
		"workspace_id": "ws-1",
		"data_type":    "documents",
		"files":        []map[string]any{{"name": "broken.xlsx", "content": []byte("not a zip")}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)
	require.Len(t, env.Logs, 1)
	assert.Contains(t, string(env.Logs[0]), `"status":"failed"`)
	assert.Contains(t, env.Error, "broken.xlsx")
}

func TestSeedWorkspace_Validation(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, env, _ := ts.do(t, http.MethodPost, "/api/seed-workspace", map[string]any{
		"workspace_id": "ws-1",
		"data_type":    "recipes",
		"files":        []map[string]any{{"name": "a.csv", "content": []byte("x")}},
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, env.Logs, "no entry is written for rejected requests")
	assert.Nil(t, env.Data)
}

func TestApplyConfig(t *testing.T) {
	ts := newTestServer(t, Options{})

	csv := []byte("name,description,category\nEscalate,Hand off to a human,support\n")
	code, _, _ := ts.do(t, http.MethodPost, "/api/seed-workspace", map[string]any{
		"workspace_id": "ws-1",
		"data_type":    "scenarios",
		"files":        []map[string]any{{"name": "s.csv", "content": csv}},
	})
	require.Equal(t, http.StatusOK, code)

	code, env, _ := ts.do(t, http.MethodPost, "/api/apply-config", map[string]any{
		"workspace_id": "ws-1",
		"operations": map[string]bool{
			"create_vector_index":    true,
			"register_trigger_rules": true,
			"sync_categories":        true,
		},
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	var result core.ConfigResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, []core.ConfigOperation{core.ConfigVectorIndex, core.ConfigTriggerRules, core.ConfigCategories}, result.AppliedOperations)
	assert.Equal(t, "ready", result.VectorIndexStatus)
	require.NotNil(t, result.TriggerRulesCount)
	assert.Equal(t, 1, *result.TriggerRulesCount)
	assert.True(t, ts.content.Indexed("ws-1"))
}

func TestStatusAndLogs(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, env, _ := ts.do(t, http.MethodGet, "/api/status/acme", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, _, _ = ts.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	ts.registerBoth(t, "acme")
	code, _, _ = ts.do(t, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": "acme"})
	require.Equal(t, http.StatusOK, code)

	code, env, _ = ts.do(t, http.MethodGet, "/api/status?tenant_id=acme", nil)
	require.Equal(t, http.StatusOK, code)
	var status core.TenantInitializationStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, core.StatusCompleted, status.OverallStatus)
	assert.Equal(t, core.StatusCompleted, status.DatabaseStatus.Relational)
	assert.Equal(t, core.StatusCompleted, status.DatabaseStatus.Document)

	code, env, _ = ts.do(t, http.MethodGet, "/api/logs?tenant_id=acme", nil)
	require.Equal(t, http.StatusOK, code)
	var logs []core.LogEntry
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, core.KindDocument, logs[0].Details.(core.DatabaseInitDetails).Kind, "newest first")

	code, env, _ = ts.do(t, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 2)
}

func TestBusy(t *testing.T) {
	ts := newTestServer(t, Options{})
	lim := ts.service.Limiter()
	require.NoError(t, lim.Acquire(context.Background()))
	require.NoError(t, lim.Acquire(context.Background()))
	defer lim.Release()
	defer lim.Release()

	code, env, _ := ts.do(t, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": "acme"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "OPS001", env.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitEnabled: true, RequestsPerMinute: 1, RateBurst: 1})

	code, _, _ := ts.do(t, http.MethodGet, "/api/logs", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env, _ := ts.do(t, http.MethodGet, "/api/logs", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE001", env.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Options{})
	code, env, _ := ts.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}
