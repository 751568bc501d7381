package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status/acme%20co", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": core.TenantInitializationStatus{
				TenantID:      "acme co",
				OverallStatus: core.StatusCompleted,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	status, err := c.Status(context.Background(), "acme co")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, status.OverallStatus)
}

func TestClient_ErrorKeepsLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme", body["tenant_id"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":           false,
			"initialized_kinds": []string{},
			"logs":              []core.LogEntry{{ID: "e1", ScopeID: "acme", OperationType: core.OpDatabaseInit, Status: core.StatusFailed}},
			"error":             "Not found",
			"code":              "TEN001",
		})
	}))
	defer srv.Close()

	env, err := New(srv.URL, time.Second).InitializeDatabase(context.Background(), "acme")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "TEN001", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "TEN001")
	require.Len(t, env.Logs, 1)
	assert.Equal(t, core.StatusFailed, env.Logs[0].Status)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Logs(context.Background(), "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
}
