// Package client is a small HTTP client for the orchestrator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
)

// Client calls the orchestrator API at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. timeout bounds each request; zero means no limit.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Envelope is the response shape shared by every endpoint.
type Envelope[T any] struct {
	Success          bool                  `json:"success"`
	Data             T                     `json:"data"`
	InitializedKinds []core.ConnectionKind `json:"initialized_kinds,omitempty"`
	Logs             []core.LogEntry       `json:"logs,omitempty"`
	Error            string                `json:"error,omitempty"`
	Code             string                `json:"code,omitempty"`
	Action           string                `json:"action,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
	Action  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", msg, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
}

// ConnectionInput registers one tenant database.
type ConnectionInput struct {
	TenantID     string `json:"tenant_id"`
	Kind         string `json:"kind"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"database_name"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// InitializeDatabase runs database initialization for a tenant.
func (c *Client) InitializeDatabase(ctx context.Context, tenantID string) (Envelope[json.RawMessage], error) {
	var env Envelope[json.RawMessage]
	err := c.do(ctx, http.MethodPost, "/api/initialize-database", map[string]string{"tenant_id": tenantID}, &env)
	return env, err
}

// SeedWorkspace uploads files for a workspace.
func (c *Client) SeedWorkspace(ctx context.Context, req core.SeedRequest) (Envelope[*core.SeedResult], error) {
	var env Envelope[*core.SeedResult]
	err := c.do(ctx, http.MethodPost, "/api/seed-workspace", req, &env)
	return env, err
}

// ApplyConfig applies workspace configuration operations.
func (c *Client) ApplyConfig(ctx context.Context, req core.ConfigRequest) (Envelope[*core.ConfigResult], error) {
	var env Envelope[*core.ConfigResult]
	err := c.do(ctx, http.MethodPost, "/api/apply-config", req, &env)
	return env, err
}

// Status fetches the derived initialization status of a tenant.
func (c *Client) Status(ctx context.Context, tenantID string) (core.TenantInitializationStatus, error) {
	var env Envelope[core.TenantInitializationStatus]
	err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(tenantID), nil, &env)
	return env.Data, err
}

// Logs lists ledger entries, for one tenant when tenantID is set.
func (c *Client) Logs(ctx context.Context, tenantID string) ([]core.LogEntry, error) {
	path := "/api/logs"
	if tenantID != "" {
		path += "?" + url.Values{"tenant_id": {tenantID}}.Encode()
	}
	var env Envelope[[]core.LogEntry]
	err := c.do(ctx, http.MethodGet, path, nil, &env)
	return env.Data, err
}

// RegisterConnection registers a tenant database connection.
func (c *Client) RegisterConnection(ctx context.Context, in ConnectionInput) (core.ConnectionDescriptor, error) {
	var env Envelope[core.ConnectionDescriptor]
	err := c.do(ctx, http.MethodPost, "/api/connections", in, &env)
	return env.Data, err
}

// ListConnections returns a tenant's active connections.
func (c *Client) ListConnections(ctx context.Context, tenantID string) ([]core.ConnectionDescriptor, error) {
	var env Envelope[[]core.ConnectionDescriptor]
	err := c.do(ctx, http.MethodGet, "/api/connections?"+url.Values{"tenant_id": {tenantID}}.Encode(), nil, &env)
	return env.Data, err
}

// do sends body as JSON and decodes the envelope into out even on error
// responses, so callers can still show the ledger entries written.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error  string `json:"error"`
			Code   string `json:"code"`
			Action string `json:"action"`
		}
		if json.Unmarshal(data, &apiErr) != nil {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		_ = json.Unmarshal(data, out)
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error, Action: apiErr.Action}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
