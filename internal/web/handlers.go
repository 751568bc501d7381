package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/go-chi/chi/v5"
)

// dataResponse is the envelope for queries.
type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	apiError
}

// operationResponse is the envelope for seed and config operations.
type operationResponse struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Logs    []core.LogEntry `json:"logs"`
	apiError
}

// initializeResponse is the envelope for database initialization.
type initializeResponse struct {
	Success          bool                  `json:"success"`
	InitializedKinds []core.ConnectionKind `json:"initialized_kinds"`
	Logs             []core.LogEntry       `json:"logs"`
	apiError
}

type initializeRequest struct {
	TenantID string `json:"tenant_id"`
}

// registerConnectionRequest carries a plain password, sealed before storage.
type registerConnectionRequest struct {
	TenantID     string `json:"tenant_id"`
	Kind         string `json:"kind"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"database_name"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type healthResponse struct {
	Status     string             `json:"status"`
	Operations core.LimiterStatus `json:"operations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Operations: s.service.Limiter().Status(),
	})
}

func (s *Server) handleInitializeDatabase(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := s.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.InitializeTenantDatabase(r.Context(), req.TenantID)
	resp := initializeResponse{
		Success:          result.Success,
		InitializedKinds: nonNil(result.InitializedKinds),
		Logs:             nonNil(result.Logs),
	}
	if err != nil {
		status := statusFor(err)
		resp.apiError = toAPIError(r, err, status)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeedWorkspace(w http.ResponseWriter, r *http.Request) {
	var req core.SeedRequest
	if err := s.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.SeedWorkspaceData(r.Context(), req)
	s.writeOperation(w, r, result.Success, result, result.Logs, err)
}

func (s *Server) handleApplyConfig(w http.ResponseWriter, r *http.Request) {
	var req core.ConfigRequest
	if err := s.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.ApplyWorkspaceConfig(r.Context(), req)
	s.writeOperation(w, r, result.Success, result, result.Logs, err)
}

// writeOperation writes an operation envelope. data is omitted when the
// operation never started.
func (s *Server) writeOperation(w http.ResponseWriter, r *http.Request, ok bool, data any, logs []core.LogEntry, err error) {
	resp := operationResponse{Success: ok, Logs: nonNil(logs)}
	if len(logs) > 0 {
		resp.Data = data
	}
	if err != nil {
		status := statusFor(err)
		resp.apiError = toAPIError(r, err, status)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant_id")
	}

	status, err := s.service.GetInitializationStatus(r.Context(), tenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: status})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var (
		entries []core.LogEntry
		err     error
	)
	if tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id")); tenantID != "" {
		entries, err = s.service.GetTenantLogs(r.Context(), tenantID)
	} else {
		entries, err = s.service.GetAllLogs(r.Context())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: nonNil(entries)})
}

func (s *Server) handleRegisterConnection(w http.ResponseWriter, r *http.Request) {
	var req registerConnectionRequest
	if err := s.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	d := core.ConnectionDescriptor{
		TenantID:     strings.TrimSpace(req.TenantID),
		Kind:         core.ConnectionKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Host:         strings.TrimSpace(req.Host),
		Port:         req.Port,
		DatabaseName: req.DatabaseName,
		Username:     req.Username,
	}

	registered, err := s.service.RegisterConnection(r.Context(), d, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Success: true, Data: registered})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		respondError(w, r, &core.ValidationError{Fields: []string{"tenant_id: required"}})
		return
	}

	conns, err := s.service.ListConnections(r.Context(), tenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: nonNil(conns)})
}

// decode reads a JSON body of at most MaxBodyBytes into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &core.ValidationError{Fields: []string{fmt.Sprintf("body: exceeds %d bytes", tooLarge.Limit)}}
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Fields: []string{"body: required"}}
		default:
			return &core.ValidationError{Fields: []string{"body: " + err.Error()}}
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
