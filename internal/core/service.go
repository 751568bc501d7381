package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/logging"
)

// DefaultCollaboratorTimeout bounds a single collaborator call.
var DefaultCollaboratorTimeout = 2 * time.Minute

// DefaultBatchSize is used when a seed request does not set one.
const DefaultBatchSize = 500

// Sealer encrypts a plain credential for storage on a connection descriptor.
type Sealer interface {
	Seal(plain string) (string, error)
}

// Options configures a Service.
type Options struct {
	MaxFileSize         int64
	MaxConcurrent       int
	MaxWait             time.Duration
	CollaboratorTimeout time.Duration
	DefaultBatchSize    int
	Sealer              Sealer
}

// Service sequences tenant initialization and records every stage in the ledger.
type Service struct {
	ledger   Ledger
	registry ConnectionRegistry
	backend  Backend
	parser   *Parser
	limiter  *OperationLimiter
	sealer   Sealer

	collaboratorTimeout time.Duration
	defaultBatchSize    int
}

// NewService creates a Service over the given ledger, registry and backend.
func NewService(ledger Ledger, registry ConnectionRegistry, backend Backend, opts Options) *Service {
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = DefaultBatchSize
	}

	return &Service{
		ledger:              ledger,
		registry:            registry,
		backend:             backend,
		parser:              NewParser(opts.MaxFileSize),
		limiter:             NewOperationLimiter(opts.MaxConcurrent, opts.MaxWait),
		sealer:              opts.Sealer,
		collaboratorTimeout: opts.CollaboratorTimeout,
		defaultBatchSize:    opts.DefaultBatchSize,
	}
}

// Limiter exposes the operation limiter for health reporting and shutdown drain.
func (s *Service) Limiter() *OperationLimiter {
	return s.limiter
}

// GetAllLogs returns every ledger entry, newest first.
func (s *Service) GetAllLogs(ctx context.Context) ([]LogEntry, error) {
	entries, err := s.ledger.List(ctx, LogFilter{})
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return entries, nil
}

// GetTenantLogs returns entries for one scope key, newest first.
func (s *Service) GetTenantLogs(ctx context.Context, tenantID string) ([]LogEntry, error) {
	entries, err := s.ledger.List(ctx, LogFilter{ScopeID: strings.TrimSpace(tenantID)})
	if err != nil {
		return nil, fmt.Errorf("list logs for %s: %w", tenantID, err)
	}
	return entries, nil
}

// RegisterConnection validates and registers a descriptor. A non-empty password
// is sealed into EncryptedCredential first.
func (s *Service) RegisterConnection(ctx context.Context, d ConnectionDescriptor, password string) (ConnectionDescriptor, error) {
	if err := ValidateDescriptor(d); err != nil {
		return ConnectionDescriptor{}, err
	}

	if password != "" {
		if s.sealer == nil {
			return ConnectionDescriptor{}, fmt.Errorf("register connection: no credential key configured")
		}
		sealed, err := s.sealer.Seal(password)
		if err != nil {
			return ConnectionDescriptor{}, fmt.Errorf("seal credential: %w", err)
		}
		d.EncryptedCredential = sealed
	}

	registered, err := s.registry.Register(ctx, d)
	if err != nil {
		return ConnectionDescriptor{}, fmt.Errorf("register connection: %w", err)
	}

	logging.FromContext(ctx).Info("connection registered",
		"tenant_id", registered.TenantID,
		"kind", registered.Kind,
		"connection_id", registered.ID,
	)
	return registered, nil
}

// ListConnections returns the active descriptors of a tenant.
func (s *Service) ListConnections(ctx context.Context, tenantID string) ([]ConnectionDescriptor, error) {
	ds, err := s.registry.ForTenant(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return ds, nil
}

// begin appends an in_progress entry.
func (s *Service) begin(ctx context.Context, scope string, op OperationType, msg string, details Details) (LogEntry, error) {
	entry, err := s.ledger.Append(ctx, LogEntry{
		ScopeID:       scope,
		OperationType: op,
		Status:        StatusInProgress,
		Message:       msg,
		Details:       details,
	})
	if err != nil {
		return LogEntry{}, fmt.Errorf("append %s entry: %w", op, err)
	}
	return entry, nil
}

// finishAttempts and finishRetryDelay bound how hard finish tries the ledger.
var (
	finishAttempts   = 3
	finishRetryDelay = 200 * time.Millisecond
)

// finish moves an entry to its terminal status, detached from ctx
// cancellation. A ledger failure is retried; if every attempt fails the entry
// is returned as stored and the error wraps ErrEntryNotFinalized.
func (s *Service) finish(ctx context.Context, logger *slog.Logger, entry LogEntry, msg string, details Details, opErr error) (LogEntry, error) {
	p := FinishParams{
		Status:  StatusCompleted,
		Message: msg,
		Details: details,
	}
	if opErr != nil {
		p.Status = StatusFailed
		p.ErrorMessage = opErr.Error()
	}

	detached := context.WithoutCancel(ctx)

	var (
		done LogEntry
		err  error
	)
	for attempt := 1; attempt <= finishAttempts; attempt++ {
		done, err = s.ledger.Finish(detached, entry.ID, p)
		if err == nil || errors.Is(err, ErrEntryTerminal) || errors.Is(err, ErrNotFound) {
			break
		}
		if attempt < finishAttempts {
			logger.Warn("finish log entry failed, retrying", "entry_id", entry.ID, "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * finishRetryDelay)
		}
	}
	if err != nil {
		logger.Error("failed to finish log entry", "entry_id", entry.ID, "error", err)
		return entry, fmt.Errorf("%w: %s entry %s: %w", ErrEntryNotFinalized, entry.OperationType, entry.ID, err)
	}

	if opErr != nil {
		logger.Warn("operation failed", "entry_id", done.ID, "operation", done.OperationType, "error", opErr)
	} else {
		logger.Info("operation completed", "entry_id", done.ID, "operation", done.OperationType)
	}
	return done, nil
}

// joinFinish combines an operation error with a finalize error; either may be nil.
func joinFinish(opErr, finErr error) error {
	switch {
	case finErr == nil:
		return opErr
	case opErr == nil:
		return finErr
	default:
		return errors.Join(opErr, finErr)
	}
}

// call runs a collaborator function under the collaborator timeout and
// classifies its failure as an ExternalCallError.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.collaboratorTimeout)
	defer cancel()
	return externalCall(op, fn(callCtx))
}

// scopeKey picks the ledger partition for a workspace-level operation.
func scopeKey(tenantID, workspaceID string) string {
	if t := strings.TrimSpace(tenantID); t != "" {
		return t
	}
	return strings.TrimSpace(workspaceID)
}
