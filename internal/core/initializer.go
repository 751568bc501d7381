package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tenantinit/internal/logging"
)

// errNoConnections is recorded on the ledger when a tenant has nothing to initialize.
var errNoConnections = errors.New("no connection descriptors registered for tenant")

// InitializeTenantDatabase creates the schema and collections of every active
// connection of a tenant, relational first. The first failure stops the run.
// The per-kind database_init entries are the whole audit trail; no outer entry
// is written.
func (s *Service) InitializeTenantDatabase(ctx context.Context, tenantID string) (DatabaseInitResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return DatabaseInitResult{}, &ValidationError{Fields: []string{"tenant_id: required"}}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return DatabaseInitResult{}, err
	}
	defer s.limiter.Release()

	logger := logging.WithFields(ctx, "tenant_id", tenantID, "operation", OpDatabaseInit)
	result := DatabaseInitResult{InitializedKinds: []ConnectionKind{}}

	conns, err := s.registry.ForTenant(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("lookup connections for %s: %w", tenantID, err)
	}

	if len(conns) == 0 {
		entry, err := s.begin(ctx, tenantID, OpDatabaseInit, "database initialization requested", DatabaseInitDetails{Created: []string{}})
		if err != nil {
			return result, err
		}
		entry, finErr := s.finish(ctx, logger, entry, "database initialization failed", nil, errNoConnections)
		result.Logs = append(result.Logs, entry)
		err = joinFinish(fmt.Errorf("tenant %s: %w: %w", tenantID, errNoConnections, ErrNotFound), finErr)
		result.Error = err.Error()
		return result, err
	}

	for _, conn := range conns {
		details := DatabaseInitDetails{Kind: conn.Kind, ConnectionID: conn.ID, Created: []string{}}
		entry, err := s.begin(ctx, tenantID, OpDatabaseInit,
			fmt.Sprintf("initializing %s database %s", conn.Kind, conn.DatabaseName), details)
		if err != nil {
			result.Error = err.Error()
			return result, err
		}

		created, opErr := s.initializeConnection(ctx, conn)
		if opErr != nil {
			entry, finErr := s.finish(ctx, logger, entry, fmt.Sprintf("%s database initialization failed", conn.Kind), details, opErr)
			result.Logs = append(result.Logs, entry)
			err := joinFinish(opErr, finErr)
			result.Error = err.Error()
			return result, err
		}

		details.Created = created
		entry, finErr := s.finish(ctx, logger, entry,
			fmt.Sprintf("%s database initialized (%d objects)", conn.Kind, len(created)), details, nil)
		result.Logs = append(result.Logs, entry)
		if finErr != nil {
			result.Error = finErr.Error()
			return result, finErr
		}
		result.InitializedKinds = append(result.InitializedKinds, conn.Kind)
	}

	result.Success = true
	return result, nil
}

func (s *Service) initializeConnection(ctx context.Context, conn ConnectionDescriptor) ([]string, error) {
	switch conn.Kind {
	case KindRelational:
		err := s.call(ctx, "createSchema", func(ctx context.Context) error {
			return s.backend.CreateSchema(ctx, conn, TenantTables)
		})
		if err != nil {
			return nil, err
		}
		return TableNames(TenantTables), nil

	case KindDocument:
		err := s.call(ctx, "createCollections", func(ctx context.Context) error {
			return s.backend.CreateCollections(ctx, conn, TenantCollections, TenantIndexes)
		})
		if err != nil {
			return nil, err
		}
		return append([]string(nil), TenantCollections...), nil

	default:
		return nil, fmt.Errorf("unsupported connection kind %q", conn.Kind)
	}
}
