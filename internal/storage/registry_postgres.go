package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const connectionColumns = `id, tenant_id, kind, host, port, database_name, username,
	encrypted_credential, status, created_at, superseded_at`

// PostgresRegistry is a core.ConnectionRegistry backed by the tenant_connections table.
type PostgresRegistry struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresRegistry creates a registry on an existing pool.
func NewPostgresRegistry(db DBTX) *PostgresRegistry {
	return &PostgresRegistry{db: db, now: time.Now}
}

var _ core.ConnectionRegistry = (*PostgresRegistry)(nil)

// Register implements core.ConnectionRegistry. The previous active descriptor
// of the same kind is superseded in the same transaction.
func (r *PostgresRegistry) Register(ctx context.Context, d core.ConnectionDescriptor) (core.ConnectionDescriptor, error) {
	d.TenantID = strings.TrimSpace(d.TenantID)
	if err := core.ValidateDescriptor(d); err != nil {
		return core.ConnectionDescriptor{}, err
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = core.ConnDisconnected
	}
	d.CreatedAt = r.now().UTC()
	d.SupersededAt = nil

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	_, err = tx.Exec(ctx, `
		UPDATE tenant_connections SET superseded_at = $3
		WHERE tenant_id = $1 AND kind = $2 AND superseded_at IS NULL`,
		d.TenantID, string(d.Kind), d.CreatedAt)
	if err != nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("supersede %s/%s: %w", d.TenantID, d.Kind, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_connections
			(id, tenant_id, kind, host, port, database_name, username, encrypted_credential, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.TenantID, string(d.Kind), d.Host, d.Port, d.DatabaseName, d.Username,
		d.EncryptedCredential, string(d.Status), d.CreatedAt)
	if err != nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("insert %s/%s: %w", d.TenantID, d.Kind, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("commit register: %w", err)
	}
	return d, nil
}

// ForTenant implements core.ConnectionRegistry.
func (r *PostgresRegistry) ForTenant(ctx context.Context, tenantID string) ([]core.ConnectionDescriptor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+connectionColumns+`
		FROM tenant_connections
		WHERE tenant_id = $1 AND superseded_at IS NULL
		ORDER BY CASE kind WHEN 'relational' THEN 0 ELSE 1 END`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connections for %s: %w", tenantID, err)
	}
	return collectDescriptors(rows)
}

// History returns every descriptor registered for a tenant, oldest first.
func (r *PostgresRegistry) History(ctx context.Context, tenantID string) ([]core.ConnectionDescriptor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+connectionColumns+`
		FROM tenant_connections
		WHERE tenant_id = $1
		ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("connection history for %s: %w", tenantID, err)
	}
	return collectDescriptors(rows)
}

func collectDescriptors(rows pgx.Rows) ([]core.ConnectionDescriptor, error) {
	defer rows.Close()

	var out []core.ConnectionDescriptor
	for rows.Next() {
		var (
			id           pgtype.UUID
			d            core.ConnectionDescriptor
			kind, status string
			superseded   pgtype.Timestamptz
		)
		err := rows.Scan(&id, &d.TenantID, &kind, &d.Host, &d.Port, &d.DatabaseName, &d.Username,
			&d.EncryptedCredential, &status, &d.CreatedAt, &superseded)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		d.ID = uuid.UUID(id.Bytes).String()
		d.Kind = core.ConnectionKind(kind)
		d.Status = core.ConnectionStatus(status)
		d.CreatedAt = d.CreatedAt.UTC()
		if superseded.Valid {
			t := superseded.Time.UTC()
			d.SupersededAt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
