package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const ledgerColumns = `id, seq, scope_id, operation_type, status, message, details,
	started_at, completed_at, error_message`

// PostgresLedger is a core.Ledger backed by the initialization_logs table.
type PostgresLedger struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresLedger creates a ledger on an existing pool.
// Call EnsureSchema once before use.
func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

var _ core.Ledger = (*PostgresLedger)(nil)

// Append implements core.Ledger.
func (l *PostgresLedger) Append(ctx context.Context, entry core.LogEntry) (core.LogEntry, error) {
	if entry.Status.IsTerminal() {
		return core.LogEntry{}, fmt.Errorf("append %s entry: status %s is terminal", entry.OperationType, entry.Status)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = l.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = core.StatusInProgress
	}
	entry.CompletedAt = nil

	details, err := encodeDetails(entry.Details)
	if err != nil {
		return core.LogEntry{}, err
	}

	err = l.db.QueryRow(ctx, `
		INSERT INTO initialization_logs
			(id, scope_id, operation_type, status, message, details, started_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		entry.ID, entry.ScopeID, string(entry.OperationType), string(entry.Status),
		entry.Message, details, entry.StartedAt, entry.ErrorMessage,
	).Scan(&entry.Sequence)
	if err != nil {
		return core.LogEntry{}, fmt.Errorf("append %s entry: %w", entry.OperationType, err)
	}
	return entry, nil
}

// Finish implements core.Ledger. The status guard in the UPDATE makes the
// terminal transition one-shot even across processes.
func (l *PostgresLedger) Finish(ctx context.Context, id string, p core.FinishParams) (core.LogEntry, error) {
	if !p.Status.IsTerminal() {
		return core.LogEntry{}, fmt.Errorf("finish entry %s: status %s is not terminal", id, p.Status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return core.LogEntry{}, fmt.Errorf("finish entry %s: %w", id, core.ErrNotFound)
	}

	details, err := encodeDetails(p.Details)
	if err != nil {
		return core.LogEntry{}, err
	}

	row := l.db.QueryRow(ctx, `
		UPDATE initialization_logs SET
			status = $2,
			message = COALESCE(NULLIF($3, ''), message),
			details = COALESCE($4, details),
			error_message = $5,
			completed_at = GREATEST($6::timestamptz, started_at)
		WHERE id = $1 AND status IN ('pending', 'in_progress')
		RETURNING `+ledgerColumns,
		id, string(p.Status), p.Message, details, p.ErrorMessage, l.now().UTC(),
	)

	entry, err := scanLogEntry(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.LogEntry{}, fmt.Errorf("finish entry %s: %w", id, err)
	}

	existing, err := scanLogEntry(l.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM initialization_logs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.LogEntry{}, fmt.Errorf("finish entry %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.LogEntry{}, fmt.Errorf("finish entry %s: %w", id, err)
	}
	return existing, fmt.Errorf("finish entry %s: %w", id, core.ErrEntryTerminal)
}

// List implements core.Ledger.
func (l *PostgresLedger) List(ctx context.Context, filter core.LogFilter) ([]core.LogEntry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM initialization_logs
		WHERE ($1 = '' OR scope_id = $1) AND ($2 = '' OR operation_type = $2)
		ORDER BY started_at DESC, seq DESC`,
		filter.ScopeID, string(filter.OperationType),
	)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]core.LogEntry, 0)
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	return entries, nil
}

func encodeDetails(d core.Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s details: %w", d.Operation(), err)
	}
	return raw, nil
}

func scanLogEntry(row pgx.Row) (core.LogEntry, error) {
	var (
		id          pgtype.UUID
		seq         int64
		scopeID     string
		opType      string
		status      string
		message     string
		details     []byte
		startedAt   time.Time
		completedAt pgtype.Timestamptz
		errMessage  string
	)

	err := row.Scan(&id, &seq, &scopeID, &opType, &status, &message, &details,
		&startedAt, &completedAt, &errMessage)
	if err != nil {
		return core.LogEntry{}, err
	}

	entry := core.LogEntry{
		ID:            uuid.UUID(id.Bytes).String(),
		Sequence:      seq,
		ScopeID:       scopeID,
		OperationType: core.OperationType(opType),
		Status:        core.Status(status),
		Message:       message,
		StartedAt:     startedAt.UTC(),
		ErrorMessage:  errMessage,
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		entry.CompletedAt = &t
	}

	entry.Details, err = core.DecodeDetails(entry.OperationType, details)
	if err != nil {
		return core.LogEntry{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	return entry, nil
}
