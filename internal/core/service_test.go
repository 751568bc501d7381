package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinish_RetriesTransientLedgerError(t *testing.T) {
	env, ledger := newFailingFinishEnv(t, finishAttempts-1)

	res, err := env.svc.ApplyWorkspaceConfig(context.Background(), ConfigRequest{WorkspaceID: "W2"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, finishAttempts, ledger.FinishCalls())

	entries := env.entries(t, "W2")
	require.Len(t, entries, 1)
	requireAllTerminal(t, entries)
	assert.Equal(t, entries[0], res.Logs[0])
}

func TestApplyWorkspaceConfig_LedgerFinishFails(t *testing.T) {
	env, ledger := newFailingFinishEnv(t, -1)

	res, err := env.svc.ApplyWorkspaceConfig(context.Background(), ConfigRequest{WorkspaceID: "W2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryNotFinalized)
	assert.Equal(t, "OPS003", MapError(err).Code)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, finishAttempts, ledger.FinishCalls())

	// The returned entry matches what the ledger holds; no terminal status is made up.
	require.Len(t, res.Logs, 1)
	assert.Equal(t, StatusInProgress, res.Logs[0].Status)
	assert.Nil(t, res.Logs[0].CompletedAt)

	entries := env.entries(t, "W2")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusInProgress, entries[0].Status)
}

func TestSeedWorkspaceData_LedgerFinishFailsAfterPersistFailure(t *testing.T) {
	env, _ := newFailingFinishEnv(t, -1)
	env.backend.persistErr = errors.New("connection refused")

	res, err := env.svc.SeedWorkspaceData(context.Background(), SeedRequest{
		WorkspaceID: "W1",
		DataType:    DataFAQ,
		Files:       []UploadedFile{{Name: "faq.csv", Content: []byte("question,answer\nq,a\n")}},
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, err, ErrEntryNotFinalized)
	assert.True(t, IsExternalCall(err))
}

func TestInitializeTenantDatabase_LedgerFinishFails(t *testing.T) {
	env, _ := newFailingFinishEnv(t, -1)
	env.register(t, "T1", KindRelational)
	env.register(t, "T1", KindDocument)

	res, err := env.svc.InitializeTenantDatabase(context.Background(), "T1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryNotFinalized)
	assert.False(t, res.Success)
	assert.Empty(t, res.InitializedKinds)

	// The run stops at the first entry it cannot finalize.
	assert.Equal(t, []string{"createSchema"}, env.backend.Calls())
}

func TestFinish_TerminalEntryIsNotRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entry, err := env.svc.begin(ctx, "T9", OpDatabaseInit, "start", nil)
	require.NoError(t, err)
	_, err = env.ledger.Finish(ctx, entry.ID, FinishParams{Status: StatusCompleted, Message: "done"})
	require.NoError(t, err)

	_, err = env.svc.finish(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), entry, "again", nil, nil)
	assert.ErrorIs(t, err, ErrEntryTerminal)
	assert.ErrorIs(t, err, ErrEntryNotFinalized)
}
