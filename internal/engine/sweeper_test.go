package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheconlab/ceflow/internal/store"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

func seedSuspendedRun(t *testing.T, mem *store.MemoryStore, age time.Duration) (runID, checkpointID string) {
	t.Helper()
	ctx := context.Background()
	runID = uuid.New().String()

	require.NoError(t, mem.CreateRun(ctx, &store.RunRecord{
		ID:      runID,
		Mode:    schema.ModeAssisted,
		Request: "markov model for diabetes",
		Status:  schema.RunStatusSuspended,
	}))

	checkpointID = uuid.New().String()
	require.NoError(t, mem.CreateCheckpoint(ctx, &store.Checkpoint{
		ID:        checkpointID,
		RunID:     runID,
		Snapshot:  []byte(`{}`),
		CreatedAt: time.Now().UTC().Add(-age),
	}))
	return runID, checkpointID
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(store.NewMemoryStore(), "not a schedule", time.Hour, quietLogger())
	require.Error(t, err)
}

func TestSweepExpiresStaleCheckpoint(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	staleRun, staleCP := seedSuspendedRun(t, mem, 2*time.Hour)

	sweeper, err := NewSweeper(mem, "0 * * * *", time.Hour, quietLogger())
	require.NoError(t, err)

	sweeper.Sweep(ctx)

	_, err = mem.GetCheckpoint(ctx, staleCP)
	require.Error(t, err)
	perr, ok := err.(*schema.PipelineError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeCheckpointNotFound, perr.Code)

	rec, err := mem.GetRun(ctx, staleRun)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, rec.Status)
	assert.NotNil(t, rec.CompletedAt)

	events, err := mem.GetEvents(ctx, staleRun, 0)
	require.NoError(t, err)
	types := eventTypes(events)
	assert.Contains(t, types, schema.EventCheckpointExpired)
	assert.Contains(t, types, schema.EventRunFailed)
}

func TestSweepLeavesFreshCheckpointAlone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	freshRun, freshCP := seedSuspendedRun(t, mem, 10*time.Minute)

	sweeper, err := NewSweeper(mem, "0 * * * *", time.Hour, quietLogger())
	require.NoError(t, err)

	sweeper.Sweep(ctx)

	cp, err := mem.GetCheckpoint(ctx, freshCP)
	require.NoError(t, err)
	assert.Equal(t, store.CheckpointPending, cp.Status)

	rec, err := mem.GetRun(ctx, freshRun)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSuspended, rec.Status)
}

func TestSweepIgnoresConsumedCheckpoints(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	runID, cpID := seedSuspendedRun(t, mem, 2*time.Hour)
	_, err := mem.ConsumeCheckpoint(ctx, cpID)
	require.NoError(t, err)

	sweeper, err := NewSweeper(mem, "0 * * * *", time.Hour, quietLogger())
	require.NoError(t, err)

	sweeper.Sweep(ctx)

	cp, err := mem.GetCheckpoint(ctx, cpID)
	require.NoError(t, err)
	assert.Equal(t, store.CheckpointConsumed, cp.Status)

	rec, err := mem.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSuspended, rec.Status)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, err := NewSweeper(store.NewMemoryStore(), "* * * * *", time.Hour, quietLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(context.Background()))
	require.Error(t, sweeper.Start(context.Background()))
	sweeper.Stop()
}
