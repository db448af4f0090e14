package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/engine"
	"github.com/healtheconlab/ceflow/internal/step"
	"github.com/healtheconlab/ceflow/internal/store"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

type harness struct {
	dbPath string
	store  *store.LibSQLStore
	engine *engine.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	return openHarness(t, dbPath)
}

// openHarness builds a full stack on the given database file, so a test can
// reopen the same file to prove the run survives a process restart.
func openHarness(t *testing.T, dbPath string) *harness {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	reg, err := step.DefaultRegistry()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{
		dbPath: dbPath,
		store:  s,
		engine: engine.New(s, reg, logger),
	}
}

func TestAutomatedAnalysisEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.engine.Start(ctx,
		"Run an automated cost-effectiveness analysis of semaglutide versus standard of care for type 2 diabetes using a markov model",
		schema.ModeAutomated)
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusCompleted, result.Status)

	var base analysis.BaseCaseResult
	require.NoError(t, result.State.Output(step.KeyBaseCase, &base))
	assert.InDelta(t, 100000, base.ICER, 1)
	assert.False(t, base.CostEffective)

	var dsa analysis.DSAResult
	require.NoError(t, result.State.Output(step.KeyDSA, &dsa))
	assert.NotEmpty(t, dsa.MostSensitive)

	var psa analysis.PSAResult
	require.NoError(t, result.State.Output(step.KeyPSA, &psa))
	assert.Len(t, psa.CEAC, 31)

	var report string
	require.NoError(t, result.State.Output(step.KeyReport, &report))
	assert.Contains(t, report, "Base Case")
	assert.Contains(t, report, "Probabilistic Sensitivity")

	// The completed run is durable: record, final state and event log.
	rec, err := h.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.State)

	events, err := h.store.GetEvents(ctx, result.RunID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Sequence)
	}
}

func TestAssistedAnalysisSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	suspended, err := h.engine.Start(ctx,
		"Assist me with a decision tree comparing screening vs no screening for colorectal cancer",
		schema.ModeAssisted)
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusSuspended, suspended.Status)
	require.NotEmpty(t, suspended.CheckpointID)

	// Drop the whole stack and rebuild it on the same database file.
	require.NoError(t, h.store.Close())
	h2 := openHarness(t, h.dbPath)

	final, err := h2.engine.Resume(ctx, suspended.CheckpointID,
		json.RawMessage(`{"approved":true,"comment":"proceed with published utilities"}`))
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, final.Status)
	assert.Equal(t, suspended.RunID, final.RunID)

	assert.True(t, final.State.Has(step.KeyBaseCase))
	assert.True(t, final.State.Has(step.KeyReport))
	assert.False(t, final.State.Has(step.KeyDSA))
}

func TestRejectionEndsRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	suspended, err := h.engine.Start(ctx,
		"Augmented partitioned survival analysis of nivolumab vs docetaxel for NSCLC",
		schema.ModeAugmented)
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusSuspended, suspended.Status)

	final, err := h.engine.Resume(ctx, suspended.CheckpointID,
		json.RawMessage(`{"approved":false,"comment":"survival inputs need review"}`))
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, final.Status)
	assert.False(t, final.State.Has(step.KeyBaseCase))
	assert.False(t, final.State.Has(step.KeyReport))

	events, err := h.store.GetEvents(ctx, final.RunID, 0)
	require.NoError(t, err)
	var sawRejection bool
	for _, ev := range events {
		if ev.Type == schema.EventDecisionRejected {
			sawRejection = true
		}
	}
	assert.True(t, sawRejection)
}

func TestConcurrentResumeSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	suspended, err := h.engine.Start(ctx,
		"markov model for heart failure, sacubitril vs enalapril", schema.ModeAssisted)
	require.NoError(t, err)
	require.NotEmpty(t, suspended.CheckpointID)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	results := make([]*engine.RunResult, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.engine.Resume(ctx, suspended.CheckpointID,
				json.RawMessage(`{"approved":true}`))
		}(i)
	}
	wg.Wait()

	var winners, consumed int
	for i := 0; i < attempts; i++ {
		if errs[i] == nil {
			winners++
			assert.Equal(t, schema.RunStatusCompleted, results[i].Status)
			continue
		}
		perr, ok := errs[i].(*schema.PipelineError)
		require.True(t, ok)
		assert.Equal(t, schema.ErrCodeCheckpointConsumed, perr.Code)
		consumed++
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, consumed)
}

func TestConcurrentIndependentRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	requests := []string{
		"markov model for diabetes, drug A vs standard of care",
		"decision tree for flu screening vs no screening",
		"partitioned survival model for melanoma, drug B vs chemotherapy",
	}

	var wg sync.WaitGroup
	results := make([]*engine.RunResult, len(requests))
	errs := make([]error, len(requests))
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req string) {
			defer wg.Done()
			results[i], errs[i] = h.engine.Start(ctx, req, schema.ModeAutomated)
		}(i, req)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range requests {
		require.NoError(t, errs[i])
		assert.Equal(t, schema.RunStatusCompleted, results[i].Status)
		assert.False(t, seen[results[i].RunID])
		seen[results[i].RunID] = true

		events, err := h.store.GetEvents(ctx, results[i].RunID, 0)
		require.NoError(t, err)
		for j, ev := range events {
			assert.Equal(t, int64(j+1), ev.Sequence)
		}
	}
}
