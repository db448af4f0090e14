package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCarriers(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, RunID(ctx))
	assert.Empty(t, Step(ctx))
	assert.Empty(t, CheckpointID(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithStep(ctx, "validate_parameters")
	ctx = WithCheckpointID(ctx, "cp-1")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "validate_parameters", Step(ctx))
	assert.Equal(t, "cp-1", CheckpointID(ctx))
}

func TestLogWithAddsOnlyPresentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithRunID(context.Background(), "run-7")
	LogWith(ctx, logger).Info("step completed")

	line := buf.String()
	assert.Contains(t, line, "run_id=run-7")
	assert.NotContains(t, line, "step=")
	assert.NotContains(t, line, "checkpoint_id=")
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithRunID(context.Background(), "run-9")
	ctx = WithStep(ctx, "compute_base_case")

	logger.InfoContext(ctx, "computation finished", "icer", 100000)

	line := buf.String()
	assert.Contains(t, line, "run_id=run-9")
	assert.Contains(t, line, "step=compute_base_case")
	assert.Contains(t, line, "icer=100000")
}

func TestCorrelationHandlerPlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "sweeper started")

	line := buf.String()
	assert.NotContains(t, line, "run_id=")
	require.True(t, strings.Contains(line, "sweeper started"))
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithCheckpointID(context.Background(), "cp-3")
	logger.With("component", "sweeper").InfoContext(ctx, "checkpoint expired")

	line := buf.String()
	assert.Contains(t, line, "component=sweeper")
	assert.Contains(t, line, "checkpoint_id=cp-3")
}
