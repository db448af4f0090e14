package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *RunRecord) error {
	createdAt := timeOrNow(run.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, request, status, state, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Request, string(run.Status),
		nullRaw(run.State), nullRaw(run.Error), createdAt, createdAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	r := &RunRecord{}
	var mode, status string
	var state, errJSON sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mode, request, status, state, error, created_at, completed_at, updated_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &mode, &r.Request, &status, &state, &errJSON, &r.CreatedAt, &completedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	r.Mode = schema.Mode(mode)
	r.Status = schema.RunStatus(status)
	r.State = rawOrNil(state)
	r.Error = rawOrNil(errJSON)
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(update.State))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	query := `SELECT id, mode, request, status, state, error, created_at, completed_at, updated_at FROM runs`
	var conds []string
	var args []any
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Mode != "" {
		conds = append(conds, "mode = ?")
		args = append(args, string(filter.Mode))
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		r := &RunRecord{}
		var mode, status string
		var state, errJSON sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &mode, &r.Request, &status, &state, &errJSON,
			&r.CreatedAt, &completedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Mode = schema.Mode(mode)
		r.Status = schema.RunStatus(status)
		r.State = rawOrNil(state)
		r.Error = rawOrNil(errJSON)
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Event log ---

// AppendEvent appends an event with a monotonically increasing per-run sequence.
// The sequence read and the insert happen inside one write transaction.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Force lock acquisition with a write-intent statement. In WAL mode,
	// BeginTx alone may start a deferred transaction.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (run_id, step, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.Step), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step, event_type, payload, timestamp, sequence
		 FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var step, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &step, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Step = step.String
		e.Payload = rawOrNil(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Checkpoints ---

func (s *LibSQLStore) CreateCheckpoint(ctx context.Context, cp *Checkpoint) error {
	status := cp.Status
	if status == "" {
		status = CheckpointPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, snapshot, decision_shape, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.RunID, string(cp.Snapshot), nullRaw(cp.DecisionShape), status, timeOrNow(cp.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "checkpoint %q already exists", cp.ID)
	}
	return err
}

func (s *LibSQLStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := s.scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT id, run_id, snapshot, decision_shape, status, created_at, consumed_at
		 FROM checkpoints WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
	}
	return cp, err
}

// ConsumeCheckpoint atomically flips a pending checkpoint to consumed.
// The conditional UPDATE guarantees that exactly one concurrent caller wins;
// losers get CHECKPOINT_CONSUMED and unknown ids get CHECKPOINT_NOT_FOUND.
func (s *LibSQLStore) ConsumeCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE checkpoints SET status = ?, consumed_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		CheckpointConsumed, id, CheckpointPending,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM checkpoints WHERE id = ?`, id,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
		}
		if err != nil {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeCheckpointConsumed, "checkpoint %q already consumed", id)
	}
	return s.GetCheckpoint(ctx, id)
}

func (s *LibSQLStore) ListCheckpoints(ctx context.Context, filter CheckpointFilter) ([]*Checkpoint, error) {
	query := `SELECT id, run_id, snapshot, decision_shape, status, created_at, consumed_at FROM checkpoints`
	var conds []string
	var args []any
	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, *filter.CreatedBefore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp := &Checkpoint{}
		var shape sql.NullString
		var consumedAt sql.NullTime
		var snapshot string
		if err := rows.Scan(&cp.ID, &cp.RunID, &snapshot, &shape, &cp.Status, &cp.CreatedAt, &consumedAt); err != nil {
			return nil, err
		}
		cp.Snapshot = json.RawMessage(snapshot)
		cp.DecisionShape = rawOrNil(shape)
		if consumedAt.Valid {
			cp.ConsumedAt = &consumedAt.Time
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteCheckpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *LibSQLStore) scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	cp := &Checkpoint{}
	var shape sql.NullString
	var consumedAt sql.NullTime
	var snapshot string
	err := row.Scan(&cp.ID, &cp.RunID, &snapshot, &shape, &cp.Status, &cp.CreatedAt, &consumedAt)
	if err != nil {
		return nil, err
	}
	cp.Snapshot = json.RawMessage(snapshot)
	cp.DecisionShape = rawOrNil(shape)
	if consumedAt.Valid {
		cp.ConsumedAt = &consumedAt.Time
	}
	return cp, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PipelineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
