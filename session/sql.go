package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/pressly/goose/v3"

	_ "github.com/tursodatabase/go-libsql" // registers the "libsql" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLOptions configures an SQLStore.
type SQLOptions struct {
	// OpTimeout bounds every store operation so a stuck database surfaces as
	// an error instead of blocking the caller indefinitely.
	OpTimeout time.Duration
	// Logger receives migration and failure diagnostics.
	Logger logging.Logger
}

// SQLStore is a durable MessageStore backed by libSQL (SQLite dialect).
// Schema migrations are embedded and applied with goose on open. Rows are keyed
// by (task_id, id) and tool calls are stored as deterministic CBOR blobs.
type SQLStore struct {
	db     *sql.DB
	opts   SQLOptions
	closer func() error
}

// OpenSQLStore opens (creating if needed) a libSQL database at dsn, e.g.
// "file:/var/lib/taskmesh/turns.db", runs pending migrations and returns the
// store. The connection pool is limited to one connection so that in-memory
// databases keep read-your-writes semantics.
func OpenSQLStore(ctx context.Context, dsn string, optFns ...func(o *SQLOptions)) (*SQLStore, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open libsql: %w", core.ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(ctx, db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.closer = db.Close
	return store, nil
}

// NewSQLStore wraps an existing *sql.DB and migrates it. The caller keeps
// ownership of db; Close on the returned store is then a no-op.
func NewSQLStore(ctx context.Context, db *sql.DB, optFns ...func(o *SQLOptions)) (*SQLStore, error) {
	opts := SQLOptions{
		OpTimeout: 5 * time.Second,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &SQLStore{db: db, opts: opts}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%w: migrations: %w", core.ErrStorage, err)
	}
	provider, err := goose.NewProvider(goose.DialectTurso, s.db, fsys)
	if err != nil {
		return fmt.Errorf("%w: goose provider: %w", core.ErrStorage, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: migrate: %w", core.ErrStorage, err)
	}
	for _, r := range results {
		s.opts.Logger.Info("store.migration.applied", "version", r.Source.Version, "duration_ms", r.Duration.Milliseconds())
	}
	return nil
}

// Close releases the database when the store opened it itself.
func (s *SQLStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertTurn = `
	INSERT INTO turns (id, task_id, role, content, created_at, tokens, tool_call)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func insert(ctx context.Context, ex execer, t core.Turn) error {
	blob, err := encodeToolCall(t.ToolCall)
	if err != nil {
		return fmt.Errorf("encode tool call: %w", err)
	}
	_, err = ex.ExecContext(ctx, insertTurn,
		t.ID,
		t.TaskID,
		string(t.Role),
		t.Content,
		t.CreatedAt.UnixNano(),
		t.Tokens,
		blob,
	)
	return err
}

// Append inserts a turn.
func (s *SQLStore) Append(ctx context.Context, turn core.Turn) error {
	if err := turn.Validate(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := insert(ctx, s.db, turn); err != nil {
		s.opts.Logger.Error("store.append.failed", "task_id", turn.TaskID, "error", err)
		return fmt.Errorf("%w: append turn %s: %w", core.ErrStorage, turn.ID, err)
	}
	return nil
}

// History loads a task's turns ordered by creation time, then insertion order.
func (s *SQLStore) History(ctx context.Context, taskID string) ([]core.Turn, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, role, content, created_at, tokens, tool_call
		FROM turns
		WHERE task_id = ?
		ORDER BY created_at ASC, seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %w", core.ErrStorage, err)
	}
	defer rows.Close()

	turns := []core.Turn{}
	for rows.Next() {
		var (
			t       core.Turn
			role    string
			created int64
			blob    []byte
		)
		if err := rows.Scan(&t.ID, &t.TaskID, &role, &t.Content, &created, &t.Tokens, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %w", core.ErrStorage, err)
		}
		t.Role = core.Role(role)
		t.CreatedAt = time.Unix(0, created).UTC()
		if t.ToolCall, err = decodeToolCall(blob); err != nil {
			return nil, fmt.Errorf("%w: decode tool call of turn %s: %w", core.ErrStorage, t.ID, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history: %w", core.ErrStorage, err)
	}
	return turns, nil
}

// ReplaceHistory deletes and re-inserts the task's turns in one transaction.
func (s *SQLStore) ReplaceHistory(ctx context.Context, taskID string, turns []core.Turn) (err error) {
	for _, t := range turns {
		if t.TaskID != taskID {
			return fmt.Errorf("%w: turn %s belongs to task %q, not %q", core.ErrStorage, t.ID, t.TaskID, taskID)
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.opts.Logger.Warn("store.replace.rollback_failed", "task_id", taskID, "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("%w: clear history: %w", core.ErrStorage, err)
	}
	for _, t := range turns {
		if err = insert(ctx, tx, t); err != nil {
			return fmt.Errorf("%w: insert turn %s: %w", core.ErrStorage, t.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStorage, err)
	}
	return nil
}

// RemoveAll deletes every turn of the task.
func (s *SQLStore) RemoveAll(ctx context.Context, taskID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("%w: remove history: %w", core.ErrStorage, err)
	}
	return nil
}
