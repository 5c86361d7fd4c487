package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aristath/taskboard/internal/task"
)

// Store defines the persistence interface for tasks and reassignment requests.
type Store interface {
	// Task operations
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)

	// Reassignment requests
	SaveRequest(ctx context.Context, r *task.ReassignmentRequest) error
	GetRequest(ctx context.Context, id string) (*task.ReassignmentRequest, error)
	ListRequests(ctx context.Context, taskID string) ([]*task.ReassignmentRequest, error)

	// SaveTaskWithRequest persists a task and a request in one transaction.
	SaveTaskWithRequest(ctx context.Context, t *task.Task, r *task.ReassignmentRequest) error

	// Lifecycle
	Close() error
}

// SQLStore implements Store over database/sql. The same schema serves
// SQLite and Postgres; only placeholders differ.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// connPragmas are applied by modernc.org/sqlite to every new connection in
// the pool.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. WAL mode, foreign keys and the busy
// timeout are set per connection through the DSN.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?%s&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath, connPragmas)
	return openSQLite(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named shared-cache database so stores never leak
// rows into each other.
func NewMemoryStore(ctx context.Context) (*SQLStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", uuid.NewString(), connPragmas)
	return openSQLite(ctx, connStr)
}

func openSQLite(ctx context.Context, connStr string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Keep at least one connection open so a memory database survives between queries.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	return newSQLStore(ctx, db, sqliteDialect)
}

// NewPostgresStore creates a store backed by Postgres through lib/pq.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newSQLStore(ctx, db, postgresDialect)
}

// Open creates a store for the named driver ("sqlite", "memory" or "postgres").
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(ctx, dsn)
	case "memory":
		return NewMemoryStore(ctx)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: d}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
