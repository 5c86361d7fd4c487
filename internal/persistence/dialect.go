package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// dialect captures the differences between SQL backends.
type dialect struct {
	name        string
	numbered    bool // Postgres-style $1 placeholders
	busyRetries bool // Retry transactions on SQLite lock contention
}

var (
	sqliteDialect   = dialect{name: "sqlite", busyRetries: true}
	postgresDialect = dialect{name: "postgres", numbered: true}
)

// rebind converts ? placeholders into the dialect's placeholder syntax.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// txRetry configures the busy retry policy for SQLite writers.
var txRetry = struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}{
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     200 * time.Millisecond,
	MaxElapsedTime:  3 * time.Second,
}

// inTx runs fn in a serializable transaction. On SQLite, lock contention
// ("database is locked") retries the whole transaction with exponential
// backoff; every other error is permanent.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	operation := func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return s.classify(fmt.Errorf("failed to begin transaction: %w", err))
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return s.classify(err)
		}
		if err := tx.Commit(); err != nil {
			return s.classify(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = txRetry.InitialInterval
	policy.MaxInterval = txRetry.MaxInterval
	policy.MaxElapsedTime = txRetry.MaxElapsedTime

	// Retry unwraps permanent errors before returning them.
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// classify marks non-busy errors as permanent so backoff stops immediately.
func (s *SQLStore) classify(err error) error {
	if s.dialect.busyRetries && isBusy(err) {
		return err
	}
	return backoff.Permanent(err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Time columns are RFC 3339 text.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
