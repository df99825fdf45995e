package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MySQLLocker uses named advisory locks. A lock lives as long as the session that
// took it, so each held key pins one pooled connection until Release.
type MySQLLocker struct {
	db      *sql.DB
	session *owned[*sql.Conn]
}

// NewMySQLLocker constructs a lock manager backed by GET_LOCK/RELEASE_LOCK.
func NewMySQLLocker(db *sql.DB) *MySQLLocker {
	return &MySQLLocker{db: db, session: newOwned[*sql.Conn]()}
}

// Acquire tries GET_LOCK with a zero wait. The ttl is ignored: MySQL releases the
// lock when the session ends.
func (l *MySQLLocker) Acquire(ctx context.Context, key string, _ time.Duration) error {
	return observe("mysql", l.acquire(ctx, key))
}

func (l *MySQLLocker) acquire(ctx context.Context, key string) error {
	if l.session.holds(key) {
		return ErrAlreadyHeld
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("mysql lock conn: %w", err)
	}

	// GET_LOCK returns NULL on error (e.g. killed thread); treat it as not acquired.
	var got sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", key).Scan(&got)
	switch {
	case err != nil:
		_ = conn.Close()
		return fmt.Errorf("mysql get_lock %s: %w", key, err)
	case got.Int64 != 1:
		_ = conn.Close()
		return ErrNotAcquired
	}

	l.session.put(key, conn)
	return nil
}

// Release frees the advisory lock and returns its connection to the pool.
func (l *MySQLLocker) Release(ctx context.Context, key string) error {
	conn, ok := l.session.take(key)
	if !ok {
		return nil
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", key); err != nil {
		return fmt.Errorf("mysql release_lock %s: %w", key, err)
	}
	return nil
}
