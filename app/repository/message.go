package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-mailqueue/app/entity"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrAmbiguous    = errors.New("message id matches more than one record")
	ErrNoTransition = errors.New("message is no longer pending")
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

const messageColumns = "id, created, recipient, subject, body, status, retries, processed"

type MessageRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewMessageRepository constructs a repository for the given SQL dialect.
func NewMessageRepository(db *sql.DB, dialect Dialect) *MessageRepository {
	return &MessageRepository{db: db, dialect: dialect}
}

// Create inserts a new message record.
func (r *MessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	const query = `
		INSERT INTO messages (id, created, recipient, subject, body, status, retries)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		msg.ID.String(), msg.Created, msg.To, msg.Subject, msg.Text, string(msg.Status), msg.Retries)
	return err
}

// GetByID loads exactly one message. Zero matches yield ErrNotFound and more than
// one yield ErrAmbiguous.
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ? LIMIT 2`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	switch len(msgs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &msgs[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// List returns messages ordered newest first.
func (r *MessageRepository) List(ctx context.Context, limit int, offset int) ([]entity.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY created DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Count returns the total number of stored messages.
func (r *MessageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkTerminal moves a pending message to a terminal status and stamps processed.
func (r *MessageRepository) MarkTerminal(ctx context.Context, id uuid.UUID, status entity.Status, processed time.Time) error {
	// Pending is the only status the guarded UPDATE can leave.
	if status == entity.StatusPending || !entity.CanTransition(entity.StatusPending, status) {
		return fmt.Errorf("cannot move a pending message to %q", status)
	}

	const query = `
		UPDATE messages
		SET status = ?, processed = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), string(status), processed.UTC(), id.String(), string(entity.StatusPending))
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// UpdateRetries stores the retry counter of a pending message.
func (r *MessageRepository) UpdateRetries(ctx context.Context, id uuid.UUID, retries int) error {
	const query = `
		UPDATE messages
		SET retries = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), retries, id.String(), string(entity.StatusPending))
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// rebind rewrites ? placeholders into $n for Postgres.
func (r *MessageRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]entity.Message, error) {
	var out []entity.Message
	for rows.Next() {
		var (
			m         entity.Message
			id        string
			status    string
			processed sql.NullTime
		)
		if err := rows.Scan(&id, &m.Created, &m.To, &m.Subject, &m.Text, &status, &m.Retries, &processed); err != nil {
			return nil, err
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse stored id %q: %w", id, err)
		}
		m.ID = parsed
		m.Status = entity.Status(status)
		if !m.Status.Valid() {
			return nil, fmt.Errorf("stored message %s has unknown status %q", id, status)
		}
		if processed.Valid {
			t := processed.Time
			m.Processed = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
