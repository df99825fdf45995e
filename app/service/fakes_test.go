package service

import (
	"context"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/vibast-solutions/ms-go-mailqueue/app/preparer"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
)

var columns = []string{"id", "created", "recipient", "subject", "body", "status", "retries", "processed"}

type fakeAck struct {
	mu      sync.Mutex
	acks    int
	rejects int
}

func (a *fakeAck) Ack() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAck) Reject() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects++
	return nil
}

func (a *fakeAck) assert(t *testing.T, acks, rejects int) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acks != acks || a.rejects != rejects {
		t.Fatalf("expected %d acks %d rejects, got %d acks %d rejects", acks, rejects, a.acks, a.rejects)
	}
}

type fakeLocker struct {
	mu         sync.Mutex
	acquireErr error
	acquired   []string
	released   []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = append(l.acquired, key)
	return nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, key)
	return nil
}

type fakePreparer struct {
	err error
}

func (p fakePreparer) Prepare(_ context.Context, env preparer.Envelope) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []byte("raw:" + env.ID.String()), nil
}

type fakeProvider struct {
	mu    sync.Mutex
	err   error
	block bool
	sent  []string
}

func (p *fakeProvider) SendRaw(ctx context.Context, _ string, raw []byte) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, string(raw))
	return nil
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeScheduler struct {
	mu        sync.Mutex
	err       error
	scheduled []uuid.UUID
}

func (s *fakeScheduler) Schedule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, id)
	return nil
}

type fakePublisher struct {
	err       error
	published []uuid.UUID
	onPublish func()
}

func (p *fakePublisher) Publish(_ context.Context, id uuid.UUID) error {
	if p.onPublish != nil {
		p.onPublish()
	}
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, id)
	return nil
}

func newRepo(t *testing.T) (*repository.MessageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return repository.NewMessageRepository(db, repository.DialectMySQL), mock, func() { _ = db.Close() }
}

func messageRow(id uuid.UUID, status string, retries int) *sqlmock.Rows {
	var processed driver.Value
	if status != "PENDING" {
		processed = time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	}
	return sqlmock.NewRows(columns).
		AddRow(id.String(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), "a@b.com", "subj", "body", status, retries, processed)
}

func expectLookup(mock sqlmock.Sqlmock, id uuid.UUID, status string, retries int) {
	mock.ExpectQuery("SELECT (.+) FROM messages WHERE id = \\?").
		WithArgs(id.String()).
		WillReturnRows(messageRow(id, status, retries))
}
