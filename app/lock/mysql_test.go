package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestMySQLLockerAcquireRelease(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	key := MessageKey(uuid.New())
	locker := NewMySQLLocker(db)
	mock.ExpectQuery(`SELECT GET_LOCK\(\?, 0\)`).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(1))
	mock.ExpectExec(`SELECT RELEASE_LOCK\(\?\)`).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := locker.Acquire(ctx, key, time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// A second attempt from the same process never reaches MySQL.
	if err := locker.Acquire(ctx, key, time.Minute); !errors.Is(err, ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
	if err := locker.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := locker.Release(ctx, key); err != nil {
		t.Fatalf("releasing an unheld key should be a no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLLockerAcquireFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	cases := []struct {
		name   string
		expect func(sqlmock.Sqlmock, string)
		want   error
	}{
		{
			name: "held elsewhere",
			expect: func(m sqlmock.Sqlmock, key string) {
				m.ExpectQuery("SELECT GET_LOCK").WithArgs(key).
					WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(0))
			},
			want: ErrNotAcquired,
		},
		{
			name: "null result",
			expect: func(m sqlmock.Sqlmock, key string) {
				m.ExpectQuery("SELECT GET_LOCK").WithArgs(key).
					WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(nil))
			},
			want: ErrNotAcquired,
		},
		{
			name: "query error",
			expect: func(m sqlmock.Sqlmock, key string) {
				m.ExpectQuery("SELECT GET_LOCK").WithArgs(key).WillReturnError(boom)
			},
			want: boom,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()

			key := MessageKey(uuid.New())
			tc.expect(mock, key)

			locker := NewMySQLLocker(db)
			if err := locker.Acquire(context.Background(), key, time.Minute); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			// Nothing is held after a failed attempt.
			if err := locker.Release(context.Background(), key); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}
