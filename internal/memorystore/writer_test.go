package memorystore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// TestWriteLoopRetriesThenInvokesFatalHandler confirms a write that fails
// on every attempt is retried writeMaxAttempts times before the durable
// failure is reported to the registered fatal handler.
func TestWriteLoopRetriesThenInvokesFatalHandler(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	wantErr := errors.New("disk full")
	for i := 0; i < writeMaxAttempts; i++ {
		mock.ExpectExec("INSERT INTO memories").WillReturnError(wantErr)
	}

	var fatal error
	fatalCh := make(chan struct{}, 1)
	s := &Store{
		db:     db,
		ops:    make(chan writeOp, 1),
		done:   make(chan struct{}),
		logger: slog.Default(),
		onFatal: func(err error) {
			fatal = err
			fatalCh <- struct{}{}
		},
	}
	go s.writeLoop()
	defer close(s.ops)

	op := writeOp{
		fn: func(db *sql.DB) error {
			_, err := db.Exec("INSERT INTO memories (id) VALUES (?)", "x")
			return err
		},
		done: make(chan error, 1),
	}
	s.ops <- op

	select {
	case err := <-op.done:
		if err == nil {
			t.Fatal("expected the write to fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for write result")
	}

	select {
	case <-fatalCh:
	case <-time.After(time.Second):
		t.Fatal("fatal handler was not invoked")
	}
	if fatal == nil {
		t.Fatal("expected a captured fatal error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	_ = context.Background()
}

// TestWriteLoopSucceedsWithoutRetryOnFirstAttempt confirms a successful
// write never touches the fatal handler and only consumes one expectation.
func TestWriteLoopSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO memories").WillReturnResult(sqlmock.NewResult(1, 1))

	fatalCalled := false
	s := &Store{
		db:      db,
		ops:     make(chan writeOp, 1),
		done:    make(chan struct{}),
		logger:  slog.Default(),
		onFatal: func(error) { fatalCalled = true },
	}
	go s.writeLoop()
	defer close(s.ops)

	op := writeOp{
		fn: func(db *sql.DB) error {
			_, err := db.Exec("INSERT INTO memories (id) VALUES (?)", "x")
			return err
		},
		done: make(chan error, 1),
	}
	s.ops <- op

	select {
	case err := <-op.done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for write result")
	}

	if fatalCalled {
		t.Fatal("fatal handler should not run on success")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
