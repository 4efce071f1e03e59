package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	txs   []*fakeTx
	begun int
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if b.begun >= len(b.txs) {
		return nil, errors.New("no more transactions")
	}
	tx := b.txs[b.begun]
	b.begun++
	return tx, nil
}

func TestRunInTx_Commits(t *testing.T) {
	tx := &fakeTx{}
	b := &fakeBeginner{txs: []*fakeTx{tx}}

	var sawTx bool
	err := RunInTx(context.Background(), b, Serializable, 3, func(ctx context.Context) error {
		sawTx = TxFromContext(ctx) == tx
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawTx {
		t.Error("expected transaction to be carried by context")
	}
	if !tx.committed {
		t.Error("expected commit")
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	b := &fakeBeginner{txs: []*fakeTx{tx}}
	want := errors.New("boom")

	err := RunInTx(context.Background(), b, Serializable, 3, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if !tx.rolledBack || tx.committed {
		t.Error("expected rollback without commit")
	}
	if b.begun != 1 {
		t.Errorf("expected 1 attempt, got %d", b.begun)
	}
}

func TestRunInTx_RetriesSerializationFailure(t *testing.T) {
	first := &fakeTx{commitErr: &pgconn.PgError{Code: "40001"}}
	second := &fakeTx{}
	b := &fakeBeginner{txs: []*fakeTx{first, second}}

	calls := 0
	err := RunInTx(context.Background(), b, Serializable, 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if !second.committed {
		t.Error("expected second transaction to commit")
	}
}

func TestRunInTx_RetriesExhausted(t *testing.T) {
	serr := &pgconn.PgError{Code: "40001"}
	b := &fakeBeginner{txs: []*fakeTx{{}, {}}}

	err := RunInTx(context.Background(), b, Serializable, 2, func(ctx context.Context) error {
		return fmt.Errorf("insert: %w", serr)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsSerializationFailure(err) {
		t.Errorf("expected serialization failure to be preserved, got %v", err)
	}
	if b.begun != 2 {
		t.Errorf("expected 2 attempts, got %d", b.begun)
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Error("plain error is not a unique violation")
	}
	if !IsSerializationFailure(&pgconn.PgError{Code: "40P01"}) {
		t.Error("expected deadlock to count as serialization failure")
	}
	if IsSerializationFailure(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation is not a serialization failure")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil transaction")
	}
}
