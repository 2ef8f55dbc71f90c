package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	if err := InTx(context.Background(), b, func(pgx.Tx) error { return nil }); err != nil {
		t.Fatalf("InTx failed: %v", err)
	}
	if !b.tx.committed {
		t.Fatal("expected commit")
	}
	if b.tx.rolledBack {
		t.Fatal("did not expect rollback after commit")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := InTx(context.Background(), b, func(pgx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Fatalf("expected rollback only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
		if !b.tx.rolledBack {
			t.Fatal("expected rollback on panic")
		}
	}()
	_ = InTx(context.Background(), b, func(pgx.Tx) error { panic("boom") })
}

func TestInTx_BeginError(t *testing.T) {
	b := &fakeBeginner{err: errors.New("no conn")}
	if err := InTx(context.Background(), b, func(pgx.Tx) error { return nil }); err == nil {
		t.Fatal("expected begin error")
	}
}
