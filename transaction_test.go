package store

import (
	"context"
	"testing"
)

func TestTransactionPartialDeleteClearsOnlyGivenFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "name": "John", "age": int64(30)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx := s.Transaction(nil)
	if err := tx.Delete(ctx, int64(1), []string{"age"}); err != nil {
		t.Fatalf("partial delete: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if age, ok := h.Get("age"); !ok || age != nil {
		t.Fatalf("expected age field to be nulled by partial delete, got %v ok=%v", age, ok)
	}
	if name, ok := h.Get("name"); !ok || name != "John" {
		t.Fatalf("expected name to survive partial delete, got %v ok=%v", name, ok)
	}
}

func TestTransactionCreateThenDeleteIsNoOpOnCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := s.Transaction(nil)
	h, err := tx.Create(ctx, map[string]any{"id": int64(99), "name": "ghost"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Delete(ctx, h.PKey(), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if s.Contains(int64(99)) {
		t.Fatal("expected create-then-delete within one transaction to be a no-op on commit")
	}
}

func TestTransactionCommitCallbackReceivesJournal(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "v": int64(1)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var gotCreated, gotUpdated, gotDeleted []any
	callback := func(tx *Transaction, created, updated, deleted []any) error {
		gotCreated = created
		gotUpdated = updated
		gotDeleted = deleted
		return nil
	}

	err := Run(ctx, s, callback, func(tx *Transaction) error {
		if _, err := tx.Create(ctx, map[string]any{"id": int64(2), "v": int64(2)}); err != nil {
			return err
		}
		if _, err := tx.Update(ctx, int64(1), map[string]any{"v": int64(10)}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gotCreated) != 1 || gotCreated[0] != int64(2) {
		t.Fatalf("expected created=[2], got %v", gotCreated)
	}
	if len(gotUpdated) != 1 || gotUpdated[0] != int64(1) {
		t.Fatalf("expected updated=[1], got %v", gotUpdated)
	}
	if len(gotDeleted) != 0 {
		t.Fatalf("expected deleted=[], got %v", gotDeleted)
	}
}

func TestTransactionSelectMergesFrontOverBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if _, err := s.Create(ctx, map[string]any{"id": i, "status": "open"}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	tx := s.Transaction(nil)
	if _, err := tx.Update(ctx, int64(1), map[string]any{"status": "closed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tx.Create(ctx, map[string]any{"id": int64(4), "status": "open"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Delete(ctx, int64(2), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sym := NewSymbol()
	q, err := tx.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	q.Where(sym.Field("status").Eq("open"))

	result, err := q.Execute(ctx, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	orm := result.(*OrderedRecordMap)

	if _, ok := orm.Get(int64(1)); ok {
		t.Fatal("expected record 1 (closed in front) excluded from status=open")
	}
	if _, ok := orm.Get(int64(2)); ok {
		t.Fatal("expected deleted record 2 excluded entirely")
	}
	if _, ok := orm.Get(int64(3)); !ok {
		t.Fatal("expected untouched record 3 (open, only in back) included")
	}
	if _, ok := orm.Get(int64(4)); !ok {
		t.Fatal("expected newly created record 4 (only in front) included")
	}
}

func TestTransactionGetReflectsDeletion(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "name": "John"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx := s.Transaction(nil)
	if err := tx.Delete(ctx, int64(1), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	h, err := tx.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil for a key deleted within the transaction, got %v", h.Map())
	}

	outside, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get outside: %v", err)
	}
	if outside == nil {
		t.Fatal("expected back store to be untouched before commit")
	}
}

func TestHandleSaveThroughTransactionJournalsUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "name": "John"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx := s.Transaction(nil)
	h, err := tx.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	h.Set("name", "Jane")
	if err := h.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get after commit: %v", err)
	}
	if name, _ := after.Get("name"); name != "Jane" {
		t.Fatalf("expected Handle.Save through a transaction to journal the update, got name=%v", name)
	}
}
