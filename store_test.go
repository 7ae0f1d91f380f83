package store

import (
	"context"
	"runtime"
	"testing"
)

func TestCreateAndIndex(t *testing.T) {
	s := New()
	ctx := context.Background()

	h, err := s.Create(ctx, map[string]any{
		"id":     int64(1),
		"name":   "John",
		"weight": int64(140),
		"location": map[string]any{
			"lng": 40.12,
			"lat": -20.9,
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.PKey() != int64(1) {
		t.Fatalf("expected pkey 1, got %v", h.PKey())
	}

	got, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if name, _ := got.Get("name"); name != "John" {
		t.Fatalf("expected name John, got %v", name)
	}

	sym := NewSymbol()
	pkeys, err := evaluatePredicate(s.indexer, s.allPKeysLocked, sym.Field("name").Eq("John"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, ok := pkeys[int64(1)]; !ok || len(pkeys) != 1 {
		t.Fatalf("expected exactly pkey 1 in name=John posting, got %v", pkeys)
	}

	if _, ok := s.indexer.indices["id"]; ok {
		t.Fatal("primary key field must never be indexed (I4)")
	}
}

func TestRangeQueryOrderedAndProjected(t *testing.T) {
	s := New()
	ctx := context.Background()

	type person struct {
		id     int64
		name   string
		weight int64
	}
	people := []person{
		{1, "John", 140},
		{2, "Sarah", 121},
		{3, "Mike", 183},
		{4, "Lydia", 112},
	}
	for _, p := range people {
		if _, err := s.Create(ctx, map[string]any{"id": p.id, "name": p.name, "weight": p.weight, "location": map[string]any{}}); err != nil {
			t.Fatalf("create %v: %v", p, err)
		}
	}

	sym := NewSymbol()
	q, err := s.Select(sym.Field("name"), sym.Field("location"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	q.Where(sym.Field("weight").Lt(int64(130))).OrderBy(sym.Field("name").Desc())

	result, err := q.Execute(ctx, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	orm := result.(*OrderedRecordMap)
	if orm.Len() != 2 {
		t.Fatalf("expected 2 results, got %d", orm.Len())
	}
	keys := orm.Keys()
	if keys[0] != int64(2) || keys[1] != int64(4) {
		t.Fatalf("expected order [Sarah(2), Lydia(4)], got %v", keys)
	}
	rec, _ := orm.Get(int64(2))
	if len(rec) != 3 {
		t.Fatalf("expected projection of name+location+id, got %v", rec)
	}
	if _, ok := rec["weight"]; ok {
		t.Fatalf("weight should not be projected: %v", rec)
	}
}

func TestTransactionIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "sex": "M"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := Run(ctx, s, nil, func(tx *Transaction) error {
		if _, err := tx.Update(ctx, int64(1), map[string]any{"sex": "F"}); err != nil {
			return err
		}
		h, err := tx.Get(ctx, int64(1))
		if err != nil {
			return err
		}
		if v, _ := h.Get("sex"); v != "F" {
			t.Fatalf("expected in-transaction sex F, got %v", v)
		}
		outside, err := s.Get(ctx, int64(1))
		if err != nil {
			return err
		}
		if v, _ := outside.Get("sex"); v != "M" {
			t.Fatalf("expected pre-commit store sex M, got %v", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction run: %v", err)
	}

	after, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get after commit: %v", err)
	}
	if v, _ := after.Get("sex"); v != "F" {
		t.Fatalf("expected committed sex F, got %v", v)
	}
}

func TestTransactionRollbackAppliesNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, map[string]any{"id": int64(1), "sex": "M"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx := s.Transaction(nil)
	if _, err := tx.Update(ctx, int64(1), map[string]any{"sex": "F"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	h, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := h.Get("sex"); v != "M" {
		t.Fatalf("expected rollback to leave back store untouched, got sex=%v", v)
	}
}

func TestIdentityMapReturnsSameHandle(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.Create(ctx, map[string]any{"id": int64(1), "name": "John"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.Get(ctx, int64(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Fatalf("expected identity map to return the same handle instance")
	}

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestDescendingStringSort(t *testing.T) {
	s := New()
	ctx := context.Background()
	names := []string{"John", "Jeff", "Sarah", "Lydia"}
	for i, n := range names {
		if _, err := s.Create(ctx, map[string]any{"id": int64(i), "name": n}); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}

	sym := NewSymbol()
	q, err := s.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	q.OrderBy(sym.Field("name").Desc())
	result, err := q.Execute(ctx, false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	orm := result.(*OrderedRecordMap)
	want := []string{"Sarah", "Lydia", "John", "Jeff"}
	var got []string
	orm.Each(func(_ any, r map[string]any) {
		got = append(got, r["name"].(string))
	})
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestCompositePredicateIntersection(t *testing.T) {
	s := New()
	ctx := context.Background()
	type rec struct {
		id    int64
		age   int64
		email string
	}
	records := []rec{
		{1, 25, "a@x"},
		{2, 17, "b@x"},
		{3, 30, "c@x"},
		{4, 19, "a@x"},
	}
	for _, r := range records {
		if _, err := s.Create(ctx, map[string]any{"id": r.id, "age": r.age, "email": r.email}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	sym := NewSymbol()
	predicate := sym.Field("age").Gt(int64(18)).And(sym.Field("email").OneOf("a@x", "b@x"))
	pkeys, err := evaluatePredicate(s.indexer, s.allPKeysLocked, predicate)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := map[any]bool{int64(1): true, int64(4): true}
	if len(pkeys) != len(want) {
		t.Fatalf("expected %v, got %v", want, pkeys)
	}
	for pk := range want {
		if _, ok := pkeys[pk]; !ok {
			t.Fatalf("expected pkey %v in result %v", pk, pkeys)
		}
	}
}

func TestDeleteRemovesFromRecordsFieldsAndIndices(t *testing.T) {
	s := New()
	ctx := context.Background()
	h, err := s.Create(ctx, map[string]any{"id": int64(1), "name": "John"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, h.PKey(), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Contains(int64(1)) {
		t.Fatal("expected record to be gone after delete")
	}
	if _, ok := s.indexer.fields[int64(1)]; ok {
		t.Fatal("expected fields bookkeeping to be gone after delete")
	}
	pkeys, err := evaluatePredicate(s.indexer, s.allPKeysLocked, NewSymbol().Field("name").Eq("John"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(pkeys) != 0 {
		t.Fatalf("expected no posting for deleted record, got %v", pkeys)
	}
}

func TestUpdateMovesIndexEntry(t *testing.T) {
	s := New()
	ctx := context.Background()
	h, err := s.Create(ctx, map[string]any{"id": int64(1), "weight": int64(100)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Update(ctx, h.PKey(), map[string]any{"weight": int64(200)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	sym := NewSymbol()
	oldPost, err := evaluatePredicate(s.indexer, s.allPKeysLocked, sym.Field("weight").Eq(int64(100)))
	if err != nil {
		t.Fatalf("evaluate old: %v", err)
	}
	if len(oldPost) != 0 {
		t.Fatalf("expected no posting at old value, got %v", oldPost)
	}
	newPost, err := evaluatePredicate(s.indexer, s.allPKeysLocked, sym.Field("weight").Eq(int64(200)))
	if err != nil {
		t.Fatalf("evaluate new: %v", err)
	}
	if _, ok := newPost[int64(1)]; !ok {
		t.Fatalf("expected posting at new value to contain pkey 1, got %v", newPost)
	}
}
