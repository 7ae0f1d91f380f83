package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func populated(t *testing.T, n int) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := s.Create(ctx, map[string]any{"id": int64(i), "n": int64(i)}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	return s
}

func TestPaginationOffsetAndLimit(t *testing.T) {
	s := populated(t, 10)
	ctx := context.Background()

	sym := NewSymbol()
	q, err := s.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	q.OrderBy(sym.Field("n").Asc()).Offset(3).Limit(4)

	result, err := q.Execute(ctx, false)
	require.NoError(t, err)
	orm := result.(*OrderedRecordMap)
	require.Equal(t, 4, orm.Len())
	require.Equal(t, []any{int64(3), int64(4), int64(5), int64(6)}, orm.Keys())
}

func TestLimitClampedToAtLeastOne(t *testing.T) {
	q := newQuery(populated(t, 3))
	q.Limit(0)
	if *q.limitN != 1 {
		t.Fatalf("expected limit clamped to 1, got %d", *q.limitN)
	}
}

func TestOffsetClampedToAtLeastZero(t *testing.T) {
	q := newQuery(populated(t, 3))
	q.Offset(-5)
	if *q.offsetN != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", *q.offsetN)
	}
}

func TestSelectRejectsNotSelectable(t *testing.T) {
	s := populated(t, 1)
	_, err := s.Select(42)
	if err == nil {
		t.Fatal("expected NotSelectable error")
	}
	if _, ok := err.(*NotSelectable); !ok {
		t.Fatalf("expected *NotSelectable, got %T", err)
	}
}

func TestExecuteFirstReturnsNilOnEmpty(t *testing.T) {
	s := New()
	q, err := s.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	result, err := q.Execute(context.Background(), true)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil for first on empty store, got %v", result)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := populated(t, 2)
	q, err := s.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	calls := 0
	id := q.Subscribe(func(*Query, any) { calls++ })
	if _, err := q.Execute(context.Background(), false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected subscriber called once, got %d", calls)
	}
	q.Unsubscribe(id)
	if _, err := q.Execute(context.Background(), false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no further calls after unsubscribe, got %d", calls)
	}
}

func TestQueryCopyRebindsStoreAndClonesState(t *testing.T) {
	s1 := populated(t, 2)
	s2 := populated(t, 2)

	sym := NewSymbol()
	q, err := s1.Select(sym.Field("n"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	q.Where(sym.Field("n").Ge(int64(0))).OrderBy(sym.Field("n").Asc()).Limit(1)

	cp := q.Copy(s2)
	if cp.store != queryBackend(s2) {
		t.Fatal("expected copy to be rebound to s2")
	}
	cp.Limit(5)
	if *q.limitN == 5 {
		t.Fatal("expected Copy to clone pagination independently of the original")
	}
}
