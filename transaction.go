package store

import (
	"context"
	"fmt"
)

// Transaction layers a private front Store over a back Store, per
// spec.md §4.8: reads merge front over back (front wins), writes land on
// the front and are journaled, and Commit replays the journal onto the
// back store under its lock.
type Transaction struct {
	back *Store
	front *Store

	callback func(tx *Transaction, created, updated, deleted []any) error

	created map[any]struct{}
	updated map[any]struct{}
	deleted map[any]struct{}
	partial map[any]map[string]struct{}
}

func newTransaction(back *Store, callback func(tx *Transaction, created, updated, deleted []any) error) *Transaction {
	front := New(WithPrimaryKeyField(back.pkeyField), WithKeyFactory(back.keyFactory))
	return &Transaction{
		back:     back,
		front:    front,
		callback: callback,
		created:  make(map[any]struct{}),
		updated:  make(map[any]struct{}),
		deleted:  make(map[any]struct{}),
		partial:  make(map[any]map[string]struct{}),
	}
}

// Run opens a transaction on store, invokes fn, and commits on a nil
// return or rolls back otherwise (re-surfacing fn's error), implementing
// spec.md §4.8's "scoped lifecycle": normal exit commits, exceptional
// exit rolls back, and the scope guarantees exactly one of the two runs.
func Run(ctx context.Context, store *Store, callback func(tx *Transaction, created, updated, deleted []any) error, fn func(tx *Transaction) error) (err error) {
	tx := store.Transaction(callback)
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rerr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Get reads through front over back: deleted keys read as absent, a key
// present in front reads from front, otherwise it's copied from back
// into front and returned from there (spec.md §4.8 Reads).
func (tx *Transaction) Get(ctx context.Context, target any) (*Handle, error) {
	pk, ok := tx.back.resolvePKey(target)
	if !ok {
		return nil, nil
	}
	if _, gone := tx.deleted[pk]; gone {
		return nil, nil
	}
	h, err := tx.front.Get(ctx, pk)
	if err != nil {
		return nil, err
	}
	if h != nil {
		h.owner = tx
		return h, nil
	}
	backHandle, err := tx.back.Get(ctx, pk)
	if err != nil {
		return nil, err
	}
	if backHandle == nil {
		return nil, nil
	}
	h, err = tx.front.Create(ctx, backHandle.Map())
	if err != nil {
		return nil, err
	}
	h.owner = tx
	return h, nil
}

// GetMany reads each target via Get, skipping ones that resolve to
// nothing.
func (tx *Transaction) GetMany(ctx context.Context, targets []any) (*OrderedRecordMap, error) {
	out := newOrderedRecordMap()
	for _, t := range targets {
		h, err := tx.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		if h == nil {
			continue
		}
		out.set(h.PKey(), h.Map())
	}
	return out, nil
}

// Create delegates to the front store and journals the resulting
// primary key under created_pkeys.
func (tx *Transaction) Create(ctx context.Context, target any) (*Handle, error) {
	h, err := tx.front.Create(ctx, target)
	if err != nil {
		return nil, err
	}
	tx.created[h.PKey()] = struct{}{}
	h.owner = tx
	return h, nil
}

// CreateMany creates each target in order, stopping at the first error.
func (tx *Transaction) CreateMany(ctx context.Context, targets []any) ([]*Handle, error) {
	out := make([]*Handle, 0, len(targets))
	for _, t := range targets {
		h, err := tx.Create(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Update copies the record from back into front first if front doesn't
// have it yet, then updates the front copy and journals the primary key
// under updated_pkeys.
func (tx *Transaction) Update(ctx context.Context, target any, fields map[string]any) (*Handle, error) {
	pk, ok := tx.back.resolvePKey(target)
	if !ok {
		return nil, ErrNotFound
	}
	if !tx.front.Contains(pk) {
		backHandle, err := tx.back.Get(ctx, pk)
		if err != nil {
			return nil, err
		}
		if backHandle == nil {
			return nil, fmt.Errorf("store: update on missing primary key %v: %w", pk, ErrNotFound)
		}
		if _, err := tx.front.Create(ctx, backHandle.Map()); err != nil {
			return nil, err
		}
	}
	h, err := tx.front.Update(ctx, pk, fields)
	if err != nil {
		return nil, err
	}
	tx.updated[pk] = struct{}{}
	h.owner = tx
	return h, nil
}

// UpdateMany applies each (target, fields) pair, stopping at the first
// error.
func (tx *Transaction) UpdateMany(ctx context.Context, updates map[any]map[string]any) ([]*Handle, error) {
	out := make([]*Handle, 0, len(updates))
	for target, fields := range updates {
		h, err := tx.Update(ctx, target, fields)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Delete records the deletion in front and in bookkeeping. With fields
// empty it's a full delete (journaled under deleted_pkeys, clearing any
// prior create/update/partial-delete bookkeeping for the same key);
// with fields given it's a partial delete, journaled under
// partially_deleted_pkeys.
func (tx *Transaction) Delete(ctx context.Context, target any, fields []string) error {
	pk, ok := tx.back.resolvePKey(target)
	if !ok {
		return nil
	}
	if len(fields) == 0 {
		tx.deleted[pk] = struct{}{}
		delete(tx.created, pk)
		delete(tx.updated, pk)
		delete(tx.partial, pk)
		if tx.front.Contains(pk) {
			return tx.front.Delete(ctx, pk, nil)
		}
		return nil
	}
	if !tx.front.Contains(pk) {
		backHandle, err := tx.back.Get(ctx, pk)
		if err != nil {
			return err
		}
		if backHandle == nil {
			return nil
		}
		if _, err := tx.front.Create(ctx, backHandle.Map()); err != nil {
			return err
		}
	}
	if err := tx.front.Delete(ctx, pk, fields); err != nil {
		return err
	}
	set := tx.partial[pk]
	if set == nil {
		set = make(map[string]struct{})
		tx.partial[pk] = set
	}
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return nil
}

// DeleteMany deletes each target, stopping at the first error.
func (tx *Transaction) DeleteMany(ctx context.Context, targets []any, fields []string) error {
	for _, t := range targets {
		if err := tx.Delete(ctx, t, fields); err != nil {
			return err
		}
	}
	return nil
}

// Select builds a Query against the back store and subscribes a merge
// callback that, on every Execute: strips any primary key this
// transaction has already created, updated, or deleted (since back's
// view of those keys is stale or gone), then re-runs the same query
// against front and folds its current results in (front wins), per
// spec.md §4.8 Reads.
//
// The pkey field is never indexed (I4, index.go's insert/remove), so an
// index-backed NOT_IN predicate over it can't be used as the guard —
// postingsNotIn would see no index for that field and return nil
// unconditionally. Filtering the already-materialized result directly,
// in Go, sidesteps that entirely.
func (tx *Transaction) Select(targets ...any) (*Query, error) {
	q, err := tx.back.Select(targets...)
	if err != nil {
		return nil, err
	}
	q.Subscribe(tx.mergeCallback())
	return q, nil
}

func (tx *Transaction) touchedPKeys() map[any]struct{} {
	touched := make(map[any]struct{}, len(tx.created)+len(tx.updated)+len(tx.deleted))
	for pk := range tx.created {
		touched[pk] = struct{}{}
	}
	for pk := range tx.updated {
		touched[pk] = struct{}{}
	}
	for pk := range tx.deleted {
		touched[pk] = struct{}{}
	}
	return touched
}

func (tx *Transaction) mergeCallback() func(*Query, any) {
	return func(q *Query, result any) {
		orm, ok := result.(*OrderedRecordMap)
		if !ok || orm == nil {
			return
		}
		for pk := range tx.touchedPKeys() {
			orm.delete(pk)
		}
		frontQuery := q.Copy(tx.front)
		frontResult, err := frontQuery.Execute(context.Background(), false)
		if err != nil {
			return
		}
		frontORM, ok := frontResult.(*OrderedRecordMap)
		if !ok || frontORM == nil {
			return
		}
		frontORM.Each(func(pkey any, record map[string]any) {
			orm.set(pkey, record)
		})
	}
}

// Commit replays the journal onto the back store under its lock, in the
// order spec.md §4.8 requires: full deletes, then creates, then updates,
// then partial deletes (each minus anything in deleted_pkeys — so a
// create-then-delete within the transaction becomes a no-op). It then
// invokes the commit callback and clears all bookkeeping plus the front
// store.
//
// This is the resolution of spec.md §9's reentrant-mutex open question:
// rather than make back.mu reentrant, Commit locks it once and calls the
// unexported *Locked methods directly instead of back's public, locking
// API.
func (tx *Transaction) Commit(ctx context.Context) error {
	back := tx.back
	back.mu.Lock()
	defer back.mu.Unlock()

	deletedList := make([]any, 0, len(tx.deleted))
	for pk := range tx.deleted {
		deletedList = append(deletedList, pk)
	}
	for _, pk := range deletedList {
		if err := back.deleteLocked(pk, nil); err != nil {
			return fmt.Errorf("store: commit delete %v: %w", pk, err)
		}
	}

	var createdList, updatedList []any
	for pk := range tx.created {
		if _, gone := tx.deleted[pk]; gone {
			continue
		}
		rec, ok := tx.front.records[pk]
		if !ok {
			continue
		}
		if _, err := back.createLocked(cloneRecord(rec)); err != nil {
			return fmt.Errorf("store: commit create %v: %w", pk, err)
		}
		createdList = append(createdList, pk)
	}

	for pk := range tx.updated {
		if _, gone := tx.deleted[pk]; gone {
			continue
		}
		rec, ok := tx.front.records[pk]
		if !ok {
			continue
		}
		if _, err := back.updateLocked(pk, cloneRecord(rec)); err != nil {
			return fmt.Errorf("store: commit update %v: %w", pk, err)
		}
		updatedList = append(updatedList, pk)
	}

	for pk, fields := range tx.partial {
		if _, gone := tx.deleted[pk]; gone {
			continue
		}
		list := make([]string, 0, len(fields))
		for f := range fields {
			list = append(list, f)
		}
		if err := back.deleteLocked(pk, list); err != nil {
			return fmt.Errorf("store: commit partial delete %v: %w", pk, err)
		}
	}

	if tx.callback != nil {
		if err := tx.callback(tx, createdList, updatedList, deletedList); err != nil {
			return err
		}
	}

	tx.clearBookkeeping()
	tx.front.Clear()
	return nil
}

// Rollback clears the front store and all bookkeeping sets; it never
// mutates the back store.
func (tx *Transaction) Rollback() error {
	tx.clearBookkeeping()
	tx.front.Clear()
	return nil
}

func (tx *Transaction) clearBookkeeping() {
	tx.created = make(map[any]struct{})
	tx.updated = make(map[any]struct{})
	tx.deleted = make(map[any]struct{})
	tx.partial = make(map[any]map[string]struct{})
}

// --- handleOwner ---

func (tx *Transaction) saveHandle(ctx context.Context, h *Handle, fields []string) error {
	updates := make(map[string]any, len(fields))
	for _, f := range fields {
		v, _ := h.Get(f)
		updates[f] = v
	}
	_, err := tx.Update(ctx, h.PKey(), updates)
	return err
}

func (tx *Transaction) deleteHandleFields(ctx context.Context, h *Handle, fields []string) error {
	return tx.Delete(ctx, h.PKey(), fields)
}
