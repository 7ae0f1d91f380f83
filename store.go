// Package store implements an in-memory, indexed, transactional record
// store with a SQL-like fluent query language: point lookups, range
// queries, and composite boolean predicates over a primary-key table,
// with projection, ordering, pagination, and staged commit-or-rollback
// transactions layered on top.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Option configures a Store at construction time.
type Option func(*Store)

// WithPrimaryKeyField sets the record field that holds the primary key.
// The default is "id".
func WithPrimaryKeyField(name string) Option {
	return func(s *Store) { s.pkeyField = name }
}

// WithKeyFactory overrides the default random-hex key factory used when
// Create is given a record with no primary-key field set.
func WithKeyFactory(f KeyFactory) Option {
	return func(s *Store) { s.keyFactory = f }
}

// WithLogger attaches a structured logger for debug diagnostics; the
// store logs a debug message when Clear runs. The default discards all
// output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store is the primary-key -> record table described in spec.md §3/§4.5:
// a single mutex-guarded table, its secondary indices, and an identity
// map giving callers back the same handle for a live primary key. The
// mutex is not reentrant: public methods lock it and delegate to
// unexported *Locked methods, which Transaction.Commit calls directly.
type Store struct {
	mu sync.Mutex

	pkeyField  string
	keyFactory KeyFactory
	log        *slog.Logger

	records  map[any]map[string]any
	order    []any
	orderIdx map[any]int

	indexer  *indexManager
	identity *identityMap
}

// New creates an empty Store. Default primary-key field is "id"; default
// key factory generates a random 128-bit hex string (see keyfactory.go).
func New(opts ...Option) *Store {
	s := &Store{
		pkeyField:  "id",
		keyFactory: randomHexKey,
		log:        slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		records:    make(map[any]map[string]any),
		orderIdx:   make(map[any]int),
		identity:   newIdentityMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.indexer = newIndexManager(s.pkeyField)
	return s
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// PrimaryKeyField returns the configured primary-key field name.
func (s *Store) PrimaryKeyField() string { return s.pkeyField }

// resolvePKey implements spec.md §6's target resolution rule: a mapping
// yields its primary-key field's value, a *Handle yields its own pkey,
// a struct is reflected over for a field matching the primary-key field
// name (case-insensitively, Go having no attribute-name convention that
// matches snake_case "id" exactly), and anything else is the pkey
// itself.
func (s *Store) resolvePKey(target any) (any, bool) {
	switch v := target.(type) {
	case map[string]any:
		pk, ok := v[s.pkeyField]
		return pk, ok
	case *Handle:
		return v.pkey, true
	}
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if sf, ok := rv.Type().FieldByNameFunc(func(n string) bool {
			return equalFold(n, s.pkeyField)
		}); ok && sf.IsExported() {
			return rv.FieldByIndex(sf.Index).Interface(), true
		}
	}
	return target, true
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// toRecord coerces target into a mapping, per spec.md §4.5: maps and
// Handles pass through (or unwrap), and structs are reflected over their
// exported fields, mirroring the Python original's reflection over
// "public, non-callable, hashable attributes".
func toRecord(target any) (map[string]any, error) {
	if target == nil {
		return nil, fmt.Errorf("store: cannot create a nil record")
	}
	if m, ok := target.(map[string]any); ok {
		return m, nil
	}
	if h, ok := target.(*Handle); ok {
		return h.Map(), nil
	}
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("store: cannot create from a nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("store: %T is not a mapping or struct", target)
	}
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() || f.Type.Kind() == reflect.Func {
			continue
		}
		v := rv.Field(i).Interface()
		if _, err := Coerce(v); err != nil {
			continue
		}
		out[f.Name] = v
	}
	return out, nil
}

// Create inserts target (a mapping, *Handle, or struct) as a new record,
// assigning a primary key via the store's KeyFactory if one isn't
// present, and returns the resulting Handle.
func (s *Store) Create(ctx context.Context, target any) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(target)
}

func (s *Store) createLocked(target any) (*Handle, error) {
	rec, err := toRecord(target)
	if err != nil {
		return nil, err
	}
	record := cloneRecord(rec)
	pk, ok := record[s.pkeyField]
	if !ok || pk == nil {
		pk = s.keyFactory()
		record[s.pkeyField] = pk
	}
	if _, exists := s.records[pk]; exists {
		return nil, fmt.Errorf("store: primary key %v already exists", pk)
	}
	fields := make([]string, 0, len(record))
	for f := range record {
		fields = append(fields, f)
	}
	if err := s.indexer.insert(pk, record, fields); err != nil {
		// The record is not stored, so unwind the fields that were indexed.
		_ = s.indexer.remove(pk, record, nil)
		return nil, err
	}
	s.records[pk] = record
	s.orderIdx[pk] = len(s.order)
	s.order = append(s.order, pk)
	h := newHandle(pk, record, s)
	s.identity.set(pk, h)
	return h, nil
}

// CreateMany creates each target in order, stopping at the first error
// (already-created elements remain committed — spec.md §7: "operations
// are element-wise, not batch-atomic").
func (s *Store) CreateMany(ctx context.Context, targets []any) ([]*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(targets))
	for _, t := range targets {
		h, err := s.createLocked(t)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Get resolves target to a primary key and returns its Handle, or
// (nil, nil) if absent, returning the identity-map instance when the
// handle is already live (spec.md §4.5 Identity map).
func (s *Store) Get(ctx context.Context, target any) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(target)
}

func (s *Store) getLocked(target any) (*Handle, error) {
	pk, ok := s.resolvePKey(target)
	if !ok {
		return nil, nil
	}
	record, exists := s.records[pk]
	if !exists {
		return nil, nil
	}
	if h, ok := s.identity.get(pk); ok {
		h.refresh(record)
		return h, nil
	}
	h := newHandle(pk, record, s)
	s.identity.set(pk, h)
	return h, nil
}

// GetMany resolves each target and returns the present ones as an
// OrderedRecordMap, skipping any that don't resolve.
func (s *Store) GetMany(ctx context.Context, targets []any) (*OrderedRecordMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := newOrderedRecordMap()
	for _, t := range targets {
		h, err := s.getLocked(t)
		if err != nil {
			return nil, err
		}
		if h == nil {
			continue
		}
		out.set(h.pkey, h.Map())
	}
	return out, nil
}

// Update resolves target's primary key, applies fields (or, if fields is
// nil and target is a mapping, applies every field in it other than the
// primary-key field itself), reflects the diff into the index manager,
// and returns the identity handle.
func (s *Store) Update(ctx context.Context, target any, fields map[string]any) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(target, fields)
}

func (s *Store) updateLocked(target any, fields map[string]any) (*Handle, error) {
	pk, ok := s.resolvePKey(target)
	if !ok {
		return nil, ErrNotFound
	}
	record, exists := s.records[pk]
	if !exists {
		return nil, fmt.Errorf("store: update on missing primary key %v: %w", pk, ErrNotFound)
	}
	old := cloneRecord(record)

	touched := make([]string, 0, len(fields))
	if fields == nil {
		if m, ok := target.(map[string]any); ok {
			for k, v := range m {
				if k == s.pkeyField {
					continue
				}
				record[k] = cloneValue(v)
				touched = append(touched, k)
			}
		}
	} else {
		for k, v := range fields {
			record[k] = cloneValue(v)
			touched = append(touched, k)
		}
	}

	if err := s.indexer.update(pk, old, record, touched); err != nil {
		return nil, err
	}

	if h, ok := s.identity.get(pk); ok {
		h.refresh(record)
		return h, nil
	}
	h := newHandle(pk, record, s)
	s.identity.set(pk, h)
	return h, nil
}

// UpdateMany applies each (target, fields) pair in map iteration order,
// stopping at the first error.
func (s *Store) UpdateMany(ctx context.Context, updates map[any]map[string]any) ([]*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(updates))
	for target, fields := range updates {
		h, err := s.updateLocked(target, fields)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Delete resolves target's primary key. With fields empty, it removes
// the record and every index entry for it; with fields given, it nulls
// those fields in place, reflecting the transition into the index
// manager — this is the spec.md §9 open-question choice of nulling
// (over removing the key from the record) so partial deletes compose
// with transaction replay.
func (s *Store) Delete(ctx context.Context, target any, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(target, fields)
}

func (s *Store) deleteLocked(target any, fields []string) error {
	pk, ok := s.resolvePKey(target)
	if !ok {
		return nil
	}
	record, exists := s.records[pk]
	if !exists {
		return nil
	}
	if len(fields) == 0 {
		if err := s.indexer.remove(pk, record, nil); err != nil {
			return err
		}
		delete(s.records, pk)
		s.removeFromOrder(pk)
		s.identity.delete(pk)
		return nil
	}
	old := cloneRecord(record)
	for _, f := range fields {
		if f == s.pkeyField {
			continue
		}
		record[f] = nil
	}
	if err := s.indexer.update(pk, old, record, fields); err != nil {
		return err
	}
	if h, ok := s.identity.get(pk); ok {
		h.refresh(record)
	}
	return nil
}

func (s *Store) removeFromOrder(pk any) {
	idx, ok := s.orderIdx[pk]
	if !ok {
		return
	}
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	delete(s.orderIdx, pk)
	for i := idx; i < len(s.order); i++ {
		s.orderIdx[s.order[i]] = i
	}
}

// DeleteMany deletes each target in order, stopping at the first error.
func (s *Store) DeleteMany(ctx context.Context, targets []any, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		if err := s.deleteLocked(t, fields); err != nil {
			return err
		}
	}
	return nil
}

// Clear resets the store to empty: no records, no indices, no live
// identity-map entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[any]map[string]any)
	s.order = nil
	s.orderIdx = make(map[any]int)
	s.indexer.clear()
	s.identity = newIdentityMap()
	s.log.Debug("store cleared")
}

// Contains reports whether target resolves to a primary key currently in
// the store.
func (s *Store) Contains(target any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ok := s.resolvePKey(target)
	if !ok {
		return false
	}
	_, exists := s.records[pk]
	return exists
}

// Len returns the number of records currently in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Select begins a Query against this store, optionally pre-populating
// its projection (equivalent to calling Select on the returned Query).
func (s *Store) Select(targets ...any) (*Query, error) {
	q := newQuery(s)
	if len(targets) == 0 {
		return q, nil
	}
	return q.Select(targets...)
}

// Transaction opens a Transaction layering a private front store over
// this (back) store. callback, if non-nil, runs after a successful
// commit with the created/updated/deleted primary keys.
func (s *Store) Transaction(callback func(tx *Transaction, created, updated, deleted []any) error) *Transaction {
	return newTransaction(s, callback)
}

// --- queryBackend ---

func (s *Store) pkeyFieldName() string { return s.pkeyField }

func (s *Store) insertionOrderRecords() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.order))
	for _, pk := range s.order {
		out = append(out, cloneRecord(s.records[pk]))
	}
	return out
}

func (s *Store) evaluatePredicate(p *Predicate) (postingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return evaluatePredicate(s.indexer, s.allPKeysLocked, p)
}

func (s *Store) allPKeysLocked() postingSet {
	out := make(postingSet, len(s.records))
	for pk := range s.records {
		out[pk] = struct{}{}
	}
	return out
}

func (s *Store) recordsFor(pkeys postingSet) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(pkeys))
	for pk := range pkeys {
		if r, ok := s.records[pk]; ok {
			out = append(out, cloneRecord(r))
		}
	}
	return out
}

// --- handleOwner ---

func (s *Store) saveHandle(ctx context.Context, h *Handle, fields []string) error {
	updates := make(map[string]any, len(fields))
	for _, f := range fields {
		v, _ := h.Get(f)
		updates[f] = v
	}
	_, err := s.Update(ctx, h.pkey, updates)
	return err
}

func (s *Store) deleteHandleFields(ctx context.Context, h *Handle, fields []string) error {
	return s.Delete(ctx, h.pkey, fields)
}
