package store

import "context"

// queryBackend is the surface a Query needs from the Store it runs
// against. Transaction.Select runs its query against the back Store and
// merges a copy run against the front Store from a subscriber callback.
type queryBackend interface {
	pkeyFieldName() string
	insertionOrderRecords() []map[string]any
	evaluatePredicate(p *Predicate) (postingSet, error)
	recordsFor(pkeys postingSet) []map[string]any
}

type subscription struct {
	id int
	fn func(*Query, any)
}

// Query holds a selection, predicate, orderings, and pagination, per
// spec.md §4.6. Build one with Store.Select, not directly.
type Query struct {
	store       queryBackend
	selected    []string
	selectedSet map[string]struct{}
	predicate   *Predicate
	orderings   []Ordering
	limitN      *int
	offsetN     *int
	subscribers []subscription
	nextSubID   int
}

func newQuery(backend queryBackend) *Query {
	return &Query{store: backend, selectedSet: make(map[string]struct{})}
}

// Select adds targets (field names or *SymbolicAttribute) to the
// projection. NotSelectable is returned for anything else.
func (q *Query) Select(targets ...any) (*Query, error) {
	for _, t := range targets {
		switch v := t.(type) {
		case string:
			if _, ok := q.selectedSet[v]; !ok {
				q.selected = append(q.selected, v)
				q.selectedSet[v] = struct{}{}
			}
		case *SymbolicAttribute:
			if _, ok := q.selectedSet[v.key]; !ok {
				q.selected = append(q.selected, v.key)
				q.selectedSet[v.key] = struct{}{}
			}
		default:
			return nil, &NotSelectable{Target: t}
		}
	}
	return q, nil
}

// OrderBy appends orderings to the sort key.
func (q *Query) OrderBy(orderings ...Ordering) *Query {
	q.orderings = append(q.orderings, orderings...)
	return q
}

// Where combines predicates with AND and merges them into any existing
// predicate, also with AND (spec.md §6: "multiple predicates combine
// with AND").
func (q *Query) Where(predicates ...*Predicate) *Query {
	if len(predicates) == 0 {
		return q
	}
	combined := predicates[0]
	for _, next := range predicates[1:] {
		combined = combined.And(next)
	}
	if q.predicate == nil {
		q.predicate = combined
	} else {
		q.predicate = q.predicate.And(combined)
	}
	return q
}

// Limit sets the result limit, clamped to at least 1 (spec.md §4.6).
func (q *Query) Limit(n int) *Query {
	if n < 1 {
		n = 1
	}
	q.limitN = &n
	return q
}

// Offset sets the result offset, clamped to at least 0.
func (q *Query) Offset(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.offsetN = &n
	return q
}

// Clear resets the query to an empty selection/predicate/orderings/
// pagination, keeping its backing store.
func (q *Query) Clear() *Query {
	q.selected = nil
	q.selectedSet = make(map[string]struct{})
	q.orderings = nil
	q.predicate = nil
	q.limitN = nil
	q.offsetN = nil
	return q
}

// Subscribe registers cb to run with (query, result) after every
// Execute, returning an id Unsubscribe can later use to remove it.
// Go func values aren't comparable, so — unlike the Python original's
// callback-identity-based unsubscribe — this hands back an explicit id.
func (q *Query) Subscribe(cb func(*Query, any)) int {
	id := q.nextSubID
	q.nextSubID++
	q.subscribers = append(q.subscribers, subscription{id: id, fn: cb})
	return id
}

// Unsubscribe removes a callback previously registered with Subscribe.
func (q *Query) Unsubscribe(id int) {
	for i, s := range q.subscribers {
		if s.id == id {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

func (q *Query) notify(result any) {
	for _, s := range q.subscribers {
		s.fn(q, result)
	}
}

// Copy clones orderings, selection, and pagination, optionally rebinding
// the copy to a different store (spec.md §4.6). The predicate tree is
// shared with the copy rather than cloned: it is immutable once built
// (Where/And/Or always allocate new nodes), so sharing it is safe.
// Subscribers are not copied.
func (q *Query) Copy(backend queryBackend) *Query {
	nq := &Query{
		store:       q.store,
		selected:    append([]string(nil), q.selected...),
		selectedSet: make(map[string]struct{}, len(q.selectedSet)),
		predicate:   q.predicate,
		orderings:   append([]Ordering(nil), q.orderings...),
	}
	for k := range q.selectedSet {
		nq.selectedSet[k] = struct{}{}
	}
	if q.limitN != nil {
		l := *q.limitN
		nq.limitN = &l
	}
	if q.offsetN != nil {
		o := *q.offsetN
		nq.offsetN = &o
	}
	if backend != nil {
		nq.store = backend
	}
	return nq
}

// Execute runs the pipeline described in spec.md §4.6: evaluate (or load
// all), sort, paginate, project, then notify subscribers. With first
// true it returns a single projected record (or nil); otherwise it
// returns an *OrderedRecordMap keyed by primary key in result order.
func (q *Query) Execute(ctx context.Context, first bool) (any, error) {
	var records []map[string]any
	if q.predicate == nil {
		records = q.store.insertionOrderRecords()
	} else {
		pkeys, err := q.store.evaluatePredicate(q.predicate)
		if err != nil {
			return nil, err
		}
		records = q.store.recordsFor(pkeys)
	}

	if len(records) == 0 {
		if first {
			q.notify(nil)
			return nil, nil
		}
		result := newOrderedRecordMap()
		q.notify(result)
		return result, nil
	}

	if len(q.orderings) > 0 {
		if err := sortRecords(records, q.orderings); err != nil {
			return nil, err
		}
	}

	records = paginate(records, q.offsetN, q.limitN)
	if len(records) == 0 {
		if first {
			q.notify(nil)
			return nil, nil
		}
		result := newOrderedRecordMap()
		q.notify(result)
		return result, nil
	}

	pkeyField := q.store.pkeyFieldName()
	project := func(r map[string]any) map[string]any {
		if len(q.selected) == 0 {
			return r
		}
		out := make(map[string]any, len(q.selected)+1)
		for _, f := range q.selected {
			if v, ok := r[f]; ok {
				out[f] = v
			}
		}
		if v, ok := r[pkeyField]; ok {
			out[pkeyField] = v
		}
		return out
	}

	if first {
		result := project(records[0])
		q.notify(result)
		return result, nil
	}

	result := newOrderedRecordMap()
	for _, r := range records {
		pr := project(r)
		result.set(pr[pkeyField], pr)
	}
	q.notify(result)
	return result, nil
}

func paginate(records []map[string]any, offset, limit *int) []map[string]any {
	if offset != nil {
		o := *offset
		if o > len(records) {
			o = len(records)
		}
		records = records[o:]
	}
	if limit != nil {
		l := *limit
		if l > len(records) {
			l = len(records)
		}
		records = records[:l]
	}
	return records
}

// OrderedRecordMap is a primary-key -> projected-record mapping that
// preserves insertion (i.e. result) order, supplementing Go's builtin
// map (which has none) to match the Python original's OrderedDict
// result type (spec.md §4.6 step 6).
type OrderedRecordMap struct {
	keys   []any
	values map[any]map[string]any
}

func newOrderedRecordMap() *OrderedRecordMap {
	return &OrderedRecordMap{values: make(map[any]map[string]any)}
}

func (m *OrderedRecordMap) set(pkey any, record map[string]any) {
	if _, ok := m.values[pkey]; !ok {
		m.keys = append(m.keys, pkey)
	}
	m.values[pkey] = record
}

func (m *OrderedRecordMap) delete(pkey any) {
	if _, ok := m.values[pkey]; !ok {
		return
	}
	delete(m.values, pkey)
	for i, k := range m.keys {
		if k == pkey {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Get returns the record for pkey, if present.
func (m *OrderedRecordMap) Get(pkey any) (map[string]any, bool) {
	v, ok := m.values[pkey]
	return v, ok
}

// Keys returns the primary keys in result order.
func (m *OrderedRecordMap) Keys() []any { return append([]any(nil), m.keys...) }

// Len returns the number of records.
func (m *OrderedRecordMap) Len() int { return len(m.keys) }

// Each calls fn for every (pkey, record) pair in result order.
func (m *OrderedRecordMap) Each(fn func(pkey any, record map[string]any)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}
