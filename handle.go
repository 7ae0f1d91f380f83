package store

import "context"

// handleOwner is implemented by Store and Transaction so that a Handle's
// Save/Delete can route field writes back through the owner that
// produced it, per spec.md §5's closing paragraph ("field writes on a
// handle route through the owning store or transaction").
type handleOwner interface {
	saveHandle(ctx context.Context, h *Handle, fields []string) error
	deleteHandleFields(ctx context.Context, h *Handle, fields []string) error
}

// Handle is a dirty-tracking wrapper around a record snapshot, returned
// by Get/Create/Update. This supplements spec.md with the Python
// original's DirtyDict behavior (see SPEC_FULL.md §10): Set marks fields
// dirty locally, and only Save pushes the touched subset back to the
// owning store or transaction.
type Handle struct {
	pkey   any
	fields map[string]any
	dirty  map[string]bool
	owner  handleOwner
}

func newHandle(pkey any, record map[string]any, owner handleOwner) *Handle {
	return &Handle{
		pkey:   pkey,
		fields: cloneRecord(record),
		dirty:  make(map[string]bool),
		owner:  owner,
	}
}

// refresh overwrites fields from record, skipping any field with an
// unsaved local edit so a concurrent refresh can't clobber pending work.
func (h *Handle) refresh(record map[string]any) {
	for k, v := range record {
		if h.dirty[k] {
			continue
		}
		h.fields[k] = cloneValue(v)
	}
}

// PKey returns the handle's primary key.
func (h *Handle) PKey() any { return h.pkey }

// Get returns the named field's current value (including unsaved edits).
func (h *Handle) Get(field string) (any, bool) {
	v, ok := h.fields[field]
	return v, ok
}

// Set stages a field edit locally; it has no effect on the store until
// Save is called.
func (h *Handle) Set(field string, value any) {
	h.fields[field] = value
	h.dirty[field] = true
}

// Map returns a snapshot copy of the handle's current fields.
func (h *Handle) Map() map[string]any {
	return cloneRecord(h.fields)
}

// Save flushes fields touched by Set since the last Save back through
// the owning store or transaction. It is a no-op if nothing is dirty.
func (h *Handle) Save(ctx context.Context) error {
	if len(h.dirty) == 0 {
		return nil
	}
	fields := make([]string, 0, len(h.dirty))
	for f := range h.dirty {
		fields = append(fields, f)
	}
	if err := h.owner.saveHandle(ctx, h, fields); err != nil {
		return err
	}
	for _, f := range fields {
		delete(h.dirty, f)
	}
	return nil
}

// Delete removes the given fields (or the whole record, if none given)
// through the owning store or transaction.
func (h *Handle) Delete(ctx context.Context, fields ...string) error {
	return h.owner.deleteHandleFields(ctx, h, fields)
}

// cloneRecord deep-copies a record's fields, recursing into composite
// shapes (map[string]any, map[any]any, Seq, Set) so that mutating a
// nested value the caller retained a reference to (e.g. a "location"
// map passed into Create) can never desync a Handle or an index entry
// from what was actually stored, per spec.md:245.
func cloneRecord(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = cloneValue(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(vv))
		for k, e := range vv {
			out[cloneValue(k)] = cloneValue(e)
		}
		return out
	case Seq:
		out := make(Seq, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	case Set:
		out := make(Set, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
