package store

import "github.com/dgabriele/store/internal/omap"

// postingSet is the set of primary keys indexed at one coerced value.
type postingSet map[any]struct{}

func (s postingSet) clone() postingSet {
	out := make(postingSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func intersectPostings(a, b postingSet) postingSet {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	out := make(postingSet, len(small))
	for k := range small {
		if _, ok := big[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func unionPostings(a, b postingSet) postingSet {
	out := make(postingSet, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// indexManager maintains one ordered map per field over the live record
// set (spec.md §4.3), tracking which fields are currently indexed for
// each primary key so remove/update know exactly what to unwind.
type indexManager struct {
	indices   map[string]*omap.Map[postingSet]
	fields    map[any]map[string]struct{}
	pkeyField string
}

func newIndexManager(pkeyField string) *indexManager {
	return &indexManager{
		indices:   make(map[string]*omap.Map[postingSet]),
		fields:    make(map[any]map[string]struct{}),
		pkeyField: pkeyField,
	}
}

// insert adds pkey to the posting set at record[f]'s coerced value, for
// each f in fields other than the primary-key field (I4). Partial
// insertion already applied on a NotHashable failure remains consistent
// with I1-I4 for the fields that succeeded, per spec.md §4.3.
func (im *indexManager) insert(pkey any, record map[string]any, fields []string) error {
	touched := im.fields[pkey]
	if touched == nil {
		touched = make(map[string]struct{})
		im.fields[pkey] = touched
	}
	for _, f := range fields {
		if f == im.pkeyField {
			continue
		}
		v, ok := record[f]
		if !ok {
			continue
		}
		c, err := coerceField(v, f)
		if err != nil {
			return err
		}
		om, ok := im.indices[f]
		if !ok {
			om = omap.New[postingSet]()
			im.indices[f] = om
		}
		set, ok := om.Get(c)
		if !ok {
			set = make(postingSet)
			om.Set(c, set)
		}
		set[pkey] = struct{}{}
		touched[f] = struct{}{}
	}
	return nil
}

// remove discards pkey from the posting set at record's old coerced
// value for each named field, or every field currently tracked for pkey
// when fields is nil. Empty posting sets and empty field maps are
// eagerly removed (I3).
func (im *indexManager) remove(pkey any, record map[string]any, fields []string) error {
	touched := im.fields[pkey]
	if fields == nil {
		fields = make([]string, 0, len(touched))
		for f := range touched {
			fields = append(fields, f)
		}
	}
	for _, f := range fields {
		if f == im.pkeyField {
			continue
		}
		v, ok := record[f]
		if !ok {
			continue
		}
		c, err := coerceField(v, f)
		if err != nil {
			return err
		}
		om, ok := im.indices[f]
		if !ok {
			continue
		}
		if set, ok := om.Get(c); ok {
			delete(set, pkey)
			if len(set) == 0 {
				om.Delete(c)
			}
		}
		if om.Len() == 0 {
			delete(im.indices, f)
		}
		if touched != nil {
			delete(touched, f)
		}
	}
	if touched != nil && len(touched) == 0 {
		delete(im.fields, pkey)
	}
	return nil
}

// update partitions fields into those already indexed for pkey (remove
// the old value, insert the new) and those new to this record (insert
// only), per spec.md §4.3.
func (im *indexManager) update(pkey any, oldRecord, newRecord map[string]any, fields []string) error {
	touched := im.fields[pkey]
	var existing, fresh []string
	for _, f := range fields {
		if touched != nil {
			if _, ok := touched[f]; ok {
				existing = append(existing, f)
				continue
			}
		}
		fresh = append(fresh, f)
	}
	if len(existing) > 0 {
		if err := im.remove(pkey, oldRecord, existing); err != nil {
			return err
		}
		if err := im.insert(pkey, newRecord, existing); err != nil {
			return err
		}
	}
	if len(fresh) > 0 {
		if err := im.insert(pkey, newRecord, fresh); err != nil {
			return err
		}
	}
	return nil
}

func (im *indexManager) clear() {
	im.indices = make(map[string]*omap.Map[postingSet])
	im.fields = make(map[any]map[string]struct{})
}

// posting returns the exact-match posting set for EQ.
func (im *indexManager) posting(field string, c Coerced) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	set, _ := om.Get(c)
	return set
}

// postingsExcept unions every posting set whose key != c, for NE.
func (im *indexManager) postingsExcept(field string, c Coerced) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	out := make(postingSet)
	om.Ascend(func(k omap.Key, set postingSet) bool {
		if k.(Coerced) == c {
			return true
		}
		for pk := range set {
			out[pk] = struct{}{}
		}
		return true
	})
	return out
}

// postingsIn unions posting sets at each coerced value in values, for IN.
func (im *indexManager) postingsIn(field string, values map[Coerced]struct{}) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	out := make(postingSet)
	for c := range values {
		if set, ok := om.Get(c); ok {
			for pk := range set {
				out[pk] = struct{}{}
			}
		}
	}
	return out
}

// postingsNotIn unions posting sets whose key is absent from values, for
// NOT_IN.
func (im *indexManager) postingsNotIn(field string, values map[Coerced]struct{}) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	out := make(postingSet)
	om.Ascend(func(k omap.Key, set postingSet) bool {
		if _, skip := values[k.(Coerced)]; skip {
			return true
		}
		for pk := range set {
			out[pk] = struct{}{}
		}
		return true
	})
	return out
}

// postingsLess unions posting sets for keys below c (or at-or-below c
// when orEqual), realizing LT/LE's lower_bound/upper_bound slice.
func (im *indexManager) postingsLess(field string, c Coerced, orEqual bool) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	out := make(postingSet)
	if !orEqual {
		om.AscendRange(nil, c, func(_ omap.Key, set postingSet) bool {
			for pk := range set {
				out[pk] = struct{}{}
			}
			return true
		})
		return out
	}
	// LE has no generic exclusive-upper-bound-of(c) expression over an
	// opaque Key, so walk ascending and stop at the first key > c —
	// equivalent to upper_bound(value) in spec.md §4.4.
	om.Ascend(func(k omap.Key, set postingSet) bool {
		kc := k.(Coerced)
		if kc.Less(c) || kc == c {
			for pk := range set {
				out[pk] = struct{}{}
			}
			return true
		}
		return false
	})
	return out
}

// postingsGreater unions posting sets for keys above c (or at-or-above c
// when orEqual), realizing GT/GE.
func (im *indexManager) postingsGreater(field string, c Coerced, orEqual bool) postingSet {
	om, ok := im.indices[field]
	if !ok {
		return nil
	}
	out := make(postingSet)
	om.AscendRange(c, nil, func(k omap.Key, set postingSet) bool {
		kc := k.(Coerced)
		if !orEqual && kc == c {
			return true
		}
		for pk := range set {
			out[pk] = struct{}{}
		}
		return true
	})
	return out
}
