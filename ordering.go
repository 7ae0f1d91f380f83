package store

import (
	"math/big"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

const maxUnicode = 0x10FFFF

// invertUnicodeString replaces each rune with its Unicode complement, so
// that ascending lexicographic order of the result is descending
// lexicographic order of s (spec.md §4.7).
func invertUnicodeString(s string) string {
	runes := []rune(s)
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = rune(maxUnicode - int(r))
	}
	return string(out)
}

// numericConvert turns a descending-sort value into the float64 spec.md
// §4.7 calls "a numeric representation": bytes via big-endian integer,
// datetime via epoch seconds, timedelta via total seconds, date via
// ordinal, and composite values (map/set/sequence) via the same
// hash-then-negate strategy the Python original uses (there, Python's
// hash(); here, hashstructure, mirroring the original's reliance on a
// value's hash for a type with no natural numeric order).
func numericConvert(value any, field string) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		bi := new(big.Int).SetBytes(v)
		f := new(big.Float).SetInt(bi)
		out, _ := f.Float64()
		return out, nil
	case time.Time:
		return float64(v.UnixNano()) / 1e9, nil
	case time.Duration:
		return v.Seconds(), nil
	case Date:
		return float64(v.Ordinal()), nil
	case Seq, Set, map[string]any, map[any]any:
		h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
		if err != nil {
			return 0, &NotOrderable{Field: field, Value: value}
		}
		return float64(int64(h)), nil
	default:
		return 0, &NotOrderable{Field: field, Value: value}
	}
}

// sortElem is one ordering's precomputed key for one record: either the
// coerced ascending value, or (for descending) an inverted string or a
// negated numeric representation.
type sortElem struct {
	isString bool
	str      string
	num      float64
	asc      Coerced
}

func buildSortElem(value any, o Ordering) (sortElem, error) {
	if value == nil {
		value = int64(0)
	}
	if !o.desc {
		c, err := coerceField(value, o.attr.key)
		if err != nil {
			return sortElem{}, err
		}
		return sortElem{asc: c}, nil
	}
	if s, ok := value.(string); ok {
		return sortElem{isString: true, str: invertUnicodeString(s)}, nil
	}
	n, err := numericConvert(value, o.attr.key)
	if err != nil {
		return sortElem{}, err
	}
	return sortElem{num: -n}, nil
}

func compareElems(a, b sortElem, desc bool) int {
	if desc {
		if a.isString || b.isString {
			switch {
			case a.str < b.str:
				return -1
			case a.str > b.str:
				return 1
			default:
				return 0
			}
		}
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	}
	if a.asc == b.asc {
		return 0
	}
	if a.asc.Less(b.asc) {
		return -1
	}
	return 1
}

// sortRecords performs spec.md §4.7's stable multi-key sort in place.
// The single-key case delegates to the platform's stable sort directly,
// as the spec directs; the multi-key case precomputes one sortElem per
// ordering per record, then compares element-wise.
func sortRecords(records []map[string]any, orderings []Ordering) error {
	if len(orderings) == 0 {
		return nil
	}
	if len(orderings) == 1 {
		// Single-key path: plain ascending coerced comparison, reversed
		// for descending — spec.md §4.7 delegates to the platform's
		// stable sort with a reverse flag here, not to the unicode
		// complement / negation conversions the multi-key path below
		// uses. Comparing (not reversing the output) keeps equal-key
		// records in their original relative order either way.
		o := orderings[0]
		var sortErr error
		sort.SliceStable(records, func(i, j int) bool {
			if sortErr != nil {
				return false
			}
			vi := records[i][o.attr.key]
			vj := records[j][o.attr.key]
			if vi == nil {
				vi = int64(0)
			}
			if vj == nil {
				vj = int64(0)
			}
			ci, err := coerceField(vi, o.attr.key)
			if err != nil {
				sortErr = err
				return false
			}
			cj, err := coerceField(vj, o.attr.key)
			if err != nil {
				sortErr = err
				return false
			}
			if o.desc {
				return cj.Less(ci)
			}
			return ci.Less(cj)
		})
		return sortErr
	}

	keys := make([][]sortElem, len(records))
	for i, r := range records {
		row := make([]sortElem, len(orderings))
		for j, o := range orderings {
			el, err := buildSortElem(r[o.attr.key], o)
			if err != nil {
				return err
			}
			row[j] = el
		}
		keys[i] = row
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for j, o := range orderings {
			if c := compareElems(ka[j], kb[j], o.desc); c != 0 {
				return c < 0
			}
		}
		return false
	})

	sorted := make([]map[string]any, len(records))
	for i, id := range idx {
		sorted[i] = records[id]
	}
	copy(records, sorted)
	return nil
}
