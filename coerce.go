package store

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgabriele/store/internal/omap"
)

// Kind tags the shape a Coerced value holds, giving mixed-type fields
// (no schema enforcement, per spec) a well-defined cross-kind order.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTime
	KindDuration
	KindDate
	KindComposite
)

// Coerced is the concrete realization of the spec's "coerced key": a
// small comparable struct usable both as an omap.Key (ordered-map
// ordering) and, because all its fields are comparable, directly as a Go
// map key for posting-set lookups.
type Coerced struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    bool
}

// Less implements omap.Key. Cross-kind comparisons order by Kind first,
// so fields that mix types across records still sort deterministically.
func (c Coerced) Less(other omap.Key) bool {
	o := other.(Coerced)
	if c.Kind != o.Kind {
		return c.Kind < o.Kind
	}
	switch c.Kind {
	case KindNull:
		return false
	case KindBool:
		return !c.B && o.B
	case KindInt, KindDuration, KindDate, KindTime:
		return c.I < o.I
	case KindFloat:
		return c.F < o.F
	default: // KindString, KindBytes, KindComposite
		return c.S < o.S
	}
}

// Coerce maps an arbitrary field value to its Coerced form, per §4.2's
// table: scalars pass through, mappings become sorted (key, coerce(v))
// sequences, sets become sorted coerced sequences, and ordered sequences
// keep their element order. Anything else fails with NotHashable.
func Coerce(value any) (Coerced, error) {
	return coerceField(value, "")
}

func coerceField(value any, field string) (Coerced, error) {
	switch v := value.(type) {
	case nil:
		return Coerced{Kind: KindNull}, nil
	case bool:
		return Coerced{Kind: KindBool, B: v}, nil
	case int:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case int8:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case int16:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case int32:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case int64:
		return Coerced{Kind: KindInt, I: v}, nil
	case uint:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case uint8:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case uint16:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case uint32:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case uint64:
		return Coerced{Kind: KindInt, I: int64(v)}, nil
	case float32:
		return Coerced{Kind: KindFloat, F: float64(v)}, nil
	case float64:
		return Coerced{Kind: KindFloat, F: v}, nil
	case string:
		return Coerced{Kind: KindString, S: v}, nil
	case []byte:
		return Coerced{Kind: KindBytes, S: string(v)}, nil
	case time.Time:
		return Coerced{Kind: KindTime, I: v.UnixNano()}, nil
	case time.Duration:
		return Coerced{Kind: KindDuration, I: int64(v)}, nil
	case Date:
		return Coerced{Kind: KindDate, I: v.Ordinal()}, nil
	case Seq:
		return coerceSeq(v, field)
	case Set:
		return coerceSet(v, field)
	case map[string]any:
		return coerceStringMap(v, field)
	case map[any]any:
		return coerceAnyMap(v, field)
	default:
		return Coerced{}, &NotHashable{Value: value, Field: field}
	}
}

// encode renders a Coerced value into a canonical, order-preserving
// string, used to build the S field of composite Coerced values so that
// nested maps/sets/sequences remain both comparable and hashable.
func encode(c Coerced) string {
	switch c.Kind {
	case KindNull:
		return "n:"
	case KindBool:
		if c.B {
			return "b:1"
		}
		return "b:0"
	case KindInt, KindDuration, KindDate, KindTime:
		return "i:" + strconv.FormatInt(c.I, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(c.F, 'g', -1, 64)
	case KindString:
		return "s:" + c.S
	case KindBytes:
		return "y:" + c.S
	default: // KindComposite
		return "x:" + c.S
	}
}

func coerceStringMap(m map[string]any, field string) (Coerced, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for _, k := range keys {
		cv, err := coerceField(m[k], field)
		if err != nil {
			return Coerced{}, err
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(encode(cv))
		b.WriteByte(',')
	}
	b.WriteByte('}')
	return Coerced{Kind: KindComposite, S: b.String()}, nil
}

func coerceAnyMap(m map[any]any, field string) (Coerced, error) {
	type pair struct {
		key     string
		encoded string
	}
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		ck, err := coerceField(k, field)
		if err != nil {
			return Coerced{}, err
		}
		cv, err := coerceField(v, field)
		if err != nil {
			return Coerced{}, err
		}
		pairs = append(pairs, pair{key: encode(ck), encoded: encode(cv)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	b.WriteByte('{')
	for _, p := range pairs {
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.encoded)
		b.WriteByte(',')
	}
	b.WriteByte('}')
	return Coerced{Kind: KindComposite, S: b.String()}, nil
}

func coerceSet(s Set, field string) (Coerced, error) {
	encoded := make([]string, 0, len(s))
	for _, v := range s {
		cv, err := coerceField(v, field)
		if err != nil {
			return Coerced{}, err
		}
		encoded = append(encoded, encode(cv))
	}
	sort.Strings(encoded)

	var b strings.Builder
	b.WriteByte('[')
	for _, e := range encoded {
		b.WriteString(e)
		b.WriteByte(',')
	}
	b.WriteByte(']')
	return Coerced{Kind: KindComposite, S: b.String()}, nil
}

func coerceSeq(s Seq, field string) (Coerced, error) {
	var b strings.Builder
	b.WriteByte('(')
	for _, v := range s {
		cv, err := coerceField(v, field)
		if err != nil {
			return Coerced{}, err
		}
		b.WriteString(encode(cv))
		b.WriteByte(',')
	}
	b.WriteByte(')')
	return Coerced{Kind: KindComposite, S: b.String()}, nil
}
