package store

// opCode tags a Predicate node per spec.md §4.4's operator set.
type opCode int

const (
	opEQ opCode = iota
	opNE
	opLT
	opLE
	opGT
	opGE
	opIN
	opNOTIN
	opAND
	opOR
)

// SymbolicAttribute is a placeholder for a field name within a query
// builder; operating on it produces Predicate or Ordering nodes (spec.md
// §4.1). Go has no operator overloading, so the comparison operators
// from the Python original (`<`, `==`, ...) become explicit methods, per
// spec.md §9's design note.
type SymbolicAttribute struct {
	key string
}

// Key returns the attribute's field name.
func (a *SymbolicAttribute) Key() string { return a.key }

func (a *SymbolicAttribute) Eq(value any) *Predicate { return newComparison(opEQ, a, value) }
func (a *SymbolicAttribute) Ne(value any) *Predicate { return newComparison(opNE, a, value) }
func (a *SymbolicAttribute) Lt(value any) *Predicate { return newComparison(opLT, a, value) }
func (a *SymbolicAttribute) Le(value any) *Predicate { return newComparison(opLE, a, value) }
func (a *SymbolicAttribute) Gt(value any) *Predicate { return newComparison(opGT, a, value) }
func (a *SymbolicAttribute) Ge(value any) *Predicate { return newComparison(opGE, a, value) }

// OneOf builds a membership comparison (IN).
func (a *SymbolicAttribute) OneOf(values ...any) *Predicate {
	return newMembership(opIN, a, values)
}

// NotIn builds the negated membership comparison (NOT_IN).
func (a *SymbolicAttribute) NotIn(values ...any) *Predicate {
	return newMembership(opNOTIN, a, values)
}

// Asc builds an ascending Ordering descriptor for this attribute.
func (a *SymbolicAttribute) Asc() Ordering { return Ordering{attr: a, desc: false} }

// Desc builds a descending Ordering descriptor for this attribute.
func (a *SymbolicAttribute) Desc() Ordering { return Ordering{attr: a, desc: true} }

// Symbol produces SymbolicAttributes keyed by field name, memoized per
// symbol (spec.md §4.1) so repeated access to the same field returns the
// same pointer.
type Symbol struct {
	attrs map[string]*SymbolicAttribute
}

// NewSymbol creates an empty Symbol.
func NewSymbol() *Symbol {
	return &Symbol{attrs: make(map[string]*SymbolicAttribute)}
}

// Field returns the memoized SymbolicAttribute for key, creating it on
// first access.
func (s *Symbol) Field(key string) *SymbolicAttribute {
	if a, ok := s.attrs[key]; ok {
		return a
	}
	a := &SymbolicAttribute{key: key}
	s.attrs[key] = a
	return a
}

// Ordering pairs a field attribute with a sort direction, produced by
// SymbolicAttribute.Asc/Desc or by OrderByField from a bare field name.
type Ordering struct {
	attr *SymbolicAttribute
	desc bool
}

// OrderByField builds an ascending Ordering from a bare field name,
// mirroring Query.order_by's string-argument form in the original.
func OrderByField(field string) Ordering {
	return Ordering{attr: &SymbolicAttribute{key: field}, desc: false}
}
