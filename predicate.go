package store

// Predicate is a node in the boolean tree spec.md §4.4 describes: either
// a Comparison (op + attribute + value(s)) or a Boolean node (AND/OR
// over two child predicates). Coercion of the right-hand value happens
// at evaluation time, against the store being queried, rather than at
// construction time — this keeps the fluent builder (SymbolicAttribute's
// Eq/Lt/...) free of errors to propagate, matching Go's preference for
// deferring fallible work to the call that can actually report it.
type Predicate struct {
	op     opCode
	attr   *SymbolicAttribute
	value  any
	values []any
	lhs    *Predicate
	rhs    *Predicate
}

func newComparison(op opCode, attr *SymbolicAttribute, value any) *Predicate {
	return &Predicate{op: op, attr: attr, value: value}
}

func newMembership(op opCode, attr *SymbolicAttribute, values []any) *Predicate {
	return &Predicate{op: op, attr: attr, values: values}
}

// And combines two predicates with AND, replacing the `&` operator
// overload from the Python original (spec.md §9).
func (p *Predicate) And(other *Predicate) *Predicate {
	if other == nil {
		return p
	}
	return &Predicate{op: opAND, lhs: p, rhs: other}
}

// Or combines two predicates with OR, replacing the `|` operator
// overload from the Python original.
func (p *Predicate) Or(other *Predicate) *Predicate {
	if other == nil {
		return p
	}
	return &Predicate{op: opOR, lhs: p, rhs: other}
}

// evaluatePredicate implements spec.md §4.4's evaluation table: a nil
// predicate matches every primary key (allPKeys), comparisons resolve
// through the index manager's posting sets, and AND/OR recurse with
// AND short-circuiting when its left side is already empty.
func evaluatePredicate(im *indexManager, allPKeys func() postingSet, p *Predicate) (postingSet, error) {
	if p == nil {
		return allPKeys(), nil
	}

	switch p.op {
	case opAND:
		lhs, err := evaluatePredicate(im, allPKeys, p.lhs)
		if err != nil {
			return nil, err
		}
		if len(lhs) == 0 {
			return postingSet{}, nil
		}
		rhs, err := evaluatePredicate(im, allPKeys, p.rhs)
		if err != nil {
			return nil, err
		}
		return intersectPostings(lhs, rhs), nil

	case opOR:
		lhs, err := evaluatePredicate(im, allPKeys, p.lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := evaluatePredicate(im, allPKeys, p.rhs)
		if err != nil {
			return nil, err
		}
		return unionPostings(lhs, rhs), nil

	case opIN, opNOTIN:
		values := make(map[Coerced]struct{}, len(p.values))
		for _, v := range p.values {
			c, err := coerceField(v, p.attr.key)
			if err != nil {
				return nil, err
			}
			values[c] = struct{}{}
		}
		if p.op == opIN {
			return im.postingsIn(p.attr.key, values), nil
		}
		return im.postingsNotIn(p.attr.key, values), nil
	}

	c, err := coerceField(p.value, p.attr.key)
	if err != nil {
		return nil, err
	}
	switch p.op {
	case opEQ:
		return im.posting(p.attr.key, c), nil
	case opNE:
		return im.postingsExcept(p.attr.key, c), nil
	case opLT:
		return im.postingsLess(p.attr.key, c, false), nil
	case opLE:
		return im.postingsLess(p.attr.key, c, true), nil
	case opGT:
		return im.postingsGreater(p.attr.key, c, false), nil
	case opGE:
		return im.postingsGreater(p.attr.key, c, true), nil
	}
	return postingSet{}, nil
}
