// Package typenorm supplies the concrete rewrite rules that reduce a
// semantic type term to disjunctive-free conjunctive normal form:
// an intersection of unions of literals, where a literal is a positive or
// negative atomic constructor. internal/subtype drives these rules through
// internal/rewrite before deciding emptiness.
package typenorm

import (
	"sort"

	"kanso/internal/rewrite"
	"kanso/internal/termgraph"
)

// structural is the set of constructor kinds that denote disjoint sets of
// values from one another: two terms built from different members of this
// set can never share a value (rule 8, "disjoint-constructor conjunction").
var structural = map[termgraph.Kind]bool{
	termgraph.Null:      true,
	termgraph.Bool:      true,
	termgraph.Int:       true,
	termgraph.Real:      true,
	termgraph.String:    true,
	termgraph.Array:     true,
	termgraph.Set:       true,
	termgraph.List:      true,
	termgraph.Record:    true,
	termgraph.Tuple:     true,
	termgraph.Reference: true,
	termgraph.Function:  true,
	termgraph.Method:    true,
	termgraph.Property:  true,
}

// Rules returns the full rule set, in the order internal/rewrite should
// prefer trying them (the set is confluent regardless of order; the order
// here only affects how many steps a given derivation takes).
func Rules() []rewrite.Rule {
	return []rewrite.Rule{
		absorb,
		selfCycle,
		doubleNegation,
		deMorgan,
		distribute,
		sameConstructorConjunction,
		disjointConstructorConjunction,
		canonicalize,
	}
}

// absorb implements rule 1: T∪Void→T; T∪Any→Any; T∩Void→Void; T∩Any→T.
func absorb(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if len(s.Children) != 2 {
		return 0, false
	}
	l, r := g.Get(s.Children[0]), g.Get(s.Children[1])
	switch s.Kind {
	case termgraph.Union:
		if l.Kind == termgraph.Void {
			return s.Children[1], true
		}
		if r.Kind == termgraph.Void {
			return s.Children[0], true
		}
		if l.Kind == termgraph.Any || r.Kind == termgraph.Any {
			return anyIdx(g), true
		}
	case termgraph.Intersection:
		if l.Kind == termgraph.Void || r.Kind == termgraph.Void {
			return voidIdx(g), true
		}
		if l.Kind == termgraph.Any {
			return s.Children[1], true
		}
		if r.Kind == termgraph.Any {
			return s.Children[0], true
		}
	}
	return 0, false
}

// selfCycle implements rule 2 for structurally self-referential unions and
// intersections: X := T∪X collapses to T, and X := T∩X collapses to Void.
// Nominal recursion is unfolded and memoized by internal/subtype itself;
// this rule only fires on a literal structural self-loop in the graph.
func selfCycle(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if len(s.Children) != 2 {
		return 0, false
	}
	switch s.Kind {
	case termgraph.Union:
		if s.Children[0] == idx {
			return s.Children[1], true
		}
		if s.Children[1] == idx {
			return s.Children[0], true
		}
	case termgraph.Intersection:
		if s.Children[0] == idx || s.Children[1] == idx {
			return voidIdx(g), true
		}
	}
	return 0, false
}

// doubleNegation implements rule 3: ¬¬T→T; ¬Any→Void; ¬Void→Any.
func doubleNegation(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Kind != termgraph.Not || len(s.Children) != 1 {
		return 0, false
	}
	inner := g.Get(s.Children[0])
	switch inner.Kind {
	case termgraph.Not:
		return inner.Children[0], true
	case termgraph.Any:
		return voidIdx(g), true
	case termgraph.Void:
		return anyIdx(g), true
	}
	return 0, false
}

// deMorgan implements rule 4: ¬(T1∪T2)→¬T1∩¬T2; ¬(T1∩T2)→¬T1∪¬T2.
func deMorgan(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Kind != termgraph.Not || len(s.Children) != 1 {
		return 0, false
	}
	inner := g.Get(s.Children[0])
	if len(inner.Children) != 2 {
		return 0, false
	}
	notL := g.Add(termgraph.State{Kind: termgraph.Not, Children: []int{inner.Children[0]}})
	notR := g.Add(termgraph.State{Kind: termgraph.Not, Children: []int{inner.Children[1]}})
	switch inner.Kind {
	case termgraph.Union:
		return g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{notL, notR}}), true
	case termgraph.Intersection:
		return g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{notL, notR}}), true
	}
	return 0, false
}

// distribute implements rule 6: T1∩(T2∪T3) → (T1∩T2)∪(T1∩T3), tried on
// either operand order.
func distribute(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Kind != termgraph.Intersection || len(s.Children) != 2 {
		return 0, false
	}
	l, r := g.Get(s.Children[0]), g.Get(s.Children[1])
	if r.Kind == termgraph.Union && len(r.Children) == 2 {
		left := g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{s.Children[0], r.Children[0]}})
		right := g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{s.Children[0], r.Children[1]}})
		return g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{left, right}}), true
	}
	if l.Kind == termgraph.Union && len(l.Children) == 2 {
		left := g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{l.Children[0], s.Children[1]}})
		right := g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{l.Children[1], s.Children[1]}})
		return g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{left, right}}), true
	}
	return 0, false
}

// sameConstructorConjunction implements rule 7: intersecting two terms
// built from the same constructor pushes the intersection to the element
// positions instead of leaving it at the top.
func sameConstructorConjunction(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Kind != termgraph.Intersection || len(s.Children) != 2 {
		return 0, false
	}
	l, r := g.Get(s.Children[0]), g.Get(s.Children[1])

	// ¬[T1] ∩ ¬[T2] → ¬[T1 ∪ T2]
	if l.Kind == termgraph.Not && r.Kind == termgraph.Not {
		il, ir := g.Get(l.Children[0]), g.Get(r.Children[0])
		if il.Kind == ir.Kind && structural[il.Kind] && elementArity(il.Kind) == 1 && elementArity(ir.Kind) == 1 {
			union := g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{il.Children[0], ir.Children[0]}})
			wrapped := g.Add(termgraph.State{Kind: il.Kind, Children: []int{union}})
			return g.Add(termgraph.State{Kind: termgraph.Not, Children: []int{wrapped}}), true
		}
		return 0, false
	}

	if l.Kind != r.Kind || !structural[l.Kind] {
		return 0, false
	}

	switch l.Kind {
	case termgraph.Array, termgraph.Set, termgraph.List:
		if len(l.Children) != 1 || len(r.Children) != 1 {
			return 0, false
		}
		elem := g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{l.Children[0], r.Children[0]}})
		return g.Add(termgraph.State{Kind: l.Kind, Children: []int{elem}}), true
	case termgraph.Tuple:
		if len(l.Children) != len(r.Children) {
			return 0, false
		}
		children := make([]int, len(l.Children))
		for i := range l.Children {
			children[i] = g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{l.Children[i], r.Children[i]}})
		}
		return g.Add(termgraph.State{Kind: termgraph.Tuple, Children: children}), true
	case termgraph.Record:
		return conjoinRecords(g, l, r)
	}
	return 0, false
}

// conjoinRecords implements the record case of rule 7: same field set
// conjoins field-wise; disjoint required fields produce the union of
// fields, each field keeping the type from whichever side declares it (or
// the intersection of both, when both declare it).
func conjoinRecords(g *termgraph.Graph, l, r termgraph.State) (int, bool) {
	lp, lok := l.Payload.(termgraph.RecordPayload)
	rp, rok := r.Payload.(termgraph.RecordPayload)
	if !lok || !rok {
		return 0, false
	}
	lFields := fieldIndex(lp.Fields, l.Children)
	rFields := fieldIndex(rp.Fields, r.Children)

	allNames := map[string]bool{}
	for _, f := range lp.Fields {
		allNames[f] = true
	}
	for _, f := range rp.Fields {
		allNames[f] = true
	}
	names := make([]string, 0, len(allNames))
	for n := range allNames {
		names = append(names, n)
	}
	sort.Strings(names)

	fields := make([]string, 0, len(names))
	children := make([]int, 0, len(names))
	for _, n := range names {
		li, lhas := lFields[n]
		ri, rhas := rFields[n]
		var t int
		switch {
		case lhas && rhas:
			t = g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{li, ri}})
		case lhas:
			t = li
		default:
			t = ri
		}
		fields = append(fields, n)
		children = append(children, t)
	}
	payload := termgraph.RecordPayload{Fields: fields, Open: lp.Open && rp.Open}
	return g.Add(termgraph.State{Kind: termgraph.Record, Children: children, Payload: payload}), true
}

func fieldIndex(names []string, children []int) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		if i < len(children) {
			m[n] = children[i]
		}
	}
	return m
}

// disjointConstructorConjunction implements rule 8: intersecting two terms
// built from different structural constructors is Void.
func disjointConstructorConjunction(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Kind != termgraph.Intersection || len(s.Children) != 2 {
		return 0, false
	}
	l, r := g.Get(s.Children[0]), g.Get(s.Children[1])
	if l.Kind == termgraph.Not || r.Kind == termgraph.Not {
		return 0, false
	}
	if structural[l.Kind] && structural[r.Kind] && l.Kind != r.Kind {
		return voidIdx(g), true
	}
	return 0, false
}

// canonicalize implements rule 9: once both children of a Union or
// Intersection are themselves deterministic, order them lexicographically
// by index and mark the node deterministic so it participates in
// hash-consing. This runs last so it only canonicalizes nodes the earlier
// rules are done rewriting.
func canonicalize(idx int, g *termgraph.Graph) (int, bool) {
	s := g.Get(idx)
	if s.Deterministic {
		return 0, false
	}
	if s.Kind != termgraph.Union && s.Kind != termgraph.Intersection {
		if allChildrenDeterministic(g, s.Children) {
			return g.Add(termgraph.State{Kind: s.Kind, Children: s.Children, Payload: s.Payload, Deterministic: true}), true
		}
		return 0, false
	}
	if len(s.Children) != 2 {
		return 0, false
	}
	l, r := g.Get(s.Children[0]), g.Get(s.Children[1])
	if !l.Deterministic || !r.Deterministic {
		return 0, false
	}
	a, b := s.Children[0], s.Children[1]
	if a > b {
		a, b = b, a
	}
	return g.Add(termgraph.State{Kind: s.Kind, Children: []int{a, b}, Deterministic: true}), true
}

// allChildrenDeterministic reports whether every child index is itself a
// deterministic state, making the parent eligible for its own canonical
// form once its own structure is otherwise stable.
func allChildrenDeterministic(g *termgraph.Graph, children []int) bool {
	for _, c := range children {
		if !g.Get(c).Deterministic {
			return false
		}
	}
	return true
}

func elementArity(k termgraph.Kind) int {
	switch k {
	case termgraph.Array, termgraph.Set, termgraph.List:
		return 1
	default:
		return 0
	}
}

func voidIdx(g *termgraph.Graph) int {
	return g.Add(termgraph.State{Kind: termgraph.Void, Deterministic: true})
}

func anyIdx(g *termgraph.Graph) int {
	return g.Add(termgraph.State{Kind: termgraph.Any, Deterministic: true})
}

// Normalize runs the full rule set to fixpoint (or until budget is
// exhausted) starting from root, returning the normalized root and whether
// normalization completed.
func Normalize(g *termgraph.Graph, root int, budget int) (int, bool) {
	eng := rewrite.New(Rules()...)
	newRoot, result := eng.Run(g, root, budget)
	return newRoot, result.ReachedFixed
}
