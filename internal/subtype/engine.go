// Package subtype implements the semantic emptiness and subtype decision
// core: isVoid and isSubtype over the type algebra built by
// internal/termgraph, normalized on demand by internal/typenorm.
package subtype

import (
	"fmt"
	"sort"

	"kanso/internal/errors"
	"kanso/internal/termgraph"
	"kanso/internal/typenorm"
)

// NominalResolver unfolds a named type into its declared semantic type.
// internal/namespace supplies the concrete implementation; subtype depends
// only on this structural interface to avoid an import cycle.
type NominalResolver interface {
	Unfold(name string, g *termgraph.Graph) (int, error)
}

// LifetimeRelation is the partial order over lifetime identifiers consulted
// by reference subtyping. internal/lifetime supplies the implementation.
type LifetimeRelation interface {
	Outlives(a, b string) bool
}

// Env bundles the collaborators and budget an Engine needs. A single Env is
// typically shared across the assertions checked within one verification
// task; RecursionBudget limits how deep nominal unfolding is allowed to go
// before the engine gives up and reports Indeterminate rather than looping.
type Env struct {
	Resolver        NominalResolver
	Lifetimes       LifetimeRelation
	RecursionBudget int // 0 means unlimited
	RewriteBudget   int // passed through to typenorm.Normalize on unfold
}

// side is one operand's sign and closing polarity at a given point in the
// decision procedure. The four canonical combinations correspond to the
// spec's (sign x polarity) state: (+,max), (+,min), (-,max), (-,min).
type side struct {
	sign bool // true = positive (interpret normally), false = negated
	max  bool // true = maximise open/nominal approximation, false = minimise
}

func (s side) flip() side { return side{sign: !s.sign, max: s.max} }

var posMax = side{sign: true, max: true}
var negMax = side{sign: false, max: true}

// memoKey identifies one (lhs, rhs) pair under their respective states, the
// unit of memoization needed to terminate on cyclic (recursive nominal)
// term graphs.
type memoKey struct {
	l, r       int
	lSign, rSign bool
	lMax, rMax   bool
}

// Engine decides isVoid/isSubtype queries over one term graph. An Engine is
// not safe for concurrent use: callers running verification tasks in
// parallel (internal/verify.Pool) construct one Engine per task, since each
// task owns its own term graph.
type Engine struct {
	g   *termgraph.Graph
	env Env

	memo map[memoKey]bool
	// nominalDepth counts in-flight unfoldings per (name,sign) pair so a
	// cyclic nominal definition is bounded by env.RecursionBudget instead
	// of recursing forever.
	nominalDepth map[string]int
	budgetHit    bool
}

// New returns an engine operating over g with the given collaborators.
func New(g *termgraph.Graph, env Env) *Engine {
	return &Engine{g: g, env: env}
}

// IsVoid reports whether t denotes the empty set.
func (e *Engine) IsVoid(t int) (bool, error) {
	e.reset()
	return e.isVoidAt(t, posMax, t, posMax, 0)
}

// IsSubtype reports whether a is a subtype of b: no value inhabits a ∩ ¬b.
func (e *Engine) IsSubtype(a, b int) (bool, error) {
	e.reset()
	return e.isVoidAt(a, posMax, b, negMax, 0)
}

func (e *Engine) reset() {
	e.memo = make(map[memoKey]bool)
	e.nominalDepth = make(map[string]int)
	e.budgetHit = false
}

// BudgetExhausted reports whether the most recent IsVoid/IsSubtype call hit
// the recursion budget, or the rewrite budget while normalizing an
// unfolded nominal. Callers (internal/verify) use this to decide
// whether to report an Indeterminate diagnostic instead of trusting the
// boolean result, since a budget-exhausted answer defaults to "not void"
// for soundness but is not a proof.
func (e *Engine) BudgetExhausted() bool {
	return e.budgetHit
}

// IsContractive reports whether name's recursive unfolding is guarded: a
// nominal is contractive when every cycle back to itself passes through at
// least one structural constructor (Array, Record, Reference, ...) rather
// than unfolding directly to itself or to a bare union of nominals. Only
// contractive nominals are safe to use in the engine, since a
// non-contractive one (type A = A, or type A = B; type B = A) has no
// canonical normal form for the memo to converge on structurally; the
// engine still terminates on one via RecursionBudget, but isContractive
// lets a front end reject such a definition up front with a clear error
// instead of relying on budget exhaustion.
func (e *Engine) IsContractive(name string, t int) bool {
	seen := map[string]bool{}
	return e.contractive(name, t, seen, true)
}

func (e *Engine) contractive(name string, t int, seen map[string]bool, atTop bool) bool {
	s := e.g.Get(t)
	switch s.Kind {
	case termgraph.Nominal:
		other, _ := s.Payload.(string)
		if other == name {
			return !atTop
		}
		if seen[other] {
			return true
		}
		if e.env.Resolver == nil {
			return true
		}
		unfolded, err := e.env.Resolver.Unfold(other, e.g)
		if err != nil {
			return true
		}
		seen[other] = true
		return e.contractive(name, unfolded, seen, atTop)
	case termgraph.Union, termgraph.Intersection, termgraph.Difference:
		return e.contractive(name, s.Children[0], seen, atTop) && e.contractive(name, s.Children[1], seen, atTop)
	case termgraph.Not:
		return e.contractive(name, s.Children[0], seen, atTop)
	default:
		// Any structural constructor or leaf guards the reference: a cycle
		// reached through here no longer counts as "at top".
		for _, c := range s.Children {
			if !e.contractive(name, c, seen, false) {
				return false
			}
		}
		return true
	}
}

func (e *Engine) isVoidAt(l int, sl side, r int, sr side, depth int) (bool, error) {
	key := memoKey{l: l, r: r, lSign: sl.sign, rSign: sr.sign, lMax: sl.max, rMax: sr.max}
	if v, ok := e.memo[key]; ok {
		return v, nil
	}
	// Resolving an in-flight (pending) pair as "not void" is the sound
	// default: it can only cost completeness (an unproven assertion), never
	// soundness (a false claim accepted).
	e.memo[key] = false

	v, err := e.dispatch(l, sl, r, sr, depth)
	if err != nil {
		delete(e.memo, key)
		return false, err
	}
	e.memo[key] = v
	return v, nil
}

// soloVoid tests whether t alone (under sign/max) denotes the empty set,
// i.e. isVoidAt(t,s,t,s). Used by the Void/Any absorption rules and the
// Array degenerate-emptiness guard.
func (e *Engine) soloVoid(t int, s side, depth int) (bool, error) {
	return e.isVoidAt(t, s, t, s, depth)
}

func (e *Engine) dispatch(l int, sl side, r int, sr side, depth int) (bool, error) {
	ls, rs := e.g.Get(l), e.g.Get(r)

	// Logical connectives decompose first, on whichever side carries one,
	// threading the other side through unchanged.
	if ls.Kind == termgraph.Not {
		return e.isVoidAt(ls.Children[0], sl.flip(), r, sr, depth)
	}
	if rs.Kind == termgraph.Not {
		return e.isVoidAt(l, sl, rs.Children[0], sr.flip(), depth)
	}
	if ls.Kind == termgraph.Union {
		return e.combine(sl.sign, func() (bool, error) { return e.isVoidAt(ls.Children[0], sl, r, sr, depth) },
			func() (bool, error) { return e.isVoidAt(ls.Children[1], sl, r, sr, depth) })
	}
	if rs.Kind == termgraph.Union {
		return e.combine(sr.sign, func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[0], sr, depth) },
			func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[1], sr, depth) })
	}
	if ls.Kind == termgraph.Intersection {
		return e.combine(!sl.sign, func() (bool, error) { return e.isVoidAt(ls.Children[0], sl, r, sr, depth) },
			func() (bool, error) { return e.isVoidAt(ls.Children[1], sl, r, sr, depth) })
	}
	if rs.Kind == termgraph.Intersection {
		return e.combine(!sr.sign, func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[0], sr, depth) },
			func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[1], sr, depth) })
	}
	if ls.Kind == termgraph.Difference {
		return e.combine(sl.sign, func() (bool, error) { return e.isVoidAt(ls.Children[0], sl, r, sr, depth) },
			func() (bool, error) { return e.isVoidAt(ls.Children[1], sl.flip(), r, sr, depth) })
	}
	if rs.Kind == termgraph.Difference {
		return e.combine(sr.sign, func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[0], sr, depth) },
			func() (bool, error) { return e.isVoidAt(l, sl, rs.Children[1], sr.flip(), depth) })
	}

	if ls.Kind == termgraph.Nominal {
		return e.unfoldAndRecurse(ls, sl, r, sr, depth, true)
	}
	if rs.Kind == termgraph.Nominal {
		return e.unfoldAndRecurse(rs, sr, l, sl, depth, false)
	}

	// Void/Any absorb: whichever side they appear on, they reduce the
	// problem to the voidness of the other side alone.
	if empty, universal, ok := absorbing(ls.Kind, sl.sign); ok {
		if empty {
			return true, nil
		}
		if universal {
			return e.soloVoid(r, sr, depth)
		}
	}
	if empty, universal, ok := absorbing(rs.Kind, sr.sign); ok {
		if empty {
			return true, nil
		}
		if universal {
			return e.soloVoid(l, sl, depth)
		}
	}

	// An Equals atom over two structurally identical operands always holds,
	// so it absorbs like Any: empty under a negative sign, universal under
	// a positive one.
	if ls.Kind == termgraph.Equals && len(ls.Children) == 2 && e.g.Equal(ls.Children[0], ls.Children[1]) {
		if !sl.sign {
			return true, nil
		}
		return e.soloVoid(r, sr, depth)
	}
	if rs.Kind == termgraph.Equals && len(rs.Children) == 2 && e.g.Equal(rs.Children[0], rs.Children[1]) {
		if !sr.sign {
			return true, nil
		}
		return e.soloVoid(l, sl, depth)
	}

	// Identity leaves -- relation atoms (Equals, LessThan, ElementOf,
	// SubSet), Var, and the verification-condition value literals
	// (NumValue, StrValue, BoolValue, NullValue) -- carry a payload or
	// children that distinguish one instance from another of the same
	// Kind: Equals(x,5) and Equals(y,10) are unrelated propositions that
	// both happen to be Kind Equals, "x" and "y" are unrelated Vars, and
	// NumValue(5) and NumValue(7) are unrelated constants. This is unlike
	// a true static type leaf (Int, Bool, Null, String, Real), where the
	// Kind alone fully determines identity because there is exactly one
	// such type. leafPair's generic same-Kind rule is only correct for
	// the latter, so identity leaves are resolved here first, by
	// structural equality rather than Kind alone: two are the same atom
	// only when e.g.Equal holds, never merely because both share a Kind.
	// Anything else is treated conservatively as "not void" rather than
	// guessed at, since deciding satisfiability of arbitrary arithmetic
	// or relational facts is outside the semantic-subtyping decision
	// procedure this engine implements.
	if isIdentityLeaf(ls.Kind) && isIdentityLeaf(rs.Kind) {
		if ls.Kind == rs.Kind && e.g.Equal(l, r) {
			if sl.sign != sr.sign {
				return true, nil
			}
			return false, nil
		}
		return false, nil
	}

	switch {
	case ls.Kind == termgraph.Array && rs.Kind == termgraph.Array:
		return e.arrayLike(ls, sl, rs, sr, depth)
	case ls.Kind == termgraph.Set && rs.Kind == termgraph.Set:
		return e.arrayLike(ls, sl, rs, sr, depth)
	case ls.Kind == termgraph.List && rs.Kind == termgraph.List:
		return e.arrayLike(ls, sl, rs, sr, depth)
	case ls.Kind == termgraph.Record && rs.Kind == termgraph.Record:
		return e.recordPair(ls, sl, rs, sr, depth)
	case ls.Kind == termgraph.Reference && rs.Kind == termgraph.Reference:
		return e.referencePair(ls, sl, rs, sr, depth)
	case ls.Kind == termgraph.Tuple && rs.Kind == termgraph.Tuple:
		return e.tuplePair(ls, sl, rs, sr, depth)
	case isInvocable(ls.Kind) && isInvocable(rs.Kind) && ls.Kind == rs.Kind:
		return e.invocablePair(ls, sl, rs, sr, depth)
	}

	return e.leafPair(ls.Kind, sl, rs.Kind, sr), nil
}

func (e *Engine) combine(and bool, a, b func() (bool, error)) (bool, error) {
	va, err := a()
	if err != nil {
		return false, err
	}
	if and && !va {
		return false, nil
	}
	if !and && va {
		return true, nil
	}
	vb, err := b()
	if err != nil {
		return false, err
	}
	if and {
		return va && vb, nil
	}
	return va || vb, nil
}

// absorbing reports whether kind is Void or Any, and if so whether the
// operand (under sign) denotes the empty set or the universal set.
func absorbing(kind termgraph.Kind, sign bool) (empty, universal, ok bool) {
	switch kind {
	case termgraph.Void:
		return sign, !sign, true
	case termgraph.Any:
		return !sign, sign, true
	}
	return false, false, false
}

func (e *Engine) unfoldAndRecurse(nominal termgraph.State, sn side, other int, so side, depth int, nominalIsLeft bool) (bool, error) {
	name, _ := nominal.Payload.(string)
	depthKey := fmt.Sprintf("%s#%v", name, sn.sign)
	if e.env.RecursionBudget > 0 && e.nominalDepth[depthKey] >= e.env.RecursionBudget {
		e.budgetHit = true
		return false, nil
	}
	if e.env.Resolver == nil {
		return false, &errors.ResolutionError{Name: name}
	}
	unfolded, err := e.env.Resolver.Unfold(name, e.g)
	if err != nil {
		return false, err
	}
	unfolded, done := typenorm.Normalize(e.g, unfolded, e.env.RewriteBudget)
	if !done {
		e.budgetHit = true
	}

	e.nominalDepth[depthKey]++
	defer func() { e.nominalDepth[depthKey]-- }()

	if nominalIsLeft {
		return e.isVoidAt(unfolded, sn, other, so, depth+1)
	}
	return e.isVoidAt(other, so, unfolded, sn, depth+1)
}

// arrayLike implements the Array/Array emptiness rule, reused for Set
// and List: structurally identical single-element constructors.
func (e *Engine) arrayLike(ls termgraph.State, sl side, rs termgraph.State, sr side, depth int) (bool, error) {
	el, er := ls.Children[0], rs.Children[0]
	switch {
	case sl.sign && sr.sign:
		inter, err := e.isVoidAt(el, sl, er, sr, depth+1)
		if err != nil || !inter {
			return false, err
		}
		elVoid, err := e.soloVoid(el, sl, depth+1)
		if err != nil || elVoid {
			return false, err
		}
		erVoid, err := e.soloVoid(er, sr, depth+1)
		if err != nil {
			return false, err
		}
		return !erVoid, nil
	case sl.sign != sr.sign:
		return e.isVoidAt(el, sl, er, sr, depth+1)
	default: // both negative
		return false, nil
	}
}

func (e *Engine) recordPair(ls termgraph.State, sl side, rs termgraph.State, sr side, depth int) (bool, error) {
	if !sl.sign || !sr.sign {
		// The doubly-negated and mixed-sign record cases have no literal
		// rule here; default to the sound "not void" answer rather than
		// guessing at an approximation.
		return false, nil
	}
	lp, _ := ls.Payload.(termgraph.RecordPayload)
	rp, _ := rs.Payload.(termgraph.RecordPayload)
	li := fieldIndex(lp.Fields, ls.Children)
	ri := fieldIndex(rp.Fields, rs.Children)

	names := map[string]bool{}
	for _, n := range lp.Fields {
		names[n] = true
	}
	for _, n := range rp.Fields {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		lc, lok := li[name]
		rc, rok := ri[name]
		switch {
		case lok && rok:
			v, err := e.isVoidAt(lc, sl, rc, sr, depth+1)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		case lok && !rok:
			if !rp.Open {
				return true, nil
			}
		case rok && !lok:
			if !lp.Open {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *Engine) referencePair(ls termgraph.State, sl side, rs termgraph.State, sr side, depth int) (bool, error) {
	lp, _ := ls.Payload.(termgraph.ReferencePayload)
	rp, _ := rs.Payload.(termgraph.ReferencePayload)
	if e.env.Lifetimes != nil && lp.Lifetime != "" && rp.Lifetime != "" {
		if !e.env.Lifetimes.Outlives(lp.Lifetime, rp.Lifetime) || !e.env.Lifetimes.Outlives(rp.Lifetime, lp.Lifetime) {
			return true, nil
		}
	}
	// Invariant element type: void iff emptiness holds in both directions.
	fwd, err := e.isVoidAt(ls.Children[0], sl, rs.Children[0], sr, depth+1)
	if err != nil || !fwd {
		return false, err
	}
	bwd, err := e.isVoidAt(rs.Children[0], sr, ls.Children[0], sl, depth+1)
	if err != nil {
		return false, err
	}
	return bwd, nil
}

func (e *Engine) tuplePair(ls termgraph.State, sl side, rs termgraph.State, sr side, depth int) (bool, error) {
	if len(ls.Children) != len(rs.Children) {
		// Different arity: disjoint shapes, same as differing constructors.
		return sl.sign && sr.sign, nil
	}
	if !sl.sign || !sr.sign {
		return false, nil
	}
	for i := range ls.Children {
		v, err := e.isVoidAt(ls.Children[i], sl, rs.Children[i], sr, depth+1)
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

func isIdentityLeaf(k termgraph.Kind) bool {
	switch k {
	case termgraph.Equals, termgraph.LessThan, termgraph.ElementOf, termgraph.SubSet,
		termgraph.Var, termgraph.NumValue, termgraph.StrValue, termgraph.BoolValue, termgraph.NullValue:
		return true
	}
	return false
}

func isInvocable(k termgraph.Kind) bool {
	return k == termgraph.Function || k == termgraph.Method || k == termgraph.Property
}

// invocablePair approximates Function/Method/Property subtyping with the
// standard contravariant-parameter, covariant-return rule: void iff the
// return types' emptiness holds or the parameter lists can't unify.
func (e *Engine) invocablePair(ls termgraph.State, sl side, rs termgraph.State, sr side, depth int) (bool, error) {
	if !sl.sign || !sr.sign {
		return false, nil
	}
	if len(ls.Children) == 0 || len(rs.Children) == 0 || len(ls.Children) != len(rs.Children) {
		return true, nil
	}
	retL, retR := ls.Children[len(ls.Children)-1], rs.Children[len(rs.Children)-1]
	v, err := e.isVoidAt(retL, sl, retR, sr, depth+1)
	if err != nil || v {
		return v, err
	}
	for i := 0; i < len(ls.Children)-1; i++ {
		// Parameters are contravariant: flip signs before comparing.
		pv, err := e.isVoidAt(ls.Children[i], sl.flip(), rs.Children[i], sr.flip(), depth+1)
		if err != nil {
			return false, err
		}
		if pv {
			return true, nil
		}
	}
	return false, nil
}

// structuralDisjoint reports whether two distinct constructor kinds denote
// pairwise-disjoint sets of values (every leaf and structural kind except
// Void/Any, which are handled by absorbing before this point is reached).
var structuralDisjoint = map[termgraph.Kind]bool{
	termgraph.Null: true, termgraph.Bool: true, termgraph.Int: true, termgraph.Real: true, termgraph.String: true,
	termgraph.Array: true, termgraph.Set: true, termgraph.List: true, termgraph.Record: true, termgraph.Tuple: true,
	termgraph.Reference: true, termgraph.Function: true, termgraph.Method: true, termgraph.Property: true,
}

func (e *Engine) leafPair(lk termgraph.Kind, sl side, rk termgraph.Kind, sr side) bool {
	if lk == rk {
		if sl.sign && sr.sign {
			return false // {K} ∩ {K} = {K}, nonempty
		}
		if sl.sign != sr.sign {
			return true // {K} ∩ ¬{K} = ∅
		}
		return false // ¬{K} ∩ ¬{K} = ¬{K}, nonempty (other kinds exist)
	}
	if structuralDisjoint[lk] && structuralDisjoint[rk] {
		// Distinct disjoint atoms: empty iff both held positively.
		return sl.sign && sr.sign
	}
	return false
}

func fieldIndex(names []string, children []int) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if i < len(children) {
			idx[n] = children[i]
		}
	}
	return idx
}
