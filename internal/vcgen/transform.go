// Package vcgen implements the bytecode-to-term transformer: it maps each
// concrete bytecode operation to a term in the algebra internal/termgraph
// defines, using a polynomial sum-of-products encoding for arithmetic,
// lexicographically canonicalized aggregate field order, and identity
// coercions.
package vcgen

import (
	"sort"

	"kanso/internal/termgraph"
)

// Mode names the two ways a caller uses a predicate: Check builds the
// negated predicate to test for unsatisfiability; Assume conjoins the
// predicate into the constraint without checking it, as when importing a
// callee's postcondition into a caller. Transformer does not consult it.
type Mode int

const (
	Check Mode = iota
	Assume
)

// Transformer builds terms against one shared graph. It carries no
// mutable state of its own beyond a counter for fresh variables, so a
// single Transformer may be reused across the branches of one
// verification task.
type Transformer struct {
	g       *termgraph.Graph
	freshNo int
}

// New returns a transformer writing into g.
func New(g *termgraph.Graph) *Transformer {
	return &Transformer{g: g}
}

// Const builds a value-leaf term for a literal. v's Go type selects the
// leaf kind: bool -> BoolValue, nil -> NullValue, string -> StrValue,
// anything else is stored as NumValue with the literal itself as payload
// (matching bytecode.Instruction.Literal's "any" payload).
func (t *Transformer) Const(v any) int {
	switch x := v.(type) {
	case bool:
		return t.g.Add(termgraph.State{Kind: termgraph.BoolValue, Payload: x, Deterministic: true})
	case nil:
		return t.g.Add(termgraph.State{Kind: termgraph.NullValue, Deterministic: true})
	case string:
		return t.g.Add(termgraph.State{Kind: termgraph.StrValue, Payload: x, Deterministic: true})
	default:
		return t.g.Add(termgraph.State{Kind: termgraph.NumValue, Payload: x, Deterministic: true})
	}
}

// Fresh returns a new variable term, used when Loop/ForAll/Invoke
// invalidate a register by assigning it a value about which nothing is
// known beyond its declared type.
func (t *Transformer) Fresh(hint string) int {
	t.freshNo++
	return t.g.Add(termgraph.State{Kind: termgraph.Var, Payload: hint})
}

// Sum builds Sum(bias, Bag(terms...)), the polynomial-sum-of-products
// encoding used for arithmetic.
func (t *Transformer) Sum(bias int, terms ...int) int {
	bag := t.g.Add(termgraph.State{Kind: termgraph.Bag, Children: terms})
	return t.g.Add(termgraph.State{Kind: termgraph.Sum, Children: []int{bias, bag}})
}

// Mul builds Mul(coefficient, Bag(factors...)).
func (t *Transformer) Mul(coefficient int, factors ...int) int {
	bag := t.g.Add(termgraph.State{Kind: termgraph.Bag, Children: factors})
	return t.g.Add(termgraph.State{Kind: termgraph.Mul, Children: []int{coefficient, bag}})
}

// BinArith transforms a BinArithOp: '+' and '-' build a Sum, '*' builds a
// Mul over both operands as factors (no attempt is made to pull a numeric
// coefficient out of either side; see DESIGN.md for why), '/' builds Div
// directly.
func (t *Transformer) BinArith(op string, a, b int) int {
	zero := t.Const(0)
	switch op {
	case "+":
		return t.Sum(zero, a, b)
	case "-":
		return t.Sum(zero, a, t.Mul(t.Const(-1), b))
	case "*":
		return t.Mul(t.Const(1), a, b)
	case "/":
		return t.g.Add(termgraph.State{Kind: termgraph.Div, Children: []int{a, b}})
	default:
		return t.g.Add(termgraph.State{Kind: termgraph.Var, Payload: "unknown-binop:" + op})
	}
}

// UnArith transforms a UnArithOp: '-' is arithmetic negation, '!' is
// boolean negation (Not), reusing the same connective the type algebra's
// Not constructor uses.
func (t *Transformer) UnArith(op string, a int) int {
	switch op {
	case "-":
		return t.Mul(t.Const(-1), a)
	case "!":
		return t.Negate(a)
	default:
		return a
	}
}

// BinSet transforms a BinSetOp: set-valued union/intersection/difference
// reuse the same connective kinds the type algebra uses, since the term
// graph does not give value-level set operations a distinct kind from the
// corresponding type constructors.
func (t *Transformer) BinSet(op string, a, b int) int {
	switch op {
	case "|":
		return t.g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{a, b}})
	case "&":
		return t.g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{a, b}})
	case "-":
		return t.g.Add(termgraph.State{Kind: termgraph.Difference, Children: []int{a, b}})
	default:
		return t.g.Add(termgraph.State{Kind: termgraph.Var, Payload: "unknown-setop:" + op})
	}
}

// NewList, NewSet and NewTuple build aggregate value terms carrying their
// element children in emission order.
func (t *Transformer) NewList(elems ...int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.ListVal, Children: elems})
}

func (t *Transformer) NewSet(elems ...int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.SetVal, Children: elems})
}

func (t *Transformer) NewTuple(elems ...int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.TupleVal, Children: elems})
}

// NewRecord builds a RecordVal, canonicalizing field order by sorting
// names lexicographically so that two records with the same fields always
// produce the same term regardless of construction order.
func (t *Transformer) NewRecord(fields map[string]int) int {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	children := make([]int, len(names))
	for i, n := range names {
		children[i] = fields[n]
	}
	return t.g.Add(termgraph.State{Kind: termgraph.RecordVal, Children: children, Payload: termgraph.RecordPayload{Fields: names}})
}

// FieldOf, TupleLoad, IndexOf and LengthOf build projection terms.
func (t *Transformer) FieldOf(rec int, field string) int {
	return t.g.Add(termgraph.State{Kind: termgraph.FieldOf, Children: []int{rec}, Payload: field})
}

func (t *Transformer) TupleLoad(tup int, i int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.TupleLoad, Children: []int{tup}, Payload: i})
}

func (t *Transformer) IndexOf(coll, idx int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.IndexOf, Children: []int{coll, idx}})
}

func (t *Transformer) LengthOf(coll int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.LengthOf, Children: []int{coll}})
}

// PathStep is one segment of an LVal iterator: either a named field or an
// indexed element.
type PathStep struct {
	Field    string // non-empty for a field step
	Index    int    // term index of the index expression, for an index step
	IsIndex  bool
}

// Update walks path, producing the nested FieldUpdate/ListUpdate terms for
// a write through a chain of field and index steps, and returns the new
// whole-object term.
func (t *Transformer) Update(root int, path []PathStep, newVal int) int {
	if len(path) == 0 {
		return newVal
	}
	step := path[0]
	if step.IsIndex {
		cur := t.IndexOf(root, step.Index)
		updatedChild := t.Update(cur, path[1:], newVal)
		return t.g.Add(termgraph.State{Kind: termgraph.ListUpdate, Children: []int{root, step.Index, updatedChild}})
	}
	cur := t.FieldOf(root, step.Field)
	updatedChild := t.Update(cur, path[1:], newVal)
	return t.g.Add(termgraph.State{Kind: termgraph.FieldUpdate, Children: []int{root, updatedChild}, Payload: step.Field})
}

// Convert is the identity at the term level: coercions do not produce new
// structure unless a concrete rule table requires wrapping, which this
// toolchain's rule table does not.
func (t *Transformer) Convert(v int) int { return v }

// Negate builds the logical negation of a boolean-valued term, used by
// Assert to build the negated predicate the subtype engine's emptiness
// test is handed.
func (t *Transformer) Negate(v int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.Not, Children: []int{v}})
}

// Conjoin builds the conjunction of two boolean-valued terms (the path
// constraint growing by one assumption, or Assert's negated predicate
// joining the path constraint before the emptiness test).
func (t *Transformer) Conjoin(a, b int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{a, b}})
}

// Is builds the type-refinement term IfIs forks on: whether v's runtime
// type is a member of ty.
func (t *Transformer) Is(v, ty int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.ElementOf, Children: []int{v, ty}})
}

// Equals and LessThan build the corresponding relation terms used by
// Assert predicates and loop invariants.
func (t *Transformer) Equals(a, b int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.Equals, Children: []int{a, b}})
}

func (t *Transformer) LessThan(a, b int) int {
	return t.g.Add(termgraph.State{Kind: termgraph.LessThan, Children: []int{a, b}})
}
