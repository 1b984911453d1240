// Package termgraph implements the flat, hash-consed term arena that
// underlies both the semantic subtype engine and the verification
// condition engine.
package termgraph

import "fmt"

// Kind tags every state in the arena. The enumeration is closed: new term
// shapes are added here, never discovered by downstream packages.
type Kind int

const (
	// Primitive leaves.
	Void Kind = iota
	Any
	Null
	Bool
	Int
	Real
	String

	// Type constructors.
	Array
	Set
	List
	Record
	Tuple
	Reference
	Function
	Method
	Property
	Nominal

	// Logical connectives over semantic types.
	Not
	Union
	Intersection
	Difference

	// Value leaves (concrete constants carried in a payload).
	NumValue
	StrValue
	BoolValue
	NullValue

	// Aggregate value constructors.
	ListVal
	SetVal
	RecordVal
	TupleVal

	// Term constructors for the verification-condition algebra.
	Sum
	Mul
	Div
	Bag
	Equals
	LessThan
	ElementOf
	SubSet
	FieldOf
	FieldUpdate
	IndexOf
	ListUpdate
	LengthOf
	TupleLoad
	Var
)

var kindNames = [...]string{
	Void: "Void", Any: "Any", Null: "Null", Bool: "Bool", Int: "Int", Real: "Real", String: "String",
	Array: "Array", Set: "Set", List: "List", Record: "Record", Tuple: "Tuple", Reference: "Reference",
	Function: "Function", Method: "Method", Property: "Property", Nominal: "Nominal",
	Not: "Not", Union: "Union", Intersection: "Intersection", Difference: "Difference",
	NumValue: "NumValue", StrValue: "StrValue", BoolValue: "BoolValue", NullValue: "NullValue",
	ListVal: "ListVal", SetVal: "SetVal", RecordVal: "RecordVal", TupleVal: "TupleVal",
	Sum: "Sum", Mul: "Mul", Div: "Div", Bag: "Bag", Equals: "Equals", LessThan: "LessThan",
	ElementOf: "ElementOf", SubSet: "SubSet", FieldOf: "FieldOf", FieldUpdate: "FieldUpdate",
	IndexOf: "IndexOf", ListUpdate: "ListUpdate", LengthOf: "LengthOf", TupleLoad: "TupleLoad", Var: "Var",
}

// String renders a Kind for diagnostics and debug printing.
func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// RecordPayload is the payload carried by Record/RecordVal states: the
// field names in declaration order (sorted lexicographically once
// canonicalized) and whether the record is open to additional fields.
type RecordPayload struct {
	Fields []string
	Open   bool
}

// ReferencePayload is the payload carried by Reference states: the
// lifetime identifier the reference is borrowed under. Lifetime ordering
// itself is not known to the term graph; it is supplied externally by a
// LifetimeRelation collaborator.
type ReferencePayload struct {
	Lifetime string
}

// State is one node in the arena: a kind, a child list (indices into the
// same arena), and an optional payload. Deterministic states are the ones
// that have passed through canonicalization (normalized child order) and
// therefore participate in hash-consing.
type State struct {
	Kind          Kind
	Children      []int
	Payload       any
	Deterministic bool
}

// Graph is an append-only arena of States. Indices are stable for the
// lifetime of the graph: Compact is the only operation that renumbers
// states, and it returns the old->new mapping so callers can update any
// indices they hold externally.
type Graph struct {
	states []State
	cons   map[string]int
}

// New returns an empty term graph.
func New() *Graph {
	return &Graph{cons: make(map[string]int)}
}

// Add appends state to the arena and returns its index. If the state is
// Deterministic, structurally identical states share an index (hash
// consing), so structural equality reduces to index equality.
func (g *Graph) Add(s State) int {
	if s.Deterministic {
		key := consKey(s)
		if idx, ok := g.cons[key]; ok {
			return idx
		}
		idx := len(g.states)
		g.states = append(g.states, s)
		g.cons[key] = idx
		return idx
	}
	idx := len(g.states)
	g.states = append(g.states, s)
	return idx
}

// Get returns the state at idx. It panics on an out-of-range index, since
// every index a caller holds must have come from this graph.
func (g *Graph) Get(idx int) State {
	return g.states[idx]
}

// Len returns the number of states currently in the arena (including
// unreachable ones not yet removed by Compact).
func (g *Graph) Len() int {
	return len(g.states)
}

func consKey(s State) string {
	key := fmt.Sprintf("%d|%v|", s.Kind, s.Children)
	switch p := s.Payload.(type) {
	case RecordPayload:
		key += fmt.Sprintf("rec:%v:%v", p.Fields, p.Open)
	case ReferencePayload:
		key += fmt.Sprintf("ref:%s", p.Lifetime)
	default:
		key += fmt.Sprintf("%v", p)
	}
	return key
}

// Substitute returns a new root index equal to root with every occurrence
// of the subterm `from` replaced by `to`. Subterms that do not contain
// `from` are shared unchanged (the cost of the walk is proportional to the
// number of distinct states that transitively reach `from`).
func (g *Graph) Substitute(root, from, to int) int {
	memo := make(map[int]int)
	var walk func(int) int
	walk = func(idx int) int {
		if idx == from {
			return to
		}
		if v, ok := memo[idx]; ok {
			return v
		}
		s := g.Get(idx)
		if len(s.Children) == 0 {
			memo[idx] = idx
			return idx
		}
		changed := false
		newChildren := make([]int, len(s.Children))
		for i, c := range s.Children {
			nc := walk(c)
			newChildren[i] = nc
			if nc != c {
				changed = true
			}
		}
		if !changed {
			memo[idx] = idx
			return idx
		}
		newState := State{Kind: s.Kind, Children: newChildren, Payload: s.Payload, Deterministic: false}
		newIdx := g.Add(newState)
		memo[idx] = newIdx
		return newIdx
	}
	return walk(root)
}

// ReachableFrom returns the set of indices reachable from root, root
// included. Cycles (recursive types) are handled by tracking visited
// indices.
func (g *Graph) ReachableFrom(root int) map[int]bool {
	seen := map[int]bool{}
	var walk func(int)
	walk = func(idx int) {
		if seen[idx] {
			return
		}
		seen[idx] = true
		for _, c := range g.Get(idx).Children {
			walk(c)
		}
	}
	walk(root)
	return seen
}

// Compact removes states unreachable from any of roots, returning the
// mapping from old indices to new ones. Indices not present in the
// returned map were unreachable and have no valid replacement.
func (g *Graph) Compact(roots []int) map[int]int {
	keep := map[int]bool{}
	for _, r := range roots {
		for idx := range g.ReachableFrom(r) {
			keep[idx] = true
		}
	}

	mapping := make(map[int]int, len(keep))
	newStates := make([]State, 0, len(keep))
	for idx, s := range g.states {
		if !keep[idx] {
			continue
		}
		mapping[idx] = len(newStates)
		newStates = append(newStates, s)
	}
	for i := range newStates {
		remapped := make([]int, len(newStates[i].Children))
		for j, c := range newStates[i].Children {
			remapped[j] = mapping[c]
		}
		newStates[i].Children = remapped
	}

	g.states = newStates
	g.cons = make(map[string]int, len(newStates))
	for idx, s := range newStates {
		if s.Deterministic {
			g.cons[consKey(s)] = idx
		}
	}
	return mapping
}

// Equal reports whether a and b are structurally identical. For
// deterministic states this is just index equality; for non-deterministic
// states it performs a structural walk since they never share indices via
// hash-consing.
func (g *Graph) Equal(a, b int) bool {
	if a == b {
		return true
	}
	sa, sb := g.Get(a), g.Get(b)
	if sa.Kind != sb.Kind || len(sa.Children) != len(sb.Children) {
		return false
	}
	if fmt.Sprintf("%v", sa.Payload) != fmt.Sprintf("%v", sb.Payload) {
		return false
	}
	for i := range sa.Children {
		if !g.Equal(sa.Children[i], sb.Children[i]) {
			return false
		}
	}
	return true
}
