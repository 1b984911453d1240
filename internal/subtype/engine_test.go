package subtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kanso/internal/termgraph"
)

func leaf(g *termgraph.Graph, k termgraph.Kind) int {
	return g.Add(termgraph.State{Kind: k, Deterministic: true})
}

func union(g *termgraph.Graph, a, b int) int {
	return g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{a, b}})
}

func inter(g *termgraph.Graph, a, b int) int {
	return g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{a, b}})
}

func not(g *termgraph.Graph, a int) int {
	return g.Add(termgraph.State{Kind: termgraph.Not, Children: []int{a}})
}

func arr(g *termgraph.Graph, a int) int {
	return g.Add(termgraph.State{Kind: termgraph.Array, Children: []int{a}})
}

func TestIntOrNullIsSupertypeOfEach(t *testing.T) {
	g := termgraph.New()
	i, n, b := leaf(g, termgraph.Int), leaf(g, termgraph.Null), leaf(g, termgraph.Bool)
	intOrNull := union(g, i, n)

	eng := New(g, Env{})
	ok, err := eng.IsSubtype(i, intOrNull)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.IsSubtype(n, intOrNull)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.IsSubtype(b, intOrNull)
	require.NoError(t, err)
	assert.False(t, ok, "bool is not a member of int|null")
}

func TestArrayIntersectionEmptiness(t *testing.T) {
	g := termgraph.New()
	i, b, n := leaf(g, termgraph.Int), leaf(g, termgraph.Bool), leaf(g, termgraph.Null)
	eng := New(g, Env{})

	void, err := eng.IsVoid(inter(g, arr(g, i), arr(g, b)))
	require.NoError(t, err)
	assert.True(t, void, "int[] ∩ bool[] is void")

	intOrNull := union(g, i, n)
	void, err = eng.IsVoid(inter(g, arr(g, intOrNull), arr(g, i)))
	require.NoError(t, err)
	assert.False(t, void, "(int|null)[] ∩ int[] is not void")
}

func TestVoidAbsorption(t *testing.T) {
	g := termgraph.New()
	i := leaf(g, termgraph.Int)
	void := leaf(g, termgraph.Void)
	any := leaf(g, termgraph.Any)
	eng := New(g, Env{})

	ok, err := eng.IsSubtype(void, i)
	require.NoError(t, err)
	assert.True(t, ok, "isSubtype(Void, T) = true")

	ok, err = eng.IsSubtype(i, any)
	require.NoError(t, err)
	assert.True(t, ok, "isSubtype(T, Any) = true")
}

func TestUnionIntersectionDuality(t *testing.T) {
	g := termgraph.New()
	i, b := leaf(g, termgraph.Int), leaf(g, termgraph.Bool)
	eng := New(g, Env{})

	voidUnion, err := eng.IsVoid(union(g, i, b))
	require.NoError(t, err)
	voidI, _ := eng.IsVoid(i)
	voidB, _ := eng.IsVoid(b)
	assert.Equal(t, voidI && voidB, voidUnion)

	ok, err := eng.IsSubtype(inter(g, i, b), i)
	require.NoError(t, err)
	assert.True(t, ok, "isSubtype(A∩B, A) = true")
}

func TestDoubleNegation(t *testing.T) {
	g := termgraph.New()
	i := leaf(g, termgraph.Int)
	eng := New(g, Env{})

	ok, err := eng.IsSubtype(not(g, not(g, i)), i)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.IsSubtype(i, not(g, not(g, i)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReflexivityAndTransitivity(t *testing.T) {
	g := termgraph.New()
	i, b, n := leaf(g, termgraph.Int), leaf(g, termgraph.Bool), leaf(g, termgraph.Null)
	a := union(g, i, union(g, b, n))
	eng := New(g, Env{})

	ok, err := eng.IsSubtype(a, a)
	require.NoError(t, err)
	assert.True(t, ok, "reflexivity")

	ok1, _ := eng.IsSubtype(i, a)
	ok2, _ := eng.IsSubtype(a, union(g, i, union(g, b, union(g, n, leaf(g, termgraph.String)))))
	require.True(t, ok1)
	ok3, err := eng.IsSubtype(i, union(g, i, union(g, b, union(g, n, leaf(g, termgraph.String)))))
	require.NoError(t, err)
	assert.True(t, ok2 && ok3, "transitivity chain holds")
}

// fakeResolver unfolds exactly one recursive nominal: List = null | {head: int, tail: List}.
type fakeResolver struct {
	listIdx int
}

func (r *fakeResolver) Unfold(name string, g *termgraph.Graph) (int, error) {
	if name != "List" {
		return 0, &NotFoundError{Name: name}
	}
	return r.listIdx, nil
}

// NotFoundError is a local stand-in for a resolution failure in tests; the
// real namespace.Resolver returns *errors.ResolutionError.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return "not found: " + e.Name }

func TestRecursiveNominalType(t *testing.T) {
	g := termgraph.New()
	i, n, any := leaf(g, termgraph.Int), leaf(g, termgraph.Null), leaf(g, termgraph.Any)
	bool_ := leaf(g, termgraph.Bool)

	listNominal := g.Add(termgraph.State{Kind: termgraph.Nominal, Payload: "List"})
	head := g.Add(termgraph.State{Kind: termgraph.Record, Children: []int{i, listNominal},
		Payload: termgraph.RecordPayload{Fields: []string{"head", "tail"}}})
	listBody := union(g, n, head)

	eng := New(g, Env{Resolver: &fakeResolver{listIdx: listBody}, RecursionBudget: 32})

	ok, err := eng.IsSubtype(listNominal, any)
	require.NoError(t, err)
	assert.True(t, ok, "isSubtype(List, any) = true")

	void, err := eng.IsVoid(inter(g, listNominal, bool_))
	require.NoError(t, err)
	assert.True(t, void, "isVoid(List ∩ bool) = true")

	assert.True(t, eng.IsContractive("List", listBody), "List is guarded by the head record")
}

func TestRelationAtomIdentityVsUnrelatedAtoms(t *testing.T) {
	g := termgraph.New()
	x := g.Add(termgraph.State{Kind: termgraph.Var, Payload: "x", Deterministic: true})
	five := g.Add(termgraph.State{Kind: termgraph.NumValue, Payload: "5", Deterministic: true})
	ten := g.Add(termgraph.State{Kind: termgraph.NumValue, Payload: "10", Deterministic: true})
	eqX5 := g.Add(termgraph.State{Kind: termgraph.Equals, Children: []int{x, five}, Deterministic: true})
	eqX5Again := g.Add(termgraph.State{Kind: termgraph.Equals, Children: []int{x, five}, Deterministic: true})
	eqX10 := g.Add(termgraph.State{Kind: termgraph.Equals, Children: []int{x, ten}, Deterministic: true})

	eng := New(g, Env{})

	void, err := eng.IsVoid(inter(g, eqX5, not(g, eqX5Again)))
	require.NoError(t, err)
	assert.True(t, void, "x=5 ∧ ¬(x=5) is unsatisfiable")

	void, err = eng.IsVoid(inter(g, eqX5, eqX10))
	require.NoError(t, err)
	assert.False(t, void, "unrelated relation atoms are not decided as unsatisfiable by this engine")
}

func TestNonContractiveNominalIsRejected(t *testing.T) {
	g := termgraph.New()
	selfNominal := g.Add(termgraph.State{Kind: termgraph.Nominal, Payload: "A", Deterministic: true})
	eng := New(g, Env{})
	assert.False(t, eng.IsContractive("A", selfNominal), "type A = A is not contractive")
}

func TestRecordFieldConjunctionVoid(t *testing.T) {
	g := termgraph.New()
	i, b := leaf(g, termgraph.Int), leaf(g, termgraph.Bool)
	rec1 := g.Add(termgraph.State{Kind: termgraph.Record, Children: []int{i},
		Payload: termgraph.RecordPayload{Fields: []string{"x"}, Open: true}})
	rec2 := g.Add(termgraph.State{Kind: termgraph.Record, Children: []int{b},
		Payload: termgraph.RecordPayload{Fields: []string{"x"}, Open: true}})

	eng := New(g, Env{})
	void, err := eng.IsVoid(inter(g, rec1, rec2))
	require.NoError(t, err)
	assert.True(t, void, "field x is int on one side and bool on the other")
}

func TestClosedRecordMissingFieldIsVoid(t *testing.T) {
	g := termgraph.New()
	i := leaf(g, termgraph.Int)
	withX := g.Add(termgraph.State{Kind: termgraph.Record, Children: []int{i},
		Payload: termgraph.RecordPayload{Fields: []string{"x"}, Open: false}})
	empty := g.Add(termgraph.State{Kind: termgraph.Record, Payload: termgraph.RecordPayload{Fields: nil, Open: false}})

	eng := New(g, Env{})
	void, err := eng.IsVoid(inter(g, withX, empty))
	require.NoError(t, err)
	assert.True(t, void, "closed record without x cannot intersect a record requiring x")
}

// alternatingResolver unfolds "List" to a fresh "List2" nominal and vice
// versa, each time appending a brand-new non-deterministic node so the
// index-based memo never converges on its own -- only RecursionBudget
// stops the chain.
type alternatingResolver struct{ g *termgraph.Graph }

func (r *alternatingResolver) Unfold(name string, g *termgraph.Graph) (int, error) {
	other := "List2"
	if name == "List2" {
		other = "List"
	}
	return g.Add(termgraph.State{Kind: termgraph.Nominal, Payload: other, Deterministic: false}), nil
}

func TestRecursionBudgetReportsIndeterminate(t *testing.T) {
	g := termgraph.New()
	listNominal := g.Add(termgraph.State{Kind: termgraph.Nominal, Payload: "List", Deterministic: false})
	eng := New(g, Env{Resolver: &alternatingResolver{g: g}, RecursionBudget: 3})

	_, err := eng.IsVoid(listNominal)
	require.NoError(t, err)
	assert.True(t, eng.BudgetExhausted())
}
