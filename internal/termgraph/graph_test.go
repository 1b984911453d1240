package termgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHashConsesDeterministicStates(t *testing.T) {
	g := New()
	a := g.Add(State{Kind: Int, Deterministic: true})
	b := g.Add(State{Kind: Int, Deterministic: true})
	assert.Equal(t, a, b, "identical deterministic leaves must share an index")

	c := g.Add(State{Kind: Int, Deterministic: false})
	d := g.Add(State{Kind: Int, Deterministic: false})
	assert.NotEqual(t, c, d, "non-deterministic states are never hash-consed")
}

func TestAddDistinguishesByChildrenAndPayload(t *testing.T) {
	g := New()
	leafInt := g.Add(State{Kind: Int, Deterministic: true})
	leafBool := g.Add(State{Kind: Bool, Deterministic: true})

	arr1 := g.Add(State{Kind: Array, Children: []int{leafInt}, Deterministic: true})
	arr2 := g.Add(State{Kind: Array, Children: []int{leafInt}, Deterministic: true})
	arr3 := g.Add(State{Kind: Array, Children: []int{leafBool}, Deterministic: true})

	assert.Equal(t, arr1, arr2)
	assert.NotEqual(t, arr1, arr3)
}

func TestSubstitutePreservesSharing(t *testing.T) {
	g := New()
	x := g.Add(State{Kind: Var, Payload: "x", Deterministic: true})
	y := g.Add(State{Kind: Var, Payload: "y", Deterministic: true})
	replacement := g.Add(State{Kind: Int, Deterministic: true})

	// (x + y) where only x should be substituted; y's subtree is untouched.
	sum := g.Add(State{Kind: Sum, Children: []int{x, y}})

	newRoot := g.Substitute(sum, x, replacement)
	newState := g.Get(newRoot)
	require.Len(t, newState.Children, 2)
	assert.Equal(t, replacement, newState.Children[0])
	assert.Equal(t, y, newState.Children[1], "unchanged subterm must be shared, not rebuilt")
}

func TestSubstituteNoOccurrenceReturnsSameRoot(t *testing.T) {
	g := New()
	x := g.Add(State{Kind: Var, Payload: "x", Deterministic: true})
	y := g.Add(State{Kind: Var, Payload: "y", Deterministic: true})
	other := g.Add(State{Kind: Int, Deterministic: true})
	sum := g.Add(State{Kind: Sum, Children: []int{x, y}})

	newRoot := g.Substitute(sum, other, x)
	assert.Equal(t, sum, newRoot)
}

func TestCyclicTermsAreRepresentable(t *testing.T) {
	g := New()
	// Build a self-referential nominal-like cycle: n := Union(p, p), where
	// the placeholder p (index 0) is then patched to Union(n).
	placeholder := g.Add(State{Kind: Void, Deterministic: false})
	union := g.Add(State{Kind: Union, Children: []int{0, placeholder}})
	_ = union

	// Manually patch the placeholder's "self" child to point back at union,
	// emulating how a recursive nominal unfolds into a cyclic graph.
	g.states[placeholder] = State{Kind: Union, Children: []int{union}}

	reach := g.ReachableFrom(union)
	assert.True(t, reach[union])
	assert.True(t, reach[placeholder])
}

func TestReachableFromAndCompact(t *testing.T) {
	g := New()
	keep := g.Add(State{Kind: Int, Deterministic: true})
	root := g.Add(State{Kind: Array, Children: []int{keep}, Deterministic: true})
	garbage := g.Add(State{Kind: Bool, Deterministic: true})
	_ = garbage

	reach := g.ReachableFrom(root)
	assert.True(t, reach[root])
	assert.True(t, reach[keep])
	assert.False(t, reach[garbage])

	mapping := g.Compact([]int{root})
	assert.Equal(t, 2, g.Len())
	newRoot, ok := mapping[root]
	require.True(t, ok)
	newState := g.Get(newRoot)
	require.Len(t, newState.Children, 1)
	assert.Equal(t, mapping[keep], newState.Children[0])

	_, stillThere := mapping[garbage]
	assert.False(t, stillThere, "garbage must not survive compaction")
}

func TestEqualStructural(t *testing.T) {
	g := New()
	i1 := g.Add(State{Kind: Int, Deterministic: false})
	i2 := g.Add(State{Kind: Int, Deterministic: false})
	assert.True(t, g.Equal(i1, i2))

	arr1 := g.Add(State{Kind: Array, Children: []int{i1}, Deterministic: false})
	arr2 := g.Add(State{Kind: Array, Children: []int{i2}, Deterministic: false})
	assert.True(t, g.Equal(arr1, arr2))

	b := g.Add(State{Kind: Bool, Deterministic: false})
	arr3 := g.Add(State{Kind: Array, Children: []int{b}, Deterministic: false})
	assert.False(t, g.Equal(arr1, arr3))
}

func TestKindStringCoversEveryKind(t *testing.T) {
	for k := Void; k <= Var; k++ {
		s := k.String()
		assert.NotContains(t, s, "Kind(", "kind %d missing a name", k)
	}
}
