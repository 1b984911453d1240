package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
)

func leaf(g *termgraph.Graph, k termgraph.Kind) int {
	return g.Add(termgraph.State{Kind: k, Deterministic: true})
}

func TestFilterReturnsTargetDirectly(t *testing.T) {
	g := termgraph.New()
	i := leaf(g, termgraph.Int)
	arr := g.Add(termgraph.State{Kind: termgraph.Array, Children: []int{i}, Deterministic: true})

	r, ok, err := Filter(g, subtype.Env{}, termgraph.Array, arr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arr, r)
}

func TestFilterOnNonMatchingLeafIsVoid(t *testing.T) {
	g := termgraph.New()
	b := leaf(g, termgraph.Bool)

	r, ok, err := Filter(g, subtype.Env{}, termgraph.Array, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, termgraph.Void, g.Get(r).Kind)
}

func TestFilterOverUnionMergesElements(t *testing.T) {
	g := termgraph.New()
	i, bl := leaf(g, termgraph.Int), leaf(g, termgraph.Bool)
	arrI := g.Add(termgraph.State{Kind: termgraph.Array, Children: []int{i}, Deterministic: true})
	arrB := g.Add(termgraph.State{Kind: termgraph.Array, Children: []int{bl}, Deterministic: true})
	u := g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{arrI, arrB}})

	r, ok, err := Filter(g, subtype.Env{}, termgraph.Array, u)
	require.NoError(t, err)
	require.True(t, ok)
	top := g.Get(r)
	assert.Equal(t, termgraph.Array, top.Kind)
	elem := g.Get(top.Children[0])
	assert.Equal(t, termgraph.Union, elem.Kind)
}

func TestFilterOverUnionWithNonMatchingBranchKeepsOther(t *testing.T) {
	g := termgraph.New()
	i, bl := leaf(g, termgraph.Int), leaf(g, termgraph.Bool)
	arrI := g.Add(termgraph.State{Kind: termgraph.Array, Children: []int{i}, Deterministic: true})
	u := g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{arrI, bl}})

	r, ok, err := Filter(g, subtype.Env{}, termgraph.Array, u)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arrI, r)
}
