// Package filter implements the type extractor / filter core: given a
// target constructor and an arbitrary semantic type, it returns the part
// of the input that has that constructor. It is a thin utility layered on
// top of
// internal/subtype's nominal resolver, used by surrounding type-checking
// collaborators (e.g. indexing into a value whose static type is a union
// of arrays and something else).
package filter

import (
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
)

// Ambiguous is the sentinel index (-1) for a filter result with more than
// one incomparable K-shaped component. Filter never returns it: see
// Filter for how a union with K-shaped components on both sides is
// resolved.
var Ambiguous = -1

// Filter extracts the k-shaped part of t. It returns t itself when t has
// constructor k and looks through Nominal (via env.Resolver), Union,
// Intersection and Difference. It returns (termgraph index of Void, true)
// if t has no component of constructor k, and (0, false) when a Nominal is
// reached and env has no Resolver. Under a union, Array, Set and List
// components are merged into one constructor over the union of their
// elements; for any other constructor the left component is returned and
// the ambiguity is not reported.
func Filter(g *termgraph.Graph, env subtype.Env, k termgraph.Kind, t int) (int, bool, error) {
	f := &filterer{g: g, env: env, target: k}
	return f.run(t)
}

type filterer struct {
	g      *termgraph.Graph
	env    subtype.Env
	target termgraph.Kind
}

func (f *filterer) run(t int) (int, bool, error) {
	s := f.g.Get(t)
	switch s.Kind {
	case f.target:
		return t, true, nil

	case termgraph.Nominal:
		if f.env.Resolver == nil {
			return 0, false, nil
		}
		name, _ := s.Payload.(string)
		unfolded, err := f.env.Resolver.Unfold(name, f.g)
		if err != nil {
			return 0, false, err
		}
		return f.run(unfolded)

	case termgraph.Union:
		return f.combine(s.Children[0], s.Children[1], true)

	case termgraph.Intersection:
		return f.combine(s.Children[0], s.Children[1], false)

	case termgraph.Difference:
		left, leftOK, err := f.run(s.Children[0])
		if err != nil {
			return 0, false, err
		}
		if !leftOK {
			return f.voidResult(), true, nil
		}
		right, rightOK, err := f.run(s.Children[1])
		if err != nil {
			return 0, false, err
		}
		if !rightOK {
			return left, true, nil
		}
		if f.target == termgraph.Array || f.target == termgraph.Set || f.target == termgraph.List {
			leftElem, rightElem := f.g.Get(left).Children[0], f.g.Get(right).Children[0]
			diff := f.g.Add(termgraph.State{Kind: termgraph.Difference, Children: []int{leftElem, rightElem}})
			return f.g.Add(termgraph.State{Kind: f.target, Children: []int{diff}}), true, nil
		}
		return left, true, nil

	default:
		return f.voidResult(), true, nil
	}
}

// combine merges the filter results of two branches under a union (unionOK:
// elements combine via Union) or an intersection (elements combine via
// Intersection). A branch that yields nothing contributes nothing under
// union; under intersection, either branch yielding nothing voids the
// whole result.
func (f *filterer) combine(a, b int, isUnion bool) (int, bool, error) {
	ra, okA, err := f.run(a)
	if err != nil {
		return 0, false, err
	}
	rb, okB, err := f.run(b)
	if err != nil {
		return 0, false, err
	}

	if isUnion {
		hasA := okA && !f.isVoidResult(ra)
		hasB := okB && !f.isVoidResult(rb)
		switch {
		case hasA && !hasB:
			return ra, true, nil
		case hasB && !hasA:
			return rb, true, nil
		case !hasA && !hasB:
			return f.voidResult(), true, nil
		}
		if f.target == termgraph.Array || f.target == termgraph.Set || f.target == termgraph.List {
			ea, eb := f.elementOrVoid(ra), f.elementOrVoid(rb)
			u := f.g.Add(termgraph.State{Kind: termgraph.Union, Children: []int{ea, eb}})
			return f.g.Add(termgraph.State{Kind: f.target, Children: []int{u}}), true, nil
		}
		return ra, true, nil
	}

	// Intersection: either side voiding the component voids the whole.
	if !okA || !okB || f.isVoidResult(ra) || f.isVoidResult(rb) {
		return f.voidResult(), true, nil
	}
	if f.target == termgraph.Array || f.target == termgraph.Set || f.target == termgraph.List {
		ea, eb := f.elementOrVoid(ra), f.elementOrVoid(rb)
		i := f.g.Add(termgraph.State{Kind: termgraph.Intersection, Children: []int{ea, eb}})
		return f.g.Add(termgraph.State{Kind: f.target, Children: []int{i}}), true, nil
	}
	return ra, true, nil
}

func (f *filterer) voidResult() int {
	return f.g.Add(termgraph.State{Kind: termgraph.Void, Deterministic: true})
}

func (f *filterer) isVoidResult(idx int) bool {
	return f.g.Get(idx).Kind == termgraph.Void
}

func (f *filterer) elementOrVoid(idx int) int {
	s := f.g.Get(idx)
	if s.Kind == f.target && len(s.Children) == 1 {
		return s.Children[0]
	}
	return f.voidResult()
}
