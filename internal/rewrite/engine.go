// Package rewrite drives a set of rewrite rules to a fixpoint over a term
// graph. It owns termination and confluence of whatever rule set is
// handed to it; internal/typenorm supplies the concrete rules used to
// normalize the semantic type algebra.
package rewrite

import (
	"sort"

	"kanso/internal/termgraph"
)

// Rule inspects the state at idx. If it applies, it returns the index of
// the term that should replace idx wherever idx is referenced, and true.
// A rule that wants to edit a subterm in place without changing sharing
// elsewhere returns the same idx it was given together with true, after
// appending whatever new structure it needs via g.Add.
//
// Rules supplied to Engine.Run must be locally terminating: the measure
// (count of Not nodes, count of non-canonical Union/Intersection nestings,
// graph size) must strictly decrease on every successful application. The
// rules in internal/typenorm satisfy this by construction.
type Rule func(idx int, g *termgraph.Graph) (newIdx int, applied bool)

// Result reports whether the run reached a fixpoint or exhausted its step
// budget first.
type Result struct {
	Steps        int
	ReachedFixed bool
}

// Engine applies a fixed list of rules to fixpoint.
type Engine struct {
	Rules []Rule
}

// New returns an engine over the given rule set.
func New(rules ...Rule) *Engine {
	return &Engine{Rules: rules}
}

// Run repeatedly scans every index reachable from root (in ascending index
// order, for a visitation-order-independent result over a confluent rule
// set) and applies the first matching rule it finds, substituting the
// result back into root. It continues until a full scan applies no rule
// (ReachedFixed true) or budget applications have been made (ReachedFixed
// false — a soundness-preserving "indeterminate" result).
//
// budget <= 0 means unlimited. Run returns the final root, which may differ
// from the root passed in once any rewrite has fired.
func (e *Engine) Run(g *termgraph.Graph, root int, budget int) (int, Result) {
	steps := 0
	for {
		reach := g.ReachableFrom(root)
		indices := make([]int, 0, len(reach))
		for idx := range reach {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		appliedThisPass := false
		for _, idx := range indices {
			if idx >= g.Len() {
				continue
			}
			for _, rule := range e.Rules {
				if budget > 0 && steps >= budget {
					return root, Result{Steps: steps, ReachedFixed: false}
				}
				newIdx, ok := rule(idx, g)
				if !ok {
					continue
				}
				steps++
				if newIdx != idx {
					root = g.Substitute(root, idx, newIdx)
				}
				appliedThisPass = true
				break
			}
			if appliedThisPass {
				break
			}
		}

		if !appliedThisPass {
			return root, Result{Steps: steps, ReachedFixed: true}
		}
	}
}
