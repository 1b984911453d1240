// Package lifetime implements the LifetimeRelation collaborator: a
// partial order outlives(a,b) over lifetime identifiers, consulted by
// internal/subtype when deciding Reference subtyping.
package lifetime

// Relation is a partial order over lifetime identifiers, built from a set
// of declared outlives edges (e.g. `'a: 'b` meaning 'a outlives 'b) and
// closed under transitivity. It implements subtype.LifetimeRelation.
type Relation struct {
	outlives map[string]map[string]bool
}

// New returns an empty relation. Every lifetime outlives itself by
// reflexivity, established lazily the first time it is mentioned.
func New() *Relation {
	return &Relation{outlives: make(map[string]map[string]bool)}
}

// Declare records that a outlives b directly, then recomputes the
// transitive closure. Call sites are expected to be front-end lifetime
// declarations processed once before verification begins; Declare is not
// meant to be called concurrently with Outlives.
func (r *Relation) Declare(a, b string) {
	r.edge(a, b)
	r.edge(a, a)
	r.edge(b, b)
	r.closeTransitively()
}

func (r *Relation) edge(a, b string) {
	if r.outlives[a] == nil {
		r.outlives[a] = make(map[string]bool)
	}
	r.outlives[a][b] = true
}

func (r *Relation) closeTransitively() {
	// Naive fixpoint closure: small lifetime counts in practice (function
	// and struct generic parameters), so O(n^3) worst case is fine.
	changed := true
	for changed {
		changed = false
		for a, outs := range r.outlives {
			for b := range outs {
				for c := range r.outlives[b] {
					if !r.outlives[a][c] {
						r.edge(a, c)
						changed = true
					}
				}
			}
		}
	}
}

// Outlives reports whether a outlives b under the declared partial order.
// An undeclared lifetime is only known to outlive itself.
func (r *Relation) Outlives(a, b string) bool {
	if a == b {
		return true
	}
	return r.outlives[a] != nil && r.outlives[a][b]
}
