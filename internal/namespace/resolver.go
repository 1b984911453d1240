// Package namespace implements the verification core's name-resolution
// collaborator: resolving a qualified name to a declaration (a nominal's
// body type, or a method's cases), unfolding nominals for internal/subtype,
// and exposing method preconditions and postconditions to internal/verify.
//
// Its declaration cache is the one shared, mutable resource a verification
// task touches outside its own term graph, so it is guarded with a
// deadlock-detecting mutex rather than a plain sync.Mutex: concurrent tasks
// that both block trying to resolve the same cyclic nominal fail loudly in
// tests instead of hanging.
package namespace

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"
	kerrors "kanso/internal/errors"
	"kanso/internal/termgraph"
)

// MethodCase is one verifiable case of a method: its formal parameters and
// the term graph indices of the precondition/postcondition the verifier
// checks against.
type MethodCase struct {
	Params         []string
	Precondition   int // term graph index of the boolean precondition, or -1
	Postcondition  int // term graph index of the boolean postcondition, or -1
	Body           any // opaque handle to the bytecode reader collaborator
}

// Declaration is what a resolved name provides to the rest of the
// toolchain: a nominal's body type (for unfolding) and, for a method
// declaration, its cases.
type Declaration struct {
	Name string
	Body int // term graph index of the declared type; -1 for methods
	Cases []MethodCase
}

// Resolver is the namespace / name resolver collaborator. It is safe for
// concurrent use: every verification task sharing a Resolver may unfold
// nominals concurrently.
type Resolver struct {
	mu    deadlock.Mutex
	decls map[string]*Declaration
}

// New returns an empty resolver. Declarations are registered with
// Declare before verification begins; Resolver does not read source
// itself -- everything reaches it already parsed and recorded.
func New() *Resolver {
	return &Resolver{decls: make(map[string]*Declaration)}
}

// Declare registers or replaces a declaration under name.
func (r *Resolver) Declare(name string, decl *Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls[name] = decl
}

// Resolve looks up a qualified name's declaration.
func (r *Resolver) Resolve(name string) (*Declaration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decls[name]
	if !ok {
		return nil, &kerrors.ResolutionError{Name: name}
	}
	return d, nil
}

// Unfold implements subtype.NominalResolver: it looks up name's
// declaration and returns its body type's index in g. Since every
// declaration's body was built against the same shared term graph, this
// is just a lookup, not a re-parse -- the "unfold" is conceptually
// instantaneous; the cost in the subtype engine comes from re-normalizing
// and re-deciding over the unfolded structure, not from this call.
func (r *Resolver) Unfold(name string, g *termgraph.Graph) (int, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return 0, err
	}
	if d.Body < 0 {
		return 0, &kerrors.InternalError{Detail: fmt.Sprintf("%q has no body type to unfold (it is a method declaration)", name)}
	}
	return d.Body, nil
}

// MethodCases returns the verifiable cases of a method declaration.
func (r *Resolver) MethodCases(name string) ([]MethodCase, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return d.Cases, nil
}
