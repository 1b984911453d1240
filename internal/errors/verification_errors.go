package errors

import (
	"fmt"

	"kanso/internal/source"
)

// UnverifiedAssertion creates a diagnostic for an assertion that the
// verifier could not prove holds along every path reaching it.
func UnverifiedAssertion(condition string, pos source.Position) CompilerError {
	return NewSemanticError(ErrorUnverifiedAssertion,
		fmt.Sprintf("assertion '%s' is not verified", condition), pos).
		WithHelp("the verifier could not prove this condition holds on every path; strengthen a preceding require or narrow the asserted type").
		WithNote("this is not necessarily a bug: the procedure is sound but not complete, so a real invariant can still be rejected").
		Build()
}

// ResolutionFailure creates a diagnostic for a name the namespace
// collaborator could not resolve.
func ResolutionFailure(name string, pos source.Position) CompilerError {
	return NewSemanticError(ErrorResolutionFailure,
		fmt.Sprintf("could not resolve '%s'", name), pos).
		WithSuggestion("check that the name is declared and imported").
		Build()
}

// InternalVerifierFailure creates a diagnostic for an invariant violation
// inside the verifier itself, as opposed to a property of the program
// being checked.
func InternalVerifierFailure(detail string, pos source.Position) CompilerError {
	return NewSemanticError(ErrorInternalFailure,
		fmt.Sprintf("internal verifier error: %s", detail), pos).
		WithHelp("this indicates a defect in the verifier, not in the program being checked").
		Build()
}

// IndeterminateResult creates a diagnostic reporting that a rewrite or
// nominal-unfolding budget was exhausted before isVoid/isSubtype reached a
// definite answer. Indeterminate is not a claim that the program is wrong.
func IndeterminateResult(what, budgetKind string, pos source.Position) CompilerError {
	return NewSemanticWarning(ErrorIndeterminate,
		fmt.Sprintf("could not determine whether %s within the %s budget", what, budgetKind), pos).
		WithSuggestion("raise the budget with -budget or -recursion-budget and retry").
		WithNote("an indeterminate result is neither an accepted nor a rejected program").
		Build()
}

// ResolutionError is a plain Go error returned by collaborators (namespace
// resolvers, lifetime relations) that cannot be reached from a position in
// the original source — e.g. while unfolding a nominal type deep inside
// the subtype engine. internal/verify attaches a position when it turns
// one of these into a CompilerError via ResolutionFailure.
type ResolutionError struct {
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q", e.Name)
}

// InternalError is a plain Go error for invariants the verification core
// expects to hold but found violated, independent of any source position.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Detail)
}

// BudgetExceeded is a plain Go error signaling that a rewrite step budget
// or nominal-unfolding recursion budget ran out. It is not a failure: the
// caller is expected to surface it as an Indeterminate diagnostic rather
// than treat it as a verification failure or a crash.
type BudgetExceeded struct {
	Budget string // "rewrite" or "recursion"
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("%s budget exhausted", e.Budget)
}
