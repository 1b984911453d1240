package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
)

// constProc builds a five-instruction one-block procedure, used only to
// exceed a small step budget; its assertion's truth is irrelevant since
// the budget cuts execution off before Assert is reached.
func constProc() *bytecode.Procedure {
	return &bytecode.Procedure{
		Name: "checkFive",
		Blocks: []bytecode.Block{
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Const, Target: 0, Literal: 5},
					{Op: bytecode.Const, Target: 1, Literal: 5},
					{Op: bytecode.BinArithOp, Target: 2, Operands: []bytecode.Reg{0, 1}, Literal: "=="},
					{Op: bytecode.Assert, Operands: []bytecode.Reg{2}, Literal: "five equals five"},
					{Op: bytecode.Return},
				},
			},
		},
	}
}

func TestVerifyCaseNoDiagnosticsOnTautology(t *testing.T) {
	g := termgraph.New()
	ns := namespace.New()
	v := New(g, ns, subtype.Env{}, 0)

	// if (cond) { assert cond } else { return } -- the then branch's path
	// constraint already assumes cond, so asserting it back proves
	// directly, with no arithmetic reasoning required; the else branch
	// asserts nothing and just returns.
	proc := &bytecode.Procedure{
		Name: "trivial",
		Params: []bytecode.Param{
			{Reg: 0, Name: "cond"},
		},
		Blocks: []bytecode.Block{
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.If, Operands: []bytecode.Reg{0}},
				},
				Targets: []int{1, 2},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Assert, Operands: []bytecode.Reg{0}, Literal: "cond holds"},
					{Op: bytecode.Return},
				},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Return},
				},
			},
		},
	}

	diags := v.VerifyCase(proc)
	assert.Empty(t, diags)
}

func TestVerifyCaseContinuesPastUnverifiedAssertion(t *testing.T) {
	g := termgraph.New()
	ns := namespace.New()
	v := New(g, ns, subtype.Env{}, 0)

	// Two independent fresh booleans, each asserted without any
	// constraint forcing them true: both should be reported, proving the
	// verifier does not stop at the first failure.
	proc := &bytecode.Procedure{
		Name: "twoAsserts",
		Params: []bytecode.Param{
			{Reg: 0, Name: "a"},
			{Reg: 1, Name: "b"},
		},
		Blocks: []bytecode.Block{
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Assert, Operands: []bytecode.Reg{0}, Literal: "a holds"},
					{Op: bytecode.Assert, Operands: []bytecode.Reg{1}, Literal: "b holds"},
					{Op: bytecode.Return},
				},
			},
		},
	}

	diags := v.VerifyCase(proc)
	require.Len(t, diags, 2)
	assert.Equal(t, kerrors.ErrorUnverifiedAssertion, diags[0].Code)
	assert.Equal(t, kerrors.ErrorUnverifiedAssertion, diags[1].Code)
}

func TestVerifyCaseForksOnIf(t *testing.T) {
	g := termgraph.New()
	ns := namespace.New()
	v := New(g, ns, subtype.Env{}, 0)

	// if (cond) { assert cond } else { if (other) { assert other } else
	// { return } } -- each assert only needs to prove what its own fork
	// already assumed, so both succeed independent of the other.
	proc := &bytecode.Procedure{
		Name: "bothBranchesHold",
		Params: []bytecode.Param{
			{Reg: 0, Name: "cond"},
			{Reg: 1, Name: "other"},
		},
		Blocks: []bytecode.Block{
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.If, Operands: []bytecode.Reg{0}},
				},
				Targets: []int{1, 2},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Assert, Operands: []bytecode.Reg{0}, Literal: "cond holds in then"},
					{Op: bytecode.Return},
				},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.If, Operands: []bytecode.Reg{1}},
				},
				Targets: []int{3, 4},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Assert, Operands: []bytecode.Reg{1}, Literal: "other holds in nested then"},
					{Op: bytecode.Return},
				},
			},
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Return},
				},
			},
		},
	}

	diags := v.VerifyCase(proc)
	assert.Empty(t, diags, "each branch only needs to prove what it already assumed")
}

func TestVerifyCaseReportsIndeterminateOnStepBudget(t *testing.T) {
	g := termgraph.New()
	ns := namespace.New()
	v := New(g, ns, subtype.Env{}, 2)

	proc := constProc()
	diags := v.VerifyCase(proc)
	require.NotEmpty(t, diags)
	assert.Equal(t, kerrors.ErrorIndeterminate, diags[0].Code)
}

func TestVerifyCaseInvokeAssumesPostcondition(t *testing.T) {
	g := termgraph.New()
	ns := namespace.New()
	v := New(g, ns, subtype.Env{}, 0)

	// postcondition: result == true (encoded directly as a boolean var
	// named "result" that the verifier will substitute into).
	resultVar := g.Add(termgraph.State{Kind: termgraph.Var, Payload: "result"})
	ns.Declare("helper", &namespace.Declaration{
		Name: "helper",
		Body: -1,
		Cases: []namespace.MethodCase{
			{Params: nil, Precondition: -1, Postcondition: resultVar},
		},
	})

	proc := &bytecode.Procedure{
		Name: "callsHelper",
		Blocks: []bytecode.Block{
			{
				Instructions: []bytecode.Instruction{
					{Op: bytecode.Invoke, Target: 0, Literal: "helper"},
					{Op: bytecode.Assert, Operands: []bytecode.Reg{0}, Literal: "helper's result"},
					{Op: bytecode.Return},
				},
			},
		},
	}

	diags := v.VerifyCase(proc)
	assert.Empty(t, diags, "the callee's postcondition is assumed at the call site")
}
