// Package verify implements the branching verifier: it symbolically
// executes a procedure's bytecode over its control-flow graph, forking a
// Branch at each conditional or loop back-edge, and at each Assert hands
// the transformer's negated predicate (conjoined with the branch's path
// constraint) to the subtype engine's emptiness test.
package verify

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/namespace"
	"kanso/internal/source"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
	"kanso/internal/vcgen"
)

// Branch is one symbolic execution path: the term graph index each
// register currently holds, the accumulated path constraint (a
// conjunction of every branch condition and Assume assumed so far), and
// the block/instruction cursor.
type Branch struct {
	ID         string // ksuid, distinguishes branches in diagnostics and logs
	Registers  map[bytecode.Reg]int
	Constraint int // term graph index of the boolean path constraint
	Block      int
	PC         int
}

func newBranch(g *termgraph.Graph, from *Branch) *Branch {
	regs := make(map[bytecode.Reg]int, len(from.Registers))
	for k, v := range from.Registers {
		regs[k] = v
	}
	return &Branch{
		ID:         ksuid.New().String(),
		Registers:  regs,
		Constraint: from.Constraint,
		Block:      from.Block,
		PC:         from.PC,
	}
}

// Verifier runs one procedure's bytecode to completion, collecting every
// unverified assertion rather than stopping at the first: verification
// continues past an unverified assertion, assuming it held, so later
// assertions in the same procedure are still checked.
type Verifier struct {
	g         *termgraph.Graph
	tr        *vcgen.Transformer
	ns        *namespace.Resolver
	env       subtype.Env
	maxSteps  int
	diags     []kerrors.CompilerError
	indeterminate int
}

// New returns a Verifier sharing g with the rest of the compilation
// pipeline, so register contents and declared types live in the same
// graph the subtype engine decides over.
func New(g *termgraph.Graph, ns *namespace.Resolver, env subtype.Env, maxSteps int) *Verifier {
	return &Verifier{
		g:        g,
		tr:       vcgen.New(g),
		ns:       ns,
		env:      env,
		maxSteps: maxSteps,
	}
}

// VerifyCase runs proc's body from its precondition (if any) and returns
// every diagnostic produced. An empty result means every assertion
// verified.
func (v *Verifier) VerifyCase(proc *bytecode.Procedure) []kerrors.CompilerError {
	v.diags = nil
	v.indeterminate = 0

	// The path constraint starts at Any rather than a boolean literal:
	// Any is the identity element the subtype engine's absorbing rule gives Intersection, so
	// conjoining the first real condition onto it reduces cleanly instead
	// of pairing two unrelated leaf kinds (a value-level true literal and
	// a proposition atom are not the same kind of term to this engine).
	init := &Branch{ID: ksuid.New().String(), Registers: make(map[bytecode.Reg]int), Constraint: v.g.Add(termgraph.State{Kind: termgraph.Any})}
	for _, p := range proc.Params {
		// Deterministic: named parameters hash-cons to the same index
		// everywhere that name is referenced, which invoke's formal
		// substitution below relies on to find the right node.
		init.Registers[p.Reg] = v.g.Add(termgraph.State{Kind: termgraph.Var, Payload: p.Name, Deterministic: true})
	}
	if proc.Precondition != nil {
		if pre, ok := init.Registers[*proc.Precondition]; ok {
			init.Constraint = v.tr.Conjoin(init.Constraint, pre)
		}
	}

	steps := 0
	work := []*Branch{init}
	for len(work) > 0 {
		b := work[0]
		work = work[1:]

		for {
			steps++
			if v.maxSteps > 0 && steps > v.maxSteps {
				v.diags = append(v.diags, kerrors.IndeterminateResult(
					fmt.Sprintf("procedure %s", proc.Name), "step", stepPos(proc, b)))
				v.indeterminate++
				break
			}
			if b.Block < 0 || b.Block >= len(proc.Blocks) {
				break
			}
			block := proc.Blocks[b.Block]
			if b.PC >= len(block.Instructions) {
				if len(block.Targets) == 0 {
					break
				}
				// Fallthrough to a single successor (e.g. Loop's "after"
				// edge reached with no further instructions in this block).
				b.Block = block.Targets[len(block.Targets)-1]
				b.PC = 0
				continue
			}

			instr := block.Instructions[b.PC]
			next, forks, stop := v.step(proc, block, b, instr)
			for _, f := range forks {
				work = append(work, f)
			}
			if stop {
				break
			}
			b = next
		}
	}

	return v.diags
}

// step executes one instruction against b, returning the branch to
// continue on (may be b itself, mutated), any additional branches forked
// off (If/IfIs/Loop/ForAll produce one), and whether execution of b ends
// here (Return/Throw). An unsupported op is reported as Indeterminate and
// execution continues past it.
func (v *Verifier) step(proc *bytecode.Procedure, block bytecode.Block, b *Branch, instr bytecode.Instruction) (*Branch, []*Branch, bool) {
	if instr.Op.Unsupported() {
		v.diags = append(v.diags, kerrors.IndeterminateResult(
			fmt.Sprintf("%s (unsupported bytecode %s)", proc.Name, instr.Op), "model", instr.Pos))
		v.indeterminate++
		b.PC++
		return b, nil, false
	}

	switch instr.Op {
	case bytecode.Const:
		b.Registers[instr.Target] = v.tr.Const(instr.Literal)
		b.PC++
		return b, nil, false

	case bytecode.Assign, bytecode.Move:
		if len(instr.Operands) == 1 {
			b.Registers[instr.Target] = b.Registers[instr.Operands[0]]
		}
		b.PC++
		return b, nil, false

	case bytecode.BinArithOp:
		op, _ := instr.Literal.(string)
		a, c := b.Registers[instr.Operands[0]], b.Registers[instr.Operands[1]]
		switch op {
		case "==":
			b.Registers[instr.Target] = v.tr.Equals(a, c)
		case "<":
			b.Registers[instr.Target] = v.tr.LessThan(a, c)
		default:
			b.Registers[instr.Target] = v.tr.BinArith(op, a, c)
		}
		b.PC++
		return b, nil, false

	case bytecode.UnArithOp:
		op, _ := instr.Literal.(string)
		b.Registers[instr.Target] = v.tr.UnArith(op, b.Registers[instr.Operands[0]])
		b.PC++
		return b, nil, false

	case bytecode.BinSetOp:
		op, _ := instr.Literal.(string)
		b.Registers[instr.Target] = v.tr.BinSet(op, b.Registers[instr.Operands[0]], b.Registers[instr.Operands[1]])
		b.PC++
		return b, nil, false

	case bytecode.NewList:
		b.Registers[instr.Target] = v.tr.NewList(v.regs(b, instr.Operands)...)
		b.PC++
		return b, nil, false

	case bytecode.NewSet:
		b.Registers[instr.Target] = v.tr.NewSet(v.regs(b, instr.Operands)...)
		b.PC++
		return b, nil, false

	case bytecode.NewTuple:
		b.Registers[instr.Target] = v.tr.NewTuple(v.regs(b, instr.Operands)...)
		b.PC++
		return b, nil, false

	case bytecode.NewRecord:
		fields, _ := instr.Literal.([]string)
		vals := v.regs(b, instr.Operands)
		m := make(map[string]int, len(fields))
		for i, f := range fields {
			if i < len(vals) {
				m[f] = vals[i]
			}
		}
		b.Registers[instr.Target] = v.tr.NewRecord(m)
		b.PC++
		return b, nil, false

	case bytecode.FieldLoad:
		field, _ := instr.Literal.(string)
		b.Registers[instr.Target] = v.tr.FieldOf(b.Registers[instr.Operands[0]], field)
		b.PC++
		return b, nil, false

	case bytecode.TupleLoad:
		idx, _ := instr.Literal.(int)
		b.Registers[instr.Target] = v.tr.TupleLoad(b.Registers[instr.Operands[0]], idx)
		b.PC++
		return b, nil, false

	case bytecode.IndexOf:
		b.Registers[instr.Target] = v.tr.IndexOf(b.Registers[instr.Operands[0]], b.Registers[instr.Operands[1]])
		b.PC++
		return b, nil, false

	case bytecode.LengthOf:
		b.Registers[instr.Target] = v.tr.LengthOf(b.Registers[instr.Operands[0]])
		b.PC++
		return b, nil, false

	case bytecode.Update:
		field, _ := instr.Literal.(string)
		newVal := b.Registers[instr.Operands[len(instr.Operands)-1]]
		root := b.Registers[instr.Operands[0]]
		b.Registers[instr.Target] = v.tr.Update(root, []vcgen.PathStep{{Field: field}}, newVal)
		b.PC++
		return b, nil, false

	case bytecode.Assert:
		v.checkAssert(proc, instr, b)
		b.PC++
		return b, nil, false

	case bytecode.If:
		cond := b.Registers[instr.Operands[0]]
		then := newBranch(v.g, b)
		then.Constraint = v.tr.Conjoin(b.Constraint, cond)
		then.Block, then.PC = block.Targets[0], 0

		els := b
		els.Constraint = v.tr.Conjoin(b.Constraint, v.tr.Negate(cond))
		if len(block.Targets) > 1 {
			els.Block, els.PC = block.Targets[1], 0
		} else {
			// No explicit else target: the fork has only a then-arm, so
			// the else path falls through to the next instruction in
			// this same block instead of looping back onto the If.
			els.PC++
		}
		return els, []*Branch{then}, false

	case bytecode.IfIs:
		v_, ty := b.Registers[instr.Operands[0]], b.Registers[instr.Operands[1]]
		isTerm := v.tr.Is(v_, ty)
		then := newBranch(v.g, b)
		then.Constraint = v.tr.Conjoin(b.Constraint, isTerm)
		then.Block, then.PC = block.Targets[0], 0

		els := b
		els.Constraint = v.tr.Conjoin(b.Constraint, v.tr.Negate(isTerm))
		if len(block.Targets) > 1 {
			els.Block, els.PC = block.Targets[1], 0
		} else {
			els.PC++
		}
		return els, []*Branch{then}, false

	case bytecode.Loop, bytecode.ForAll:
		// Loop back-edges are modeled by havocking the loop-carried
		// registers (forcing them to fresh variables) rather than
		// unrolling: the verifier needs to reach a fixpoint in one pass,
		// not simulate every iteration.
		for _, reg := range instr.Operands {
			b.Registers[reg] = v.tr.Fresh(fmt.Sprintf("loop-reg-%d", reg))
		}
		body := newBranch(v.g, b)
		body.Block, body.PC = block.Targets[0], 0

		after := b
		if len(block.Targets) > 1 {
			after.Block, after.PC = block.Targets[1], 0
		}
		return after, []*Branch{body}, false

	case bytecode.Invoke:
		v.invoke(instr, b)
		b.PC++
		return b, nil, false

	case bytecode.Return, bytecode.Throw:
		return b, nil, true

	case bytecode.Nop, bytecode.Debug:
		b.PC++
		return b, nil, false

	default:
		b.PC++
		return b, nil, false
	}
}

func (v *Verifier) regs(b *Branch, rs []bytecode.Reg) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = b.Registers[r]
	}
	return out
}

// checkAssert builds the negated predicate, conjoins it with the branch's
// path constraint, and asks the subtype engine whether that conjunction
// is void -- void means no reachable state violates the assertion, so it
// verifies; not void is reported as unverified.
func (v *Verifier) checkAssert(proc *bytecode.Procedure, instr bytecode.Instruction, b *Branch) {
	pred := b.Registers[instr.Operands[0]]
	negated := v.tr.Negate(pred)
	conjoined := v.tr.Conjoin(b.Constraint, negated)

	eng := subtype.New(v.g, v.env)
	void, err := eng.IsVoid(conjoined)
	if err != nil {
		v.diags = append(v.diags, kerrors.InternalVerifierFailure(err.Error(), instr.Pos))
		return
	}
	if eng.BudgetExhausted() {
		v.diags = append(v.diags, kerrors.IndeterminateResult(fmt.Sprintf("assertion in %s", proc.Name), "recursion or rewrite", instr.Pos))
		v.indeterminate++
		return
	}
	if !void {
		label, _ := instr.Literal.(string)
		if label == "" {
			label = "<assertion>"
		}
		v.diags = append(v.diags, kerrors.UnverifiedAssertion(label, instr.Pos))
	}
	// Verified or not, assume it from here on, narrowing later branches.
	b.Constraint = v.tr.Conjoin(b.Constraint, pred)
}

// invoke looks up the callee's postcondition through the namespace
// collaborator, havocs the registers it may write, substitutes actuals
// for its formal parameters, and assumes the substituted postcondition --
// it never re-verifies the callee's own body (that already happened when
// the callee itself was verified).
func (v *Verifier) invoke(instr bytecode.Instruction, b *Branch) {
	name, _ := instr.Literal.(string)
	cases, err := v.ns.MethodCases(name)
	if err != nil || len(cases) == 0 {
		b.Registers[instr.Target] = v.tr.Fresh("call:" + name)
		return
	}

	result := v.tr.Fresh("call:" + name)
	for _, c := range cases {
		if c.Postcondition < 0 {
			continue
		}
		post := c.Postcondition
		for i, paramName := range c.Params {
			if i >= len(instr.Operands) {
				break
			}
			formal := v.g.Add(termgraph.State{Kind: termgraph.Var, Payload: paramName, Deterministic: true})
			post = v.g.Substitute(post, formal, b.Registers[instr.Operands[i]])
		}
		// The result register is the substituted postcondition term
		// itself, not merely constrained by it: a boolean-returning
		// case's postcondition describes exactly the value returned.
		result = post
		b.Constraint = v.tr.Conjoin(b.Constraint, post)
	}
	b.Registers[instr.Target] = result
}

// stepPos returns the source position of b's current instruction, for
// diagnostics raised outside checkAssert (e.g. the step-budget cutoff).
func stepPos(proc *bytecode.Procedure, b *Branch) source.Position {
	if b.Block < 0 || b.Block >= len(proc.Blocks) {
		return source.Position{Filename: proc.File}
	}
	block := proc.Blocks[b.Block]
	if b.PC < 0 || b.PC >= len(block.Instructions) {
		return source.Position{Filename: proc.File}
	}
	return block.Instructions[b.PC].Pos
}
