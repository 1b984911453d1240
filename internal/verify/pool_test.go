package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanso/internal/bytecode"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
)

func ifCondAssertCondProc(name string) *bytecode.Procedure {
	return &bytecode.Procedure{
		Name: name,
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
}

func TestPoolRunsEachTaskOnItsOwnGraph(t *testing.T) {
	ns := namespace.New()
	pool := NewPool(ns, 0, 4)

	var tasks []*Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, &Task{
			Graph: termgraph.New(),
			Proc:  ifCondAssertCondProc("proc"),
			Env:   subtype.Env{},
		})
	}

	results := pool.Run(tasks)
	require.Len(t, results, 6)
	seen := make(map[string]bool)
	for _, r := range results {
		assert.Empty(t, r.Diags)
		assert.NotEmpty(t, r.TaskID)
		seen[r.TaskID] = true
	}
	assert.Len(t, seen, 6, "every task gets a distinct id")
}
