package verify

import (
	"sync"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"

	"github.com/segmentio/ksuid"
)

// Task is one procedure to verify, with its own term graph: every
// verification task gets an independent graph, so tasks never contend
// over graph state, only over the shared namespace.Resolver cache (which
// is its own lock, not this package's).
type Task struct {
	ID    string
	Graph *termgraph.Graph
	Proc  *bytecode.Procedure
	Env   subtype.Env
}

// Pool runs verification tasks concurrently on a fixed number of worker
// goroutines, each task against its own graph and Verifier, fanned in
// over a single results channel rather than a bespoke scheduler.
type Pool struct {
	ns       *namespace.Resolver
	maxSteps int
	workers  int
}

// NewPool returns a Pool sharing ns across every task it runs (the one
// resource tasks legitimately share) and running up to workers tasks
// concurrently.
func NewPool(ns *namespace.Resolver, maxSteps, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{ns: ns, maxSteps: maxSteps, workers: workers}
}

// Result pairs a Task's ID with the diagnostics its verification produced.
type Result struct {
	TaskID string
	Diags  []kerrors.CompilerError
}

// Run verifies every task, at most p.workers at a time, and returns one
// Result per task (order not guaranteed to match the input order, since
// tasks complete at different times -- callers that need input order
// should key off Result.TaskID).
func (p *Pool) Run(tasks []*Task) []Result {
	in := make(chan *Task)
	out := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range in {
				v := New(t.Graph, p.ns, t.Env, p.maxSteps)
				diags := v.VerifyCase(t.Proc)
				out <- Result{TaskID: t.ID, Diags: diags}
			}
		}()
	}

	go func() {
		for _, t := range tasks {
			if t.ID == "" {
				t.ID = ksuid.New().String()
			}
			in <- t
		}
		close(in)
	}()

	wg.Wait()
	close(out)

	results := make([]Result, 0, len(tasks))
	for r := range out {
		results = append(results, r)
	}
	return results
}
