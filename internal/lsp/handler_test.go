package lsp_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/lsp"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
	"kanso/internal/verify"
)

const tautologyDoc = `{
  "procedures": [
    {
      "name": "checkFive",
      "params": [],
      "blocks": [
        {
          "instructions": [
            {"op": "Const", "target": 0, "literal": 5},
            {"op": "Const", "target": 1, "literal": 5},
            {"op": "BinArithOp", "target": 2, "operands": [0, 1], "literal": "=="},
            {"op": "Assert", "operands": [2], "literal": "five equals five"},
            {"op": "Return"}
          ]
        }
      ]
    }
  ]
}`

const unverifiedDoc = `{
  "procedures": [
    {
      "name": "checkUnknown",
      "params": [{"reg": 0, "name": "x", "type": ""}],
      "blocks": [
        {
          "instructions": [
            {"op": "Assert", "operands": [0], "literal": "x holds"},
            {"op": "Return"}
          ]
        }
      ]
    }
  ]
}`

// writeBytecodeFixture writes doc to a temp file and returns its path,
// mirroring the JSON document a real build would hand the LSP server.
func writeBytecodeFixture(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// runViaPool decodes path exactly as KansoHandler.verifyAndPublish does
// and returns the combined diagnostics, without going through glsp.Context
// (whose Notify callback is only wired up by a running server).
func runViaPool(t *testing.T, path string) []kerrors.CompilerError {
	t.Helper()

	reader, err := bytecode.NewJSONReader(path)
	require.NoError(t, err)

	env := subtype.Env{RecursionBudget: 64, RewriteBudget: 10000}
	var tasks []*verify.Task
	for _, name := range reader.Names() {
		proc, err := reader.ReadProcedure(name)
		require.NoError(t, err)
		tasks = append(tasks, &verify.Task{Graph: termgraph.New(), Proc: proc, Env: env})
	}

	var diags []kerrors.CompilerError
	pool := verify.NewPool(namespace.New(), 10000, 4)
	for _, r := range pool.Run(tasks) {
		diags = append(diags, r.Diags...)
	}
	return diags
}

func TestVerifyAndPublishNoDiagnosticsOnProvenAssert(t *testing.T) {
	path := writeBytecodeFixture(t, tautologyDoc)
	diags := runViaPool(t, path)
	assert.Empty(t, diags, "a tautological assertion should produce no diagnostics")
}

func TestVerifyAndPublishReportsUnverifiedAssert(t *testing.T) {
	path := writeBytecodeFixture(t, unverifiedDoc)
	diags := runViaPool(t, path)
	require.NotEmpty(t, diags, "an assertion over an unconstrained parameter should be flagged")

	lspDiags := lsp.ConvertVerifyDiagnostics(diags)
	require.Len(t, lspDiags, len(diags))
	assert.Equal(t, "kanso-verify", *lspDiags[0].Source)
}

func TestJSONReaderRejectsUnknownOp(t *testing.T) {
	path := writeBytecodeFixture(t, `{"procedures":[{"name":"bad","blocks":[{"instructions":[{"op":"NotARealOp"}]}]}]}`)
	_, err := bytecode.NewJSONReader(path)
	assert.Error(t, err)
}
