package bytecode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"procedures": [
		{
			"name": "checkPositive",
			"params": [{"reg": 0, "name": "amount", "type": "Int"}],
			"blocks": [
				{
					"instructions": [
						{"op": "Assert", "operands": [0], "literal": "amount positive"},
						{"op": "Return"}
					],
					"targets": []
				}
			]
		}
	]
}`

func TestJSONReaderDecodesProcedure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bc.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	r, err := NewJSONReader(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkPositive"}, r.Names())

	proc, err := r.ReadProcedure("checkPositive")
	require.NoError(t, err)
	assert.Equal(t, "checkPositive", proc.Name)
	require.Len(t, proc.Blocks, 1)
	require.Len(t, proc.Blocks[0].Instructions, 2)
	assert.Equal(t, Assert, proc.Blocks[0].Instructions[0].Op)
	assert.Equal(t, Return, proc.Blocks[0].Instructions[1].Op)
}

func TestJSONReaderUnknownProcedure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bc.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	r, err := NewJSONReader(path)
	require.NoError(t, err)

	_, err = r.ReadProcedure("missing")
	assert.Error(t, err)
}

func TestJSONReaderRejectsUnknownOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bc.json")
	bad := `{"procedures":[{"name":"x","blocks":[{"instructions":[{"op":"Bogus"}]}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := NewJSONReader(path)
	assert.Error(t, err)
}
