package bytecode

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONReader implements Reader by decoding procedures from a single JSON
// document up front. It is the concrete deserializer for the Reader seam:
// an upstream compiled-bytecode file, read once and looked up by procedure
// name thereafter. The JSON schema is internal to
// this toolchain (there is no external wire format to match), so this
// reader is built directly on encoding/json rather than a schema-aware
// library from elsewhere in the stack.
type JSONReader struct {
	procs map[string]*Procedure
	order []string
}

// jsonInstruction mirrors Instruction with Op spelled out by name instead
// of its integer encoding, since integers aren't stable across changes to
// the Op enum.
type jsonInstruction struct {
	Op       string `json:"op"`
	Target   Reg    `json:"target"`
	Operands []Reg  `json:"operands"`
	Literal  any    `json:"literal"`
}

type jsonBlock struct {
	Instructions []jsonInstruction `json:"instructions"`
	Targets      []int             `json:"targets"`
}

type jsonParam struct {
	Reg  Reg    `json:"reg"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonProcedure struct {
	Name          string      `json:"name"`
	Params        []jsonParam `json:"params"`
	Blocks        []jsonBlock `json:"blocks"`
	Precondition  *Reg        `json:"precondition"`
	Postcondition *Reg        `json:"postcondition"`
	File          string      `json:"file"`
}

type jsonDocument struct {
	Procedures []jsonProcedure `json:"procedures"`
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if name != "" {
			m[name] = Op(op)
		}
	}
	return m
}()

// NewJSONReader reads and decodes path once, resolving instruction op
// names against Op's own string table so the schema can never drift from
// the enum it names.
func NewJSONReader(path string) (*JSONReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bytecode file: %w", err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding bytecode file: %w", err)
	}

	procs := make(map[string]*Procedure, len(doc.Procedures))
	order := make([]string, 0, len(doc.Procedures))
	for _, jp := range doc.Procedures {
		proc, err := jp.toProcedure()
		if err != nil {
			return nil, fmt.Errorf("procedure %s: %w", jp.Name, err)
		}
		procs[jp.Name] = proc
		order = append(order, jp.Name)
	}
	return &JSONReader{procs: procs, order: order}, nil
}

func (jp jsonProcedure) toProcedure() (*Procedure, error) {
	params := make([]Param, len(jp.Params))
	for i, p := range jp.Params {
		// Type is left unresolved (0) here: turning p.Type's name into a
		// term graph index needs the graph itself, which this decode step
		// doesn't have. The current verifier doesn't read Param.Type, so
		// this is deferred to whatever eventually needs declared parameter
		// types rather than invented against no consumer.
		params[i] = Param{Reg: p.Reg, Name: p.Name}
	}

	blocks := make([]Block, len(jp.Blocks))
	for i, jb := range jp.Blocks {
		instrs := make([]Instruction, len(jb.Instructions))
		for j, ji := range jb.Instructions {
			op, ok := opByName[ji.Op]
			if !ok {
				return nil, fmt.Errorf("unknown op %q", ji.Op)
			}
			instrs[j] = Instruction{Op: op, Target: ji.Target, Operands: ji.Operands, Literal: ji.Literal}
		}
		blocks[i] = Block{Instructions: instrs, Targets: jb.Targets}
	}

	return &Procedure{
		Name:          jp.Name,
		Params:        params,
		Blocks:        blocks,
		Precondition:  jp.Precondition,
		Postcondition: jp.Postcondition,
		File:          jp.File,
	}, nil
}

// ReadProcedure looks up a procedure already decoded from the JSON
// document by name.
func (r *JSONReader) ReadProcedure(name string) (*Procedure, error) {
	proc, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("no such procedure: %s", name)
	}
	return proc, nil
}

// Names returns every procedure name the reader knows about, in the order
// they appeared in the source document's array (a CLI verifying a whole
// file wants this order to be stable and match the input, not whatever
// order map iteration happens to produce).
func (r *JSONReader) Names() []string {
	return r.order
}
