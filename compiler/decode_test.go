package compiler

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// JSON AST decoding tests
// ---------------------------------------------------------------------------

func TestDecodeProgram(t *testing.T) {
	src := `{
		"type": "program",
		"body": [
			{"type": "set", "name": "i", "value": {"type": "literal", "value": 0}},
			{"type": "while",
			 "cond": {"type": "send",
			          "receiver": {"type": "get", "name": "i"},
			          "message": "<",
			          "args": [{"type": "literal", "value": 3}]},
			 "body": [
				{"type": "set", "name": "i",
				 "value": {"type": "send",
				           "receiver": {"type": "get", "name": "i"},
				           "message": "+",
				           "args": [{"type": "literal", "value": 1}]}}
			 ]}
		]
	}`

	node, err := DecodeProgram(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeProgram failed: %v", err)
	}
	prog, ok := node.(*Program)
	if !ok {
		t.Fatalf("decoded %T, want *Program", node)
	}
	if len(prog.Body) != 2 {
		t.Fatalf("body length = %d, want 2", len(prog.Body))
	}

	assign, ok := prog.Body[0].(*Assign)
	if !ok || assign.Name != "i" {
		t.Fatalf("first statement = %#v, want assignment to i", prog.Body[0])
	}
	lit, ok := assign.Value.(*Literal)
	if !ok || lit.Value != 0.0 {
		t.Errorf("assignment value = %#v, want literal 0", assign.Value)
	}

	loop, ok := prog.Body[1].(*While)
	if !ok {
		t.Fatalf("second statement = %T, want *While", prog.Body[1])
	}
	cond, ok := loop.Cond.(*Send)
	if !ok || cond.Message != "<" || len(cond.Args) != 1 {
		t.Errorf("loop condition = %#v, want send of <", loop.Cond)
	}

	// The decoded tree compiles and runs like a hand-built one.
	ctx := mainContext(t, compileAndRun(t, node))
	if ctx.Variables["i"] != 3.0 {
		t.Errorf("i = %v after running decoded program, want 3", ctx.Variables["i"])
	}
}

func TestDecodeClosureAndControlFlow(t *testing.T) {
	src := `{
		"type": "program",
		"body": [
			{"type": "set", "name": "f",
			 "value": {"type": "proc",
			           "body": [{"type": "return", "value": {"type": "literal", "value": 7}}]}},
			{"type": "if",
			 "cond": {"type": "literal", "value": true},
			 "then": [{"type": "set", "name": "x",
			           "value": {"type": "send",
			                     "receiver": {"type": "get", "name": "f"},
			                     "message": "value"}}],
			 "else": [{"type": "set", "name": "x", "value": {"type": "literal", "value": 0}}]}
		]
	}`

	node, err := DecodeProgram(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeProgram failed: %v", err)
	}
	ctx := mainContext(t, compileAndRun(t, node))
	if ctx.Variables["x"] != 7.0 {
		t.Errorf("x = %v, want 7", ctx.Variables["x"])
	}
}

func TestDecodeListLiteral(t *testing.T) {
	src := `{"type": "program", "body": [
		{"type": "set", "name": "n",
		 "value": {"type": "send",
		           "receiver": {"type": "literal", "value": [1, 2, 3]},
		           "message": "length"}}
	]}`

	node, err := DecodeProgram(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeProgram failed: %v", err)
	}
	ctx := mainContext(t, compileAndRun(t, node))
	if ctx.Variables["n"] != 3.0 {
		t.Errorf("n = %v, want 3", ctx.Variables["n"])
	}
}

func TestDecodeUnknownTypeFails(t *testing.T) {
	if _, err := DecodeProgram(strings.NewReader(`{"type": "frob"}`)); err == nil {
		t.Error("unknown node type should fail to decode")
	}
}

func TestDecodeMalformedJSONFails(t *testing.T) {
	if _, err := DecodeProgram(strings.NewReader(`{"type": "program",`)); err == nil {
		t.Error("malformed JSON should fail to decode")
	}
}

// Absent fields decode to nil so that validation, not decoding, reports them.
func TestDecodeMissingFieldsSurfaceInValidation(t *testing.T) {
	node, err := DecodeProgram(strings.NewReader(`{"type": "program", "body": [{"type": "send", "message": "+"}]}`))
	if err != nil {
		t.Fatalf("DecodeProgram failed: %v", err)
	}
	if err := Validate(node); err == nil {
		t.Error("a send without a receiver should fail validation")
	}
}
