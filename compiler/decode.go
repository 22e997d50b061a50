package compiler

import (
	"encoding/json"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// JSON AST decoding
// ---------------------------------------------------------------------------
// The editor exports authored block trees as JSON. Each node is an object
// with a "type" discriminator:
//
//	{"type":"program","body":[...]}
//	{"type":"literal","value":...}
//	{"type":"get","name":"x"}
//	{"type":"set","name":"x","value":{...}}
//	{"type":"send","receiver":{...},"message":"+","args":[...]}
//	{"type":"proc","body":[...]}
//	{"type":"return","value":{...}}
//	{"type":"if","cond":{...},"then":[...],"else":[...]}
//	{"type":"while","cond":{...},"body":[...]}

type jsonNode struct {
	Type     string            `json:"type"`
	Value    json.RawMessage   `json:"value"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Receiver json.RawMessage   `json:"receiver"`
	Args     []json.RawMessage `json:"args"`
	Cond     json.RawMessage   `json:"cond"`
	Then     []json.RawMessage `json:"then"`
	Else     []json.RawMessage `json:"else"`
	Body     []json.RawMessage `json:"body"`
}

// DecodeProgram reads a JSON-encoded AST from r.
func DecodeProgram(r io.Reader) (Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	return decodeNode(data)
}

func decodeNode(data []byte) (Node, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	switch jn.Type {
	case "program":
		body, err := decodeList(jn.Body)
		if err != nil {
			return nil, err
		}
		return &Program{Body: body}, nil
	case "literal":
		var v any
		if len(jn.Value) > 0 {
			if err := json.Unmarshal(jn.Value, &v); err != nil {
				return nil, fmt.Errorf("decode literal: %w", err)
			}
		}
		return &Literal{Value: v}, nil
	case "get":
		return &VariableRef{Name: jn.Name}, nil
	case "set":
		value, err := decodeOptional(jn.Value)
		if err != nil {
			return nil, err
		}
		return &Assign{Name: jn.Name, Value: value}, nil
	case "send":
		receiver, err := decodeOptional(jn.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := decodeList(jn.Args)
		if err != nil {
			return nil, err
		}
		return &Send{Receiver: receiver, Message: jn.Message, Args: args}, nil
	case "proc":
		body, err := decodeList(jn.Body)
		if err != nil {
			return nil, err
		}
		return &ProcedureLiteral{Body: body}, nil
	case "return":
		value, err := decodeOptional(jn.Value)
		if err != nil {
			return nil, err
		}
		return &Return{Value: value}, nil
	case "if":
		cond, err := decodeOptional(jn.Cond)
		if err != nil {
			return nil, err
		}
		thenBody, err := decodeList(jn.Then)
		if err != nil {
			return nil, err
		}
		elseBody, err := decodeList(jn.Else)
		if err != nil {
			return nil, err
		}
		return &If{Cond: cond, Then: thenBody, Else: elseBody}, nil
	case "while":
		cond, err := decodeOptional(jn.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeList(jn.Body)
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil
	default:
		return nil, fmt.Errorf("decode node: unknown type %q", jn.Type)
	}
}

// decodeOptional decodes a node, or returns nil for an absent field so that
// validation, not decoding, reports the missing piece.
func decodeOptional(data json.RawMessage) (Node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return decodeNode(data)
}

func decodeList(items []json.RawMessage) ([]Node, error) {
	if len(items) == 0 {
		return nil, nil
	}
	nodes := make([]Node, len(items))
	for i, item := range items {
		n, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}
