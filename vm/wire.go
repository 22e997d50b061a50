package vm

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Wire encoding of snapshots
// ---------------------------------------------------------------------------
// The editor diff-renders context state between steps. ContextJSON is that
// contract; it is serializable both as JSON and as canonical CBOR, the
// latter for deterministic byte-for-byte snapshot comparison.

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ContextJSON is the serialized form of one activation record.
type ContextJSON struct {
	Variables map[string]Value `json:"variables" cbor:"variables"`
	Stack     []Value          `json:"stack" cbor:"stack"`
	PC        int              `json:"pc" cbor:"pc"`
}

// MachineJSON is the serialized form of one machine snapshot.
type MachineJSON struct {
	CallStack []ContextJSON `json:"callStack" cbor:"callStack"`
	Running   bool          `json:"running" cbor:"running"`
}

// ToJSON returns the serializable view of the context: variable values by
// name, the operand stack bottom-up, and the program counter. Procedure
// values are replaced by id tags; everything else crosses as-is.
func (c *ProcedureContext) ToJSON() ContextJSON {
	variables := make(map[string]Value, len(c.variables))
	for name, v := range c.variables {
		variables[name] = encodeValue(v.Value)
	}
	stack := make([]Value, len(c.stack))
	for i, v := range c.stack {
		stack[i] = encodeValue(v)
	}
	return ContextJSON{Variables: variables, Stack: stack, PC: c.pc}
}

// ToJSON returns the serializable view of the whole machine: every context
// on the call stack, innermost first.
func (m *Machine) ToJSON() MachineJSON {
	contexts := make([]ContextJSON, 0, len(m.callStack))
	for i := len(m.callStack) - 1; i >= 0; i-- {
		contexts = append(contexts, m.callStack[i].ToJSON())
	}
	return MachineJSON{CallStack: contexts, Running: m.running}
}

// encodeValue rewrites values for serialization. Compiled procedures are
// identified by id; lists and maps are rewritten recursively.
func encodeValue(v Value) Value {
	switch val := v.(type) {
	case *CompiledProcedure:
		return map[string]Value{"$procedure": val.ID()}
	case Symbol:
		return "#" + string(val)
	case []Value:
		out := make([]Value, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	case map[string]Value:
		out := make(map[string]Value, len(val))
		for k, item := range val {
			out[k] = encodeValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalContext serializes a context snapshot to canonical CBOR bytes.
func MarshalContext(c *ProcedureContext) ([]byte, error) {
	return cborEncMode.Marshal(c.ToJSON())
}

// UnmarshalContext deserializes a context snapshot from CBOR bytes.
func UnmarshalContext(data []byte) (*ContextJSON, error) {
	var cj ContextJSON
	if err := cbor.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("wire: unmarshal context: %w", err)
	}
	return &cj, nil
}

// MarshalMachine serializes a machine snapshot to canonical CBOR bytes.
func MarshalMachine(m *Machine) ([]byte, error) {
	return cborEncMode.Marshal(m.ToJSON())
}

// MarshalMachineJSON serializes a machine snapshot to JSON bytes, the form
// the editor consumes directly.
func MarshalMachineJSON(m *Machine) ([]byte, error) {
	return json.Marshal(m.ToJSON())
}
