package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Value: runtime values and kind classification
// ---------------------------------------------------------------------------

// Value is any runtime value the machine can hold. Instruction operands are
// restricted to nil, float64, string, bool, []Value, map[string]Value and
// *CompiledProcedure; host code may hand the machine arbitrary Go values,
// which dispatch treats as foreign (see ClassRegistry).
type Value = any

// Symbol is an interned-style name value, distinct from String for dispatch.
type Symbol string

// Kind is the closed classification of runtime values used for dispatch.
// Classification order matters: True and False are distinct kinds so that
// boolean method tables can differ per truth value.
type Kind int

const (
	KindTrue Kind = iota
	KindFalse
	KindNil
	KindString
	KindSymbol
	KindNumber
	KindProcedure
	KindList
	KindMap
	KindForeign
)

var kindNames = map[Kind]string{
	KindTrue:      "True",
	KindFalse:     "False",
	KindNil:       "Nil",
	KindString:    "String",
	KindSymbol:    "Symbol",
	KindNumber:    "Number",
	KindProcedure: "Procedure",
	KindList:      "List",
	KindMap:       "Map",
	KindForeign:   "Foreign",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindOf classifies a runtime value. Every value maps to exactly one kind;
// unknown Go types classify as KindForeign and dispatch through a wrapper
// class keyed by their reflect.Type.
func KindOf(v Value) Kind {
	switch val := v.(type) {
	case nil:
		return KindNil
	case bool:
		if val {
			return KindTrue
		}
		return KindFalse
	case string:
		return KindString
	case Symbol:
		return KindSymbol
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case *CompiledProcedure:
		return KindProcedure
	case []Value:
		return KindList
	case map[string]Value:
		return KindMap
	default:
		return KindForeign
	}
}

// IsProcedure reports whether v is a compiled procedure.
func IsProcedure(v Value) bool {
	_, ok := v.(*CompiledProcedure)
	return ok
}

// numberOf converts any numeric value to float64. The second return is false
// for non-numeric values.
func numberOf(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FormatValue returns a short human-readable rendering, used by diagnostics
// and the disassembler.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", val)
	case Symbol:
		return "#" + string(val)
	case *CompiledProcedure:
		return fmt.Sprintf("<procedure %s>", val.ID())
	case []Value:
		return fmt.Sprintf("<list of %d>", len(val))
	case map[string]Value:
		return fmt.Sprintf("<map of %d>", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// foreignTypeOf returns the dispatch identity for a foreign value.
func foreignTypeOf(v Value) reflect.Type {
	return reflect.TypeOf(v)
}
