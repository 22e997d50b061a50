package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Instruction set
// ---------------------------------------------------------------------------
// The constructors below are the wire format between the compiler and the
// machine: each yields an Instruction whose Name matches the documented
// surface and whose operation is a pure function of the context and its
// operand tuple.
//
// Note there is no special-cased arithmetic path separate from dispatch:
// sendMessage is how every built-in operator is reached, and the add /
// greaterThan / lessThan / and instructions appear only inside the method
// bodies that dispatch resolves.

// Literal pushes its operand.
func Literal(v Value) Instruction {
	return Instruction{
		Name: "literal",
		Args: []Value{v},
		op: func(ctx *ProcedureContext, args []Value) error {
			ctx.Push(args[0])
			return nil
		},
	}
}

// Pop discards the top of stack.
func Pop() Instruction {
	return Instruction{
		Name: "pop",
		op: func(ctx *ProcedureContext, args []Value) error {
			_, err := ctx.Pop()
			return err
		},
	}
}

// GetProperty pops a key, pops an object and pushes object[key].
func GetProperty() Instruction {
	return Instruction{
		Name: "getProperty",
		op: func(ctx *ProcedureContext, args []Value) error {
			key, err := ctx.Pop()
			if err != nil {
				return err
			}
			object, err := ctx.Pop()
			if err != nil {
				return err
			}
			v, err := propertyOf(object, key)
			if err != nil {
				return err
			}
			ctx.Push(v)
			return nil
		},
	}
}

// GetPropertyAtLiteral pops an object and pushes object[key] for a fixed key.
func GetPropertyAtLiteral(key Value) Instruction {
	return Instruction{
		Name: "getPropertyAtLiteral",
		Args: []Value{key},
		op: func(ctx *ProcedureContext, args []Value) error {
			object, err := ctx.Pop()
			if err != nil {
				return err
			}
			v, err := propertyOf(object, args[0])
			if err != nil {
				return err
			}
			ctx.Push(v)
			return nil
		},
	}
}

// SetVariable pops a value and binds name in the scope chain.
func SetVariable(name string) Instruction {
	return Instruction{
		Name: "setVariable",
		Args: []Value{name},
		op: func(ctx *ProcedureContext, args []Value) error {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			ctx.Set(args[0].(string), v)
			return nil
		},
	}
}

// SetVariableToLiteral binds name in the scope chain to a fixed value.
func SetVariableToLiteral(name string, v Value) Instruction {
	return Instruction{
		Name: "setVariableToLiteral",
		Args: []Value{name, v},
		op: func(ctx *ProcedureContext, args []Value) error {
			ctx.Set(args[0].(string), args[1])
			return nil
		},
	}
}

// GetVariable pushes the value resolved through the scope chain.
func GetVariable(name string) Instruction {
	return Instruction{
		Name: "getVariable",
		Args: []Value{name},
		op: func(ctx *ProcedureContext, args []Value) error {
			v, err := ctx.Get(args[0].(string))
			if err != nil {
				return err
			}
			ctx.Push(v)
			return nil
		},
	}
}

// PushReturnValue pops a value into the pending-return buffer.
func PushReturnValue() Instruction {
	return Instruction{
		Name: "pushReturnValue",
		op: func(ctx *ProcedureContext, args []Value) error {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			ctx.PushReturnValue(v)
			return nil
		},
	}
}

// ReturnFromProcedure pops the call stack and transfers the return buffer.
func ReturnFromProcedure() Instruction {
	return Instruction{
		Name: "returnFromProcedure",
		op: func(ctx *ProcedureContext, args []Value) error {
			return ctx.machine.ReturnFromProcedure()
		},
	}
}

// Jump adds a signed delta to the program counter. The machine's
// post-increment still fires, so the net displacement of a taken jump is
// delta+1.
func Jump(deltaPC int) Instruction {
	return Instruction{
		Name: "jump",
		Args: []Value{deltaPC},
		op: func(ctx *ProcedureContext, args []Value) error {
			ctx.AdjustPC(args[0].(int))
			return nil
		},
	}
}

// JumpIfTrue pops a boolean and jumps when it is true.
func JumpIfTrue(deltaPC int) Instruction {
	return conditionalJump("jumpIfTrue", deltaPC, true)
}

// JumpIfFalse pops a boolean and jumps when it is false.
func JumpIfFalse(deltaPC int) Instruction {
	return conditionalJump("jumpIfFalse", deltaPC, false)
}

func conditionalJump(name string, deltaPC int, wanted bool) Instruction {
	return Instruction{
		Name: name,
		Args: []Value{deltaPC},
		op: func(ctx *ProcedureContext, args []Value) error {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			cond, ok := v.(bool)
			if !ok {
				return fmt.Errorf("popped %s: %w", FormatValue(v), ErrConditionNotBoolean)
			}
			if cond == wanted {
				ctx.AdjustPC(args[0].(int))
			}
			return nil
		},
	}
}

// SendMessage pops argCount arguments and a receiver, then dispatches the
// message through the receiver's class.
func SendMessage(message string, argCount int) Instruction {
	return Instruction{
		Name: "sendMessage",
		Args: []Value{message, argCount},
		op: func(ctx *ProcedureContext, args []Value) error {
			message := args[0].(string)
			argCount := args[1].(int)
			if ctx.StackSize() < argCount+1 {
				return fmt.Errorf("%q needs %d operands, stack has %d: %w",
					message, argCount+1, ctx.StackSize(), ErrArgumentCountMismatch)
			}
			sendArgs := make([]Value, argCount)
			for i := argCount - 1; i >= 0; i-- {
				v, err := ctx.Pop()
				if err != nil {
					return err
				}
				sendArgs[i] = v
			}
			receiver, err := ctx.Pop()
			if err != nil {
				return err
			}
			return ctx.machine.InvokeMethod(receiver, message, sendArgs)
		},
	}
}

// InvokeProcedure pops a procedure value and invokes it with no arguments.
func InvokeProcedure() Instruction {
	return Instruction{
		Name: "invokeProcedure",
		op: func(ctx *ProcedureContext, args []Value) error {
			v, err := ctx.Pop()
			if err != nil {
				return err
			}
			procedure, ok := v.(*CompiledProcedure)
			if !ok {
				return fmt.Errorf("cannot invoke %s: %w", FormatValue(v), ErrOperandType)
			}
			return ctx.machine.InvokeProcedure(procedure, nil)
		},
	}
}

// Halt stops the interpreter.
func Halt() Instruction {
	return Instruction{
		Name: "halt",
		op: func(ctx *ProcedureContext, args []Value) error {
			ctx.machine.Halt()
			return nil
		},
	}
}

// Add pops two numbers and pushes their sum.
func Add() Instruction {
	return binaryNumeric("add", func(a, b float64) Value { return a + b })
}

// GreaterThan pops two numbers and pushes a > b.
func GreaterThan() Instruction {
	return binaryNumeric("greaterThan", func(a, b float64) Value { return a > b })
}

// LessThan pops two numbers and pushes a < b.
func LessThan() Instruction {
	return binaryNumeric("lessThan", func(a, b float64) Value { return a < b })
}

func binaryNumeric(name string, fn func(a, b float64) Value) Instruction {
	return Instruction{
		Name: name,
		op: func(ctx *ProcedureContext, args []Value) error {
			bv, err := ctx.Pop()
			if err != nil {
				return err
			}
			av, err := ctx.Pop()
			if err != nil {
				return err
			}
			a, aok := numberOf(av)
			b, bok := numberOf(bv)
			if !aok || !bok {
				return fmt.Errorf("%s of %s and %s: %w",
					name, FormatValue(av), FormatValue(bv), ErrOperandType)
			}
			ctx.Push(fn(a, b))
			return nil
		},
	}
}

// And pops two booleans and pushes their conjunction.
func And() Instruction {
	return Instruction{
		Name: "and",
		op: func(ctx *ProcedureContext, args []Value) error {
			bv, err := ctx.Pop()
			if err != nil {
				return err
			}
			av, err := ctx.Pop()
			if err != nil {
				return err
			}
			a, aok := av.(bool)
			b, bok := bv.(bool)
			if !aok || !bok {
				return fmt.Errorf("and of %s and %s: %w",
					FormatValue(av), FormatValue(bv), ErrOperandType)
			}
			ctx.Push(a && b)
			return nil
		},
	}
}

// GetJsObjectProperty pops a key and a host object and performs a raw
// host-object property read through reflection.
func GetJsObjectProperty() Instruction {
	return Instruction{
		Name: "getJsObjectProperty",
		op: func(ctx *ProcedureContext, args []Value) error {
			key, err := ctx.Pop()
			if err != nil {
				return err
			}
			object, err := ctx.Pop()
			if err != nil {
				return err
			}
			v, err := hostPropertyOf(object, key)
			if err != nil {
				return err
			}
			ctx.Push(v)
			return nil
		},
	}
}

// GetJsObjectPropertyForLiteral pops a host object and reads a fixed
// property from it.
func GetJsObjectPropertyForLiteral(key Value) Instruction {
	return Instruction{
		Name: "getJsObjectPropertyForLiteral",
		Args: []Value{key},
		op: func(ctx *ProcedureContext, args []Value) error {
			object, err := ctx.Pop()
			if err != nil {
				return err
			}
			v, err := hostPropertyOf(object, args[0])
			if err != nil {
				return err
			}
			ctx.Push(v)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Property resolution
// ---------------------------------------------------------------------------

// propertyOf reads a property from a machine value: list indexing and
// length, map lookup, string indexing and length.
func propertyOf(object, key Value) (Value, error) {
	switch obj := object.(type) {
	case []Value:
		if key == "length" {
			return float64(len(obj)), nil
		}
		index, ok := numberOf(key)
		if !ok {
			return nil, fmt.Errorf("list key %s: %w", FormatValue(key), ErrOperandType)
		}
		i := int(index)
		if i < 0 || i >= len(obj) {
			return nil, fmt.Errorf("list index %d of %d: %w", i, len(obj), ErrPropertyNotFound)
		}
		return obj[i], nil
	case map[string]Value:
		name, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map key %s: %w", FormatValue(key), ErrOperandType)
		}
		v, ok := obj[name]
		if !ok {
			return nil, fmt.Errorf("map key %q: %w", name, ErrPropertyNotFound)
		}
		return v, nil
	case string:
		if key == "length" {
			return float64(len(obj)), nil
		}
		index, ok := numberOf(key)
		if !ok {
			return nil, fmt.Errorf("string key %s: %w", FormatValue(key), ErrOperandType)
		}
		i := int(index)
		if i < 0 || i >= len(obj) {
			return nil, fmt.Errorf("string index %d of %d: %w", i, len(obj), ErrPropertyNotFound)
		}
		return string(obj[i]), nil
	default:
		return nil, fmt.Errorf("%s has no properties: %w", FormatValue(object), ErrOperandType)
	}
}

// hostPropertyOf reads a property from an arbitrary host value: struct
// fields by name, map entries by key, with pointers dereferenced first.
func hostPropertyOf(object, key Value) (Value, error) {
	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("nil host object: %w", ErrPropertyNotFound)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		name, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("struct field key %s: %w", FormatValue(key), ErrOperandType)
		}
		field := rv.FieldByName(name)
		if !field.IsValid() {
			return nil, fmt.Errorf("struct field %q: %w", name, ErrPropertyNotFound)
		}
		return field.Interface(), nil
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.IsValid() || !kv.Type().AssignableTo(rv.Type().Key()) {
			return nil, fmt.Errorf("map key %s: %w", FormatValue(key), ErrOperandType)
		}
		v := rv.MapIndex(kv)
		if !v.IsValid() {
			return nil, fmt.Errorf("map key %s: %w", FormatValue(key), ErrPropertyNotFound)
		}
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("host %s has no properties: %w", FormatValue(object), ErrOperandType)
	}
}
