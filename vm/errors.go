package vm

import "errors"

// ---------------------------------------------------------------------------
// Invariant-violation errors
// ---------------------------------------------------------------------------
// These are tier-one failures: unrecoverable for the current step. Nothing
// inside the machine retries; the stepping driver's only valid response is
// to discard the attempted step and stop advancing.

var (
	// ErrKeyNotFound is returned by Memory.Get for an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStackUnderflow is returned when popping an empty operand stack.
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrUndefinedVariable is returned when no context in the lexical chain
	// owns the requested name.
	ErrUndefinedVariable = errors.New("undefined variable")

	// ErrMethodNotFound is returned when a receiver's class has no method
	// for the sent message.
	ErrMethodNotFound = errors.New("method not found")

	// ErrCannotReturn is returned when returning from the bottom ("main")
	// context.
	ErrCannotReturn = errors.New("cannot return from main procedure")

	// ErrArgumentCountMismatch is returned by sendMessage when the operand
	// stack holds fewer than argCount+1 values.
	ErrArgumentCountMismatch = errors.New("argument count mismatch")

	// ErrConditionNotBoolean is returned by conditional jumps when the
	// popped condition is not a boolean.
	ErrConditionNotBoolean = errors.New("jump condition is not a boolean")

	// ErrOperandType is returned by add/greaterThan/lessThan/and when the
	// popped operands have the wrong type.
	ErrOperandType = errors.New("operand type mismatch")

	// ErrPropertyNotFound is returned by the property instructions when the
	// object has no such property.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPCOutOfRange is returned when an instruction index falls outside
	// the procedure. Out-of-bounds jumps fail loudly; they are never
	// remapped.
	ErrPCOutOfRange = errors.New("program counter out of range")

	// ErrNotRunning is returned by operations that require a started,
	// unhalted machine.
	ErrNotRunning = errors.New("machine is not running")

	// ErrNoMainProcedure is returned by Start when no procedure is
	// registered under the reserved key "main".
	ErrNoMainProcedure = errors.New(`no procedure registered under "main"`)
)
