package vm

import "fmt"

// ---------------------------------------------------------------------------
// ProcedureContext: one activation record
// ---------------------------------------------------------------------------

// noParent marks a context without a lexical parent.
const noParent = 0

// ProcedureContext is the per-invocation state of a procedure: operand
// stack, variable table, program counter and pending return values.
//
// The lexical parent is recorded as a context id resolved through the owning
// machine at every access, never as a direct pointer. Structural cloning of
// the machine creates new context objects; a cached pointer would silently
// keep targeting the superseded pre-clone parent, while an id lookup always
// lands on the parent that belongs to this machine value.
type ProcedureContext struct {
	id              int
	machine         *Machine
	procedure       *CompiledProcedure
	parentContextID int
	stack           []Value
	variables       map[string]*Variable
	pc              int
	pendingReturns  []Value
}

func newProcedureContext(m *Machine, id int, procedure *CompiledProcedure, parentContextID int) *ProcedureContext {
	return &ProcedureContext{
		id:              id,
		machine:         m,
		procedure:       procedure,
		parentContextID: parentContextID,
		variables:       make(map[string]*Variable),
	}
}

// ID returns the context's stable identity within its machine lineage.
func (c *ProcedureContext) ID() int {
	return c.id
}

// Procedure returns the compiled code this context executes.
func (c *ProcedureContext) Procedure() *CompiledProcedure {
	return c.procedure
}

// ParentContextID returns the lexical parent's context id, or 0 when the
// context has no lexical parent. This is the static-nesting link, distinct
// from the caller on the call stack.
func (c *ProcedureContext) ParentContextID() int {
	return c.parentContextID
}

// PC returns the program counter. It always lies in [0, Length]; a value of
// Length means the context ran off the end, which is distinct from a halt.
func (c *ProcedureContext) PC() int {
	return c.pc
}

// AdjustPC adds a signed delta to the program counter. Jump instructions use
// this; the machine's unconditional post-increment still fires afterwards,
// so a taken jump's net displacement is delta+1.
func (c *ProcedureContext) AdjustPC(delta int) {
	c.pc += delta
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

// Push places a value on top of the operand stack.
func (c *ProcedureContext) Push(v Value) {
	c.stack = append(c.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (c *ProcedureContext) Pop() (Value, error) {
	if len(c.stack) == 0 {
		return nil, fmt.Errorf("context %d (%s): %w", c.id, c.procedure.ID(), ErrStackUnderflow)
	}
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v, nil
}

// Peek returns the top of the operand stack without removing it.
func (c *ProcedureContext) Peek() (Value, error) {
	if len(c.stack) == 0 {
		return nil, fmt.Errorf("context %d (%s): %w", c.id, c.procedure.ID(), ErrStackUnderflow)
	}
	return c.stack[len(c.stack)-1], nil
}

// StackSize returns the operand stack depth.
func (c *ProcedureContext) StackSize() int {
	return len(c.stack)
}

// ---------------------------------------------------------------------------
// Variables and lexical scope
// ---------------------------------------------------------------------------

// lexicalParent resolves the parent context by id through the owning
// machine. Returns nil when there is no parent or the parent is no longer
// live on the call stack.
func (c *ProcedureContext) lexicalParent() *ProcedureContext {
	if c.parentContextID == noParent || c.machine == nil {
		return nil
	}
	return c.machine.contextByID(c.parentContextID)
}

// resolveVariable walks the lexical-parent chain looking for the context
// that owns name. Returns nil when no ancestor owns it.
func (c *ProcedureContext) resolveVariable(name string) *Variable {
	for ctx := c; ctx != nil; ctx = ctx.lexicalParent() {
		if v, ok := ctx.variables[name]; ok {
			return v
		}
	}
	return nil
}

// Set binds name in the scope chain. If an ancestor already owns the name,
// its Variable is overwritten in place; otherwise a new Variable is created
// in this context, not in the root.
func (c *ProcedureContext) Set(name string, value Value) {
	if v := c.resolveVariable(name); v != nil {
		v.Value = value
		return
	}
	v := c.machine.CreateVariable()
	v.Value = value
	c.variables[name] = v
}

// Get resolves name through the scope chain.
func (c *ProcedureContext) Get(name string) (Value, error) {
	if v := c.resolveVariable(name); v != nil {
		return v.Value, nil
	}
	return nil, fmt.Errorf("%q in context %d: %w", name, c.id, ErrUndefinedVariable)
}

// ---------------------------------------------------------------------------
// Return values
// ---------------------------------------------------------------------------

// PushReturnValue appends a value to the pending-return buffer. The buffer
// is separate from the operand stack; it is transferred to the caller by
// AcceptReturnValues at procedure return.
func (c *ProcedureContext) PushReturnValue(v Value) {
	c.pendingReturns = append(c.pendingReturns, v)
}

// AcceptReturnValues pushes the other context's pending return buffer, in
// order, onto this context's operand stack, and drains the buffer. Called
// exactly once per return, by the machine.
func (c *ProcedureContext) AcceptReturnValues(other *ProcedureContext) {
	for _, v := range other.pendingReturns {
		c.Push(v)
	}
	other.pendingReturns = nil
}

// ---------------------------------------------------------------------------
// Cloning
// ---------------------------------------------------------------------------

// clone copies the context for a machine snapshot. The compiled procedure is
// shared (immutable); the operand stack and pending buffer are copied;
// variables are copied through the memo so that two contexts aliasing one
// Variable alias one Variable in the clone as well.
func (c *ProcedureContext) clone(m *Machine, memo map[*Variable]*Variable) *ProcedureContext {
	variables := make(map[string]*Variable, len(c.variables))
	for name, v := range c.variables {
		copied, ok := memo[v]
		if !ok {
			copied = &Variable{id: v.id, Value: v.Value}
			memo[v] = copied
		}
		variables[name] = copied
	}
	clone := &ProcedureContext{
		id:              c.id,
		machine:         m,
		procedure:       c.procedure,
		parentContextID: c.parentContextID,
		stack:           append([]Value(nil), c.stack...),
		variables:       variables,
		pc:              c.pc,
		pendingReturns:  append([]Value(nil), c.pendingReturns...),
	}
	return clone
}

// afterClone re-resolves stack-held values after a structural clone so that
// the operand stack holds only concrete values belonging to this machine.
// A *Variable or *ProcedureContext that leaked onto the stack would
// otherwise still point into the superseded snapshot.
func (c *ProcedureContext) afterClone(memo map[*Variable]*Variable) {
	for i, v := range c.stack {
		switch held := v.(type) {
		case *Variable:
			if copied, ok := memo[held]; ok {
				c.stack[i] = copied
			}
		case *ProcedureContext:
			if resolved := c.machine.contextByID(held.id); resolved != nil {
				c.stack[i] = resolved
			}
		}
	}
}
