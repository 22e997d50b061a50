package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("wax.vm")

// MainProcedureKey is the reserved memory key for the entry procedure.
const MainProcedureKey = "main"

// ---------------------------------------------------------------------------
// Machine: the instruction interpreter
// ---------------------------------------------------------------------------

// Machine owns the call stack, the global code store and the class registry,
// and drives instruction dispatch, procedure invocation and message sends.
//
// The machine is single-threaded: every operation is synchronous and runs to
// completion. Stepping is driven entirely by an external caller pairing
// GetInstruction with ApplyInstruction; there is no internal loop and no
// suspension point.
type Machine struct {
	registry       *ClassRegistry
	memory         *Memory
	callStack      []*ProcedureContext // innermost last
	nextVariableID int
	nextContextID  int
	running        bool
}

// NewMachine creates an unstarted machine dispatching through registry.
// Passing the registry explicitly keeps dispatch tables per machine;
// independent machines share mutable method tables only when callers hand
// them the same registry on purpose.
func NewMachine(registry *ClassRegistry) *Machine {
	return &Machine{
		registry: registry,
		memory:   NewMemory(),
	}
}

// Registry returns the machine's class registry.
func (m *Machine) Registry() *ClassRegistry {
	return m.registry
}

// Memory returns the machine's code store.
func (m *Machine) Memory() *Memory {
	return m.memory
}

// Running reports whether the machine is between Start and halt.
func (m *Machine) Running() bool {
	return m.running
}

// LoadMemory registers a procedure under a key in the code store.
func (m *Machine) LoadMemory(key string, procedure *CompiledProcedure) {
	m.memory.Set(key, procedure)
}

// Start invokes the procedure registered under "main" with zero arguments
// and enters the running state. It fails if no main procedure is loaded.
// Starting again after a halt discards the previous run's call stack; the
// new main must be the bottom context, never stacked on a dead run.
func (m *Machine) Start() error {
	if !m.memory.Has(MainProcedureKey) {
		return ErrNoMainProcedure
	}
	m.callStack = nil
	m.running = true
	if err := m.InvokeProcedure(MainProcedureKey, nil); err != nil {
		m.running = false
		return err
	}
	log.Infof("machine started")
	return nil
}

// Halt stops the interpreter. ApplyInstruction must not be called again
// until a new Start.
func (m *Machine) Halt() {
	m.running = false
	log.Infof("machine halted")
}

// ---------------------------------------------------------------------------
// Call stack
// ---------------------------------------------------------------------------

// CurrentProcedureContext returns the top of the call stack, or nil when the
// machine is not running.
func (m *Machine) CurrentProcedureContext() *ProcedureContext {
	if !m.running || len(m.callStack) == 0 {
		return nil
	}
	return m.callStack[len(m.callStack)-1]
}

// CurrentProcedure returns the procedure of the innermost context, or nil
// when the machine is not running.
func (m *Machine) CurrentProcedure() *CompiledProcedure {
	ctx := m.CurrentProcedureContext()
	if ctx == nil {
		return nil
	}
	return ctx.procedure
}

// StackDepth returns the number of contexts on the call stack.
func (m *Machine) StackDepth() int {
	return len(m.callStack)
}

// CallStack returns the procedure ids on the call stack, innermost first.
func (m *Machine) CallStack() []string {
	ids := make([]string, 0, len(m.callStack))
	for i := len(m.callStack) - 1; i >= 0; i-- {
		ids = append(ids, m.callStack[i].procedure.ID())
	}
	return ids
}

// contextByID resolves a live context by id, innermost first. Returns nil
// when no context with that id is on the call stack.
func (m *Machine) contextByID(id int) *ProcedureContext {
	for i := len(m.callStack) - 1; i >= 0; i-- {
		if m.callStack[i].id == id {
			return m.callStack[i]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// CreateVariable allocates a Variable with a fresh id. Ids are never reused
// within one machine lineage; clones carry the counter forward.
func (m *Machine) CreateVariable() *Variable {
	m.nextVariableID++
	return &Variable{id: m.nextVariableID}
}

// VariableCount returns how many variables this lineage has allocated.
func (m *Machine) VariableCount() int {
	return m.nextVariableID
}

// ---------------------------------------------------------------------------
// Invocation and return
// ---------------------------------------------------------------------------

// InvokeProcedure resolves a compiled procedure (by memory key or direct
// reference), creates a context for it and pushes the context onto the call
// stack. args are pushed onto the new context's operand stack in order.
//
// The new context's lexical parent is the most recent live context of the
// procedure's statically enclosing procedure, which is what makes closures
// see the variables of the scope that created them.
func (m *Machine) InvokeProcedure(procedureOrKey Value, args []Value) error {
	procedure, err := m.resolveProcedure(procedureOrKey)
	if err != nil {
		return err
	}
	parentID := noParent
	if parent := procedure.Parent(); parent != nil {
		for i := len(m.callStack) - 1; i >= 0; i-- {
			if m.callStack[i].procedure == parent {
				parentID = m.callStack[i].id
				break
			}
		}
	}
	m.nextContextID++
	ctx := newProcedureContext(m, m.nextContextID, procedure, parentID)
	for _, arg := range args {
		ctx.Push(arg)
	}
	m.callStack = append(m.callStack, ctx)
	log.Debugf("invoke %s (context %d, depth %d)", procedure.ID(), ctx.id, len(m.callStack))
	return nil
}

func (m *Machine) resolveProcedure(procedureOrKey Value) (*CompiledProcedure, error) {
	switch p := procedureOrKey.(type) {
	case *CompiledProcedure:
		return p, nil
	case string:
		return m.memory.Get(p)
	default:
		return nil, fmt.Errorf("cannot invoke %s: %w", FormatValue(procedureOrKey), ErrOperandType)
	}
}

// InvokeMethod resolves messageName against the receiver's class and invokes
// the found procedure with the receiver as its first stack operand, followed
// by args.
func (m *Machine) InvokeMethod(receiver Value, messageName string, args []Value) error {
	class := m.registry.ClassOf(receiver)
	result := class.LookupMethod(messageName)
	if result.IsFailure() {
		return fmt.Errorf("%s does not respond to %q: %w", class.Name(), messageName, ErrMethodNotFound)
	}
	method := result.Value().(*CompiledProcedure)
	return m.InvokeProcedure(method, append([]Value{receiver}, args...))
}

// CanReturnFromProcedure reports whether a return is legal: returning from
// the bottom ("main") context is always forbidden.
func (m *Machine) CanReturnFromProcedure() bool {
	return len(m.callStack) > 1
}

// ReturnFromProcedure pops the innermost context and transfers its pending
// return buffer onto the new top's operand stack.
func (m *Machine) ReturnFromProcedure() error {
	if !m.CanReturnFromProcedure() {
		return ErrCannotReturn
	}
	popped := m.callStack[len(m.callStack)-1]
	m.callStack = m.callStack[:len(m.callStack)-1]
	top := m.callStack[len(m.callStack)-1]
	top.AcceptReturnValues(popped)
	log.Debugf("return from %s (context %d) to %s", popped.procedure.ID(), popped.id, top.procedure.ID())
	return nil
}

// ---------------------------------------------------------------------------
// Instruction stepping
// ---------------------------------------------------------------------------

// GetInstruction returns the instruction at the current context's program
// counter. The second return is false when the machine is not running or
// the context has run off the end of its procedure.
func (m *Machine) GetInstruction() (Instruction, bool) {
	ctx := m.CurrentProcedureContext()
	if ctx == nil || ctx.pc >= ctx.procedure.Length() {
		return Instruction{}, false
	}
	in, err := ctx.procedure.At(ctx.pc)
	if err != nil {
		return Instruction{}, false
	}
	return in, true
}

// IsAtEndOfProcedure reports whether the current context's program counter
// is at or past the end of its procedure.
func (m *Machine) IsAtEndOfProcedure() bool {
	ctx := m.CurrentProcedureContext()
	return ctx == nil || ctx.pc >= ctx.procedure.Length()
}

// ApplyInstruction executes one instruction against the current context and
// then increments that context's program counter by one. Instructions of the
// jump family add a signed delta inside the operation, so a taken jump's net
// displacement is delta+1; emitted jump targets must account for the
// off-by-one.
//
// Failures are invariant violations: the step is void and must not be
// retried. After a halt the machine refuses further instructions until a
// new Start.
func (m *Machine) ApplyInstruction(in Instruction) error {
	if !m.running {
		return ErrNotRunning
	}
	ctx := m.CurrentProcedureContext()
	if ctx == nil {
		return ErrNotRunning
	}
	log.Debugf("step %s pc=%d %s", ctx.procedure.ID(), ctx.pc, in.String())
	if err := in.Apply(ctx); err != nil {
		return fmt.Errorf("%s at %s pc=%d: %w", in.Name, ctx.procedure.ID(), ctx.pc, err)
	}
	ctx.pc++
	return nil
}
