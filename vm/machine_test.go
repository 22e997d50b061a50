package vm

import (
	"errors"
	"testing"
)

// runMachine drives a started machine until main runs off the end, inserting
// an implicit return whenever a nested context completes. Fails the test if
// the program does not terminate within a generous bound.
func runMachine(t *testing.T, m *Machine) {
	t.Helper()
	for steps := 0; steps < 10_000; steps++ {
		in, ok := m.GetInstruction()
		if !ok {
			if m.Running() && m.CanReturnFromProcedure() {
				if err := m.ReturnFromProcedure(); err != nil {
					t.Fatalf("implicit return failed: %v", err)
				}
				continue
			}
			return
		}
		if err := m.ApplyInstruction(in); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}
	t.Fatal("machine did not terminate")
}

// startMachine loads instructions as main and starts the machine.
func startMachine(t *testing.T, instructions ...Instruction) *Machine {
	t.Helper()
	mainProc := NewProcedure(MainProcedureKey, nil)
	mainProc.Append(instructions...)
	mainProc.Seal()

	m := NewMachine(NewCoreRegistry())
	m.LoadMemory(MainProcedureKey, mainProc)
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Lifecycle tests
// ---------------------------------------------------------------------------

func TestStartWithoutMainFails(t *testing.T) {
	m := NewMachine(NewCoreRegistry())
	if err := m.Start(); !errors.Is(err, ErrNoMainProcedure) {
		t.Errorf("expected ErrNoMainProcedure, got %v", err)
	}
	if m.Running() {
		t.Error("machine should not be running after a failed start")
	}
}

func TestStartPushesMainContext(t *testing.T) {
	m := startMachine(t)
	if !m.Running() {
		t.Fatal("machine should be running")
	}
	if m.StackDepth() != 1 {
		t.Fatalf("StackDepth = %d, want 1", m.StackDepth())
	}
	if got := m.CurrentProcedure().ID(); got != MainProcedureKey {
		t.Errorf("current procedure = %q, want main", got)
	}
}

// Starting again after a halt must not stack a new main on the dead run.
func TestRestartAfterHaltResetsCallStack(t *testing.T) {
	m := startMachine(t, Halt(), Literal(1.0))

	in, _ := m.GetInstruction()
	if err := m.ApplyInstruction(in); err != nil {
		t.Fatalf("halt step failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	if m.StackDepth() != 1 {
		t.Fatalf("StackDepth after restart = %d, want 1", m.StackDepth())
	}
	if got := m.CallStack(); len(got) != 1 || got[0] != MainProcedureKey {
		t.Errorf("CallStack after restart = %v, want [main]", got)
	}
	if m.CanReturnFromProcedure() {
		t.Error("the restarted main must be the bottom context")
	}
	if ctx := m.CurrentProcedureContext(); ctx.PC() != 0 {
		t.Errorf("restarted main pc = %d, want 0", ctx.PC())
	}
}

func TestApplyInstructionWhenNotRunningFails(t *testing.T) {
	m := startMachine(t, Literal(1.0))
	m.Halt()
	if err := m.ApplyInstruction(Literal(1.0)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestHaltInstructionStopsStepping(t *testing.T) {
	m := startMachine(t, Halt(), Literal(1.0))

	in, ok := m.GetInstruction()
	if !ok {
		t.Fatal("expected the halt instruction")
	}
	if err := m.ApplyInstruction(in); err != nil {
		t.Fatalf("halt step failed: %v", err)
	}
	if m.Running() {
		t.Error("machine should stop after halt")
	}
	if _, ok := m.GetInstruction(); ok {
		t.Error("no instruction should follow a halt")
	}
}

// ---------------------------------------------------------------------------
// Stepping tests
// ---------------------------------------------------------------------------

func TestApplyInstructionIncrementsPC(t *testing.T) {
	m := startMachine(t, Literal(1.0), Literal(2.0))
	ctx := m.CurrentProcedureContext()

	in, _ := m.GetInstruction()
	if err := m.ApplyInstruction(in); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if ctx.PC() != 1 {
		t.Errorf("pc = %d after one step, want 1", ctx.PC())
	}
}

func TestFailedStepDoesNotAdvancePC(t *testing.T) {
	m := startMachine(t, Pop())
	ctx := m.CurrentProcedureContext()

	in, _ := m.GetInstruction()
	if err := m.ApplyInstruction(in); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("expected ErrStackUnderflow, got %v", err)
	}
	if ctx.PC() != 0 {
		t.Errorf("pc = %d after a failed step, want 0", ctx.PC())
	}
}

func TestGetInstructionFalseAtEnd(t *testing.T) {
	m := startMachine(t, Literal(1.0))
	in, _ := m.GetInstruction()
	if err := m.ApplyInstruction(in); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if _, ok := m.GetInstruction(); ok {
		t.Error("GetInstruction should report false past the end")
	}
	if !m.IsAtEndOfProcedure() {
		t.Error("IsAtEndOfProcedure should be true past the end")
	}
}

// ---------------------------------------------------------------------------
// Invocation tests
// ---------------------------------------------------------------------------

func TestCallStackOrder(t *testing.T) {
	m := startMachine(t)
	a := NewProcedure("a", nil)
	b := NewProcedure("b", nil)
	c := NewProcedure("c", nil)
	for _, p := range []*CompiledProcedure{a, b, c} {
		if err := m.InvokeProcedure(p, nil); err != nil {
			t.Fatalf("invoke %s failed: %v", p.ID(), err)
		}
	}

	got := m.CallStack()
	want := []string{"c", "b", "a", "main"}
	if len(got) != len(want) {
		t.Fatalf("CallStack = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CallStack = %v, want %v", got, want)
		}
	}

	// Returning restores each previous top in order.
	for _, expected := range []string{"b", "a", "main"} {
		if err := m.ReturnFromProcedure(); err != nil {
			t.Fatalf("return failed: %v", err)
		}
		if got := m.CurrentProcedure().ID(); got != expected {
			t.Errorf("after return, current = %q, want %q", got, expected)
		}
	}
}

func TestInvokeProcedureByKey(t *testing.T) {
	m := startMachine(t)
	helper := NewProcedure("helper", nil)
	m.LoadMemory("helper", helper)

	if err := m.InvokeProcedure("helper", []Value{1.0, 2.0}); err != nil {
		t.Fatalf("invoke by key failed: %v", err)
	}
	ctx := m.CurrentProcedureContext()
	if ctx.Procedure() != helper {
		t.Fatal("current context should execute the helper")
	}
	if ctx.StackSize() != 2 {
		t.Errorf("args pushed = %d, want 2", ctx.StackSize())
	}
	if top, _ := ctx.Pop(); top != 2.0 {
		t.Errorf("last arg on top = %v, want 2", top)
	}
}

func TestInvokeUnknownKeyFails(t *testing.T) {
	m := startMachine(t)
	if err := m.InvokeProcedure("nowhere", nil); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestInvokeNonProcedureFails(t *testing.T) {
	m := startMachine(t)
	if err := m.InvokeProcedure(42.0, nil); !errors.Is(err, ErrOperandType) {
		t.Errorf("expected ErrOperandType, got %v", err)
	}
}

func TestInvokeMethodUnknownMessageFails(t *testing.T) {
	m := startMachine(t)
	err := m.InvokeMethod(1.0, "frobnicate", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("expected ErrMethodNotFound, got %v", err)
	}
	if m.StackDepth() != 1 {
		t.Error("a failed send must not grow the call stack")
	}
}

func TestInvokeMethodPushesReceiverFirst(t *testing.T) {
	m := startMachine(t)
	if err := m.InvokeMethod(2.0, "+", []Value{3.0}); err != nil {
		t.Fatalf("InvokeMethod failed: %v", err)
	}
	ctx := m.CurrentProcedureContext()
	if ctx.StackSize() != 2 {
		t.Fatalf("method stack size = %d, want 2", ctx.StackSize())
	}
	if arg, _ := ctx.Pop(); arg != 3.0 {
		t.Errorf("top of method stack = %v, want argument 3", arg)
	}
	if recv, _ := ctx.Pop(); recv != 2.0 {
		t.Errorf("beneath argument = %v, want receiver 2", recv)
	}
}

// User-defined methods install through the machine's registry and dispatch
// like the built-ins.
func TestDispatchUserDefinedMethod(t *testing.T) {
	m := startMachine(t,
		Literal(4.0),
		SendMessage("double", 0),
	)
	double := NewProcedure("Number>>double", nil)
	double.Append(
		SetVariable("n"),
		GetVariable("n"),
		GetVariable("n"),
		SendMessage("+", 1),
		PushReturnValue(),
		ReturnFromProcedure(),
	)
	double.Seal()
	m.Registry().ClassFor(KindNumber).DefineMethod("double", double)

	runMachine(t, m)
	ctx := m.callStack[0]
	if v, _ := ctx.Pop(); v != 8.0 {
		t.Errorf("4 double = %v, want 8", v)
	}
}

// ---------------------------------------------------------------------------
// Variable allocation tests
// ---------------------------------------------------------------------------

func TestCreateVariableIDsAreUnique(t *testing.T) {
	m := NewMachine(NewCoreRegistry())
	a := m.CreateVariable()
	b := m.CreateVariable()
	if a.ID() == b.ID() {
		t.Error("variable ids should be unique")
	}
	if m.VariableCount() != 2 {
		t.Errorf("VariableCount = %d, want 2", m.VariableCount())
	}
}
