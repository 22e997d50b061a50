package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction: one executable unit of compiled code
// ---------------------------------------------------------------------------

// Operation is the pure function form of an instruction. It receives the
// current activation record and the instruction's fixed operand tuple, and
// mutates only that context (or, through it, the owning machine).
type Operation func(ctx *ProcedureContext, args []Value) error

// Instruction pairs a wire-format name with its operation and operands.
// Operand types are restricted to nil, numbers, strings, booleans, lists and
// string-keyed maps of these, and nested *CompiledProcedure values for
// literal closures.
type Instruction struct {
	Name string
	op   Operation
	Args []Value
}

// Apply invokes the operation against a context. It performs no program
// counter bookkeeping; that belongs to Machine.ApplyInstruction.
func (in Instruction) Apply(ctx *ProcedureContext) error {
	return in.op(ctx, in.Args)
}

// String renders the instruction for the disassembler.
func (in Instruction) String() string {
	if len(in.Args) == 0 {
		return in.Name
	}
	parts := make([]string, len(in.Args))
	for i, arg := range in.Args {
		parts[i] = FormatValue(arg)
	}
	return in.Name + " " + strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// CompiledProcedure: ordered, immutable instruction list
// ---------------------------------------------------------------------------

// CompiledProcedure is linear compiled code with an id and an optional
// statically enclosing procedure. Appends are legal only while the procedure
// is the top of the compiler's build stack; Seal makes it immutable.
type CompiledProcedure struct {
	id           string
	parent       *CompiledProcedure
	instructions []Instruction
	sealed       bool
}

// NewProcedure creates an empty, unsealed procedure. parent records static
// nesting for closures; it is nil for root procedures.
func NewProcedure(id string, parent *CompiledProcedure) *CompiledProcedure {
	return &CompiledProcedure{id: id, parent: parent}
}

// ID returns the procedure's identifier.
func (p *CompiledProcedure) ID() string {
	return p.id
}

// Parent returns the statically enclosing procedure, or nil.
func (p *CompiledProcedure) Parent() *CompiledProcedure {
	return p.parent
}

// Length returns the instruction count.
func (p *CompiledProcedure) Length() int {
	return len(p.instructions)
}

// At returns the instruction at index. Out-of-range indices fail loudly:
// a jump that lands outside the procedure is a bug in the emitted code, and
// silently wrapping it around would hide the miscomputed target.
func (p *CompiledProcedure) At(index int) (Instruction, error) {
	if index < 0 || index >= len(p.instructions) {
		return Instruction{}, fmt.Errorf("procedure %s index %d of %d: %w",
			p.id, index, len(p.instructions), ErrPCOutOfRange)
	}
	return p.instructions[index], nil
}

// Append adds instructions to an unsealed procedure.
// Panics if the procedure has been sealed; appending to completed code is a
// programmer error, not a runtime condition.
func (p *CompiledProcedure) Append(instructions ...Instruction) {
	if p.sealed {
		panic(fmt.Sprintf("CompiledProcedure.Append: %s is sealed", p.id))
	}
	p.instructions = append(p.instructions, instructions...)
}

// PatchArg rewrites one operand of an already-appended instruction. The
// compiler uses this to resolve forward jump targets. Only legal while the
// procedure is unsealed.
func (p *CompiledProcedure) PatchArg(index, argIndex int, v Value) error {
	if p.sealed {
		panic(fmt.Sprintf("CompiledProcedure.PatchArg: %s is sealed", p.id))
	}
	if index < 0 || index >= len(p.instructions) {
		return fmt.Errorf("procedure %s patch index %d: %w", p.id, index, ErrPCOutOfRange)
	}
	in := p.instructions[index]
	if argIndex < 0 || argIndex >= len(in.Args) {
		return fmt.Errorf("procedure %s instruction %d has no operand %d: %w",
			p.id, index, argIndex, ErrPCOutOfRange)
	}
	args := make([]Value, len(in.Args))
	copy(args, in.Args)
	args[argIndex] = v
	in.Args = args
	p.instructions[index] = in
	return nil
}

// Seal marks the procedure immutable. Called by the compiler's pop.
func (p *CompiledProcedure) Seal() {
	p.sealed = true
}

// Sealed reports whether the procedure is immutable.
func (p *CompiledProcedure) Sealed() bool {
	return p.sealed
}

// Map returns the results of applying fn to every instruction in order.
func (p *CompiledProcedure) Map(fn func(Instruction) Value) []Value {
	out := make([]Value, len(p.instructions))
	for i, in := range p.instructions {
		out[i] = fn(in)
	}
	return out
}

// Disassemble returns a human-readable listing, one instruction per line.
func (p *CompiledProcedure) Disassemble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "procedure %s (%d instructions)\n", p.id, len(p.instructions))
	for i, in := range p.instructions {
		fmt.Fprintf(&sb, "  %4d  %s\n", i, in.String())
	}
	return sb.String()
}
