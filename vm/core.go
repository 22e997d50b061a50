package vm

// ---------------------------------------------------------------------------
// Core classes: the bootstrap method tables
// ---------------------------------------------------------------------------
// Every built-in operator is reachable only through message dispatch. The
// procedures below are the looked-up method bodies; they are the only place
// the add/greaterThan/lessThan/and primitives appear.
//
// Method calling convention: InvokeMethod pushes the receiver first, then
// the arguments, so a body for a one-argument message starts with the stack
// [receiver, arg]. Bodies always return exactly one value through the
// pending-return buffer.

// NewCoreRegistry builds a registry with the standard method tables
// installed: arithmetic and comparison on Number, conjunction on the boolean
// classes, indexing and length on List, and evaluation/looping on Procedure.
func NewCoreRegistry() *ClassRegistry {
	r := NewClassRegistry()

	number := r.ClassFor(KindNumber)
	number.
		DefineMethod("+", primitiveBody("Number>>+", Add())).
		DefineMethod(">", primitiveBody("Number>>>", GreaterThan())).
		DefineMethod("<", primitiveBody("Number>><", LessThan()))

	// and: lives on both truth classes; dispatch distinguishes true from
	// false, the conjunction body does not need to.
	r.ClassFor(KindTrue).DefineMethod("and:", primitiveBody("True>>and:", And()))
	r.ClassFor(KindFalse).DefineMethod("and:", primitiveBody("False>>and:", And()))

	list := r.ClassFor(KindList)
	list.
		DefineMethod("at:", primitiveBody("List>>at:", GetProperty())).
		DefineMethod("length", primitiveBody("List>>length", GetPropertyAtLiteral("length")))

	str := r.ClassFor(KindString)
	str.DefineMethod("length", primitiveBody("String>>length", GetPropertyAtLiteral("length")))

	procedure := r.ClassFor(KindProcedure)
	procedure.
		DefineMethod("value", valueBody()).
		DefineMethod("whileTrue:", whileTrueBody())

	return r
}

// primitiveBody wraps a single primitive instruction into a method body:
// run the primitive over [receiver, args...], then return its result.
func primitiveBody(id string, primitive Instruction) *CompiledProcedure {
	p := NewProcedure(id, nil)
	p.Append(
		primitive,
		PushReturnValue(),
		ReturnFromProcedure(),
	)
	p.Seal()
	return p
}

// valueBody evaluates a procedure receiver with no arguments and returns
// its result. Compiled closures always return exactly one value, which the
// invoked procedure's return transfers onto this body's stack.
func valueBody() *CompiledProcedure {
	p := NewProcedure("Procedure>>value", nil)
	p.Append(
		InvokeProcedure(),
		PushReturnValue(),
		ReturnFromProcedure(),
	)
	p.Seal()
	return p
}

// whileTrueBody loops a body procedure while a condition procedure yields
// true. Entry stack: [condition, body]. Jump deltas are chosen for the
// machine's post-increment: a taken jump's net displacement is delta+1.
func whileTrueBody() *CompiledProcedure {
	p := NewProcedure("Procedure>>whileTrue:", nil)
	p.Append(
		SetVariable("__body"), //  0: pops body
		SetVariable("__cond"), //  1: pops condition
		GetVariable("__cond"), //  2: loop head
		InvokeProcedure(),     //  3: condition result lands here on return
		JumpIfFalse(4),        //  4: false -> 9
		GetVariable("__body"), //  5
		InvokeProcedure(),     //  6
		Pop(),                 //  7: discard the body's value
		Jump(-7),              //  8: back to 2
		Literal(nil),          //  9
		PushReturnValue(),     // 10
		ReturnFromProcedure(), // 11
	)
	p.Seal()
	return p
}
