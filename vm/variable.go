package vm

// ---------------------------------------------------------------------------
// Variable: mutable, identity-bearing value cell
// ---------------------------------------------------------------------------

// Variable is the indirection layer for mutable names. Identity (ID) is
// distinct from the held value: name lookups resolve to the Variable, not to
// a raw value, so a nested procedure writing a name found in an enclosing
// scope mutates the same cell the enclosing scope sees, including after
// either context has been structurally cloned, because clones preserve the
// alias structure between contexts and their variables.
type Variable struct {
	id    int
	Value Value
}

// ID returns the variable's identity, assigned once by the machine's counter
// and never reused within one machine lineage.
func (v *Variable) ID() int {
	return v.id
}
