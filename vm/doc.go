// Package vm implements the Wax virtual machine.
//
// This package contains:
//   - Runtime value classification and the WaxClass dispatch registry
//   - Activation records (ProcedureContext) with lexical scoping
//   - The instruction set and compiled procedure representation
//   - The reference-counted code store (Memory)
//   - The stepping machine and the copy-on-write snapshot history
package vm
