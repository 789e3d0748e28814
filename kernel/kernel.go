// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package kernel

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Kind is the closed set of kernel capabilities a pass pattern-matches on
// in place of Scala subclassing ("subclass of AbstractKernel" maps to a
// tagged variant plus a HyperKernel trait carried as a bool).
type Kind int

const (
	// Device is a HyperKernel: a device-resident kernel eligible for
	// merging with its single-sink neighbors.
	Device Kind = iota
	// CPU is a user/side-effecting kernel; it is never removed as dead
	// code even if nothing reads its outputs.
	CPU
	// ConstantField sources a named constant/sensor field.
	ConstantField
	// RecurrentField sources the current-cycle value of a feedback field
	// and owns an out-of-band pointer to the register that will produce
	// its next-cycle value.
	RecurrentField
)

func (k Kind) String() string {
	switch k {
	case Device:
		return "Device"
	case CPU:
		return "CPU"
	case ConstantField:
		return "ConstantField"
	case RecurrentField:
		return "RecurrentField"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// AbstractKernel is a node in the kernel circuit: one field-to-field
// operation, its ordered inputs, and the virtual field registers it owns
// as outputs.
type AbstractKernel struct {
	id      int
	opcode  Opcode
	inputs  []*VirtualFieldRegister
	outputs []*VirtualFieldRegister
	isDead  bool
	kind    Kind

	// recurrence is the out-of-band feedback pointer RecurrentField
	// kernels carry to the register that will produce their next-cycle
	// value. It is not a member of inputs: it deliberately sits outside
	// the DAG so the circuit can stay acyclic. After construction it is
	// overwritten only through SetRecurrence, which the optimizer's
	// rename-map fix-up (fixupRecurrence in optimize/recurrence.go) calls
	// after every pass.
	recurrence *VirtualFieldRegister

	// operandRefs, when non-nil, maps each of the opcode's logical operand
	// positions onto the physical slot within inputs that operand actually
	// reads. nil means the identity mapping (operand i reads inputs[i]),
	// true of every kernel until RedundantInputs coalesces two or more of
	// its logical operands onto the same register: inputs then shrinks to
	// the deduplicated set, and operandRefs records where each original
	// operand landed so a fixed-arity opcode (BinaryOp, ConvolveOp, ...)
	// keeps addressing the right operand by role even though its physical
	// input count is now below the opcode's nominal arity.
	operandRefs []int
}

// Opcode is immutable after construction.
func (k *AbstractKernel) Opcode() Opcode { return k.opcode }

// Inputs are references to other kernels' output registers, in order.
func (k *AbstractKernel) Inputs() []*VirtualFieldRegister { return k.inputs }

// Outputs are the registers this kernel owns, in order.
func (k *AbstractKernel) Outputs() []*VirtualFieldRegister { return k.outputs }

// IsDead reports whether the kernel has been removed from its circuit.
func (k *AbstractKernel) IsDead() bool { return k.isDead }

// Kind is the kernel's capability tag.
func (k *AbstractKernel) Kind() Kind { return k.kind }

// IsHyperKernel reports whether k is a device kernel eligible for the
// merging passes.
func (k *AbstractKernel) IsHyperKernel() bool { return k.kind == Device }

// Recurrence is the out-of-band feedback register a RecurrentField kernel
// reads its next-cycle value from. It is nil for every other kind.
func (k *AbstractKernel) Recurrence() *VirtualFieldRegister {
	if k.kind != RecurrentField {
		return nil
	}
	return k.recurrence
}

// SetRecurrence sets the feedback pointer. Only valid on a RecurrentField
// kernel; used at construction time and by the rename-map fix-up after
// every pass.
func (k *AbstractKernel) SetRecurrence(r *VirtualFieldRegister) {
	if k.kind != RecurrentField {
		panic("kernel: SetRecurrence on a non-RecurrentField kernel")
	}
	k.recurrence = r
}

// NumOperands is the opcode's logical operand count: the number of
// distinct roles (signal/filter, lhs/rhs, ...) the opcode addresses,
// which may exceed len(Inputs()) once RedundantInputs has coalesced two
// operands that happened to read the same register.
func (k *AbstractKernel) NumOperands() int {
	if k.operandRefs != nil {
		return len(k.operandRefs)
	}
	return len(k.inputs)
}

// Operand returns the register logical operand position i reads, honoring
// any RedundantInputs remap recorded in operandRefs. Use this instead of
// Inputs()[i] whenever i addresses a fixed opcode role rather than a raw
// physical slot.
func (k *AbstractKernel) Operand(i int) *VirtualFieldRegister {
	if k.operandRefs != nil {
		return k.inputs[k.operandRefs[i]]
	}
	return k.inputs[i]
}

// HasDuplicatedInputs reports whether any two input positions reference
// the same register by identity.
func (k *AbstractKernel) HasDuplicatedInputs() bool {
	for i, in := range k.inputs {
		if slices.Contains(k.inputs[i+1:], in) {
			return true
		}
	}
	return false
}

// DebugName is the stable, derived name used in verbose reporting and
// invariant-violation diagnostics.
func (k *AbstractKernel) DebugName() string {
	return fmt.Sprintf("%s#%d", k.opcode.Name(), k.id)
}

func (k *AbstractKernel) String() string { return k.DebugName() }

// inputIndices returns the position(s) of reg among k.inputs.
func (k *AbstractKernel) inputIndices(reg *VirtualFieldRegister) []int {
	var idx []int
	for i, in := range k.inputs {
		if in == reg {
			idx = append(idx, i)
		}
	}
	return idx
}
