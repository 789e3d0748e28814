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

package optimize

import (
	"testing"

	"kernelopt/kernel"
)

func TestRedundantInputsCoalescesMergedOpDuplicates(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	merged := c.NewKernel(
		kernel.MergedOp{Sink: kernel.ScalarOp{Kind: kernel.Add, Scalar: 1}, Source: kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 2}},
		kernel.Device,
		[]*kernel.VirtualFieldRegister{in1.Outputs()[0], in1.Outputs()[0]},
		[]kernel.FieldType{scalarField()},
	)
	merged.Outputs()[0].SetProbed(true)

	if !merged.HasDuplicatedInputs() {
		t.Fatalf("test setup invariant broken: expected duplicated inputs")
	}
	n, err := (&RedundantInputsPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !merged.IsDead() {
		t.Fatalf("expected the duplicate input slot to be coalesced, got %d rewrites", n)
	}
	roots := c.Roots()
	if len(roots) != 1 || len(roots[0].Inputs()) != 1 {
		t.Fatalf("expected the rebuilt kernel to have a single input slot, got %+v", roots)
	}
}

// TestRedundantInputsCoalescesFixedArityOpcodes exercises the general
// HyperKernel case: a=SF(1); b=a+a should leave b rebuilt with a single
// input slot and one live root, even though BinaryOp is a fixed two-operand
// opcode — RedundantInputs reindexes the opcode's logical operands onto the
// coalesced slot rather than refusing to touch it.
func TestRedundantInputsCoalescesFixedArityOpcodes(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	sum := c.NewKernel(kernel.BinaryOp{Kind: kernel.Add}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0], in1.Outputs()[0]}, []kernel.FieldType{scalarField()})
	sum.Outputs()[0].SetProbed(true)

	n, err := (&RedundantInputsPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !sum.IsDead() {
		t.Fatalf("expected b=a+a to be rebuilt with its duplicate operand coalesced, got %d rewrites", n)
	}
	roots := c.Roots()
	if len(roots) != 1 {
		t.Fatalf("expected exactly one root after coalescing, got %d", len(roots))
	}
	rebuilt := roots[0]
	if len(rebuilt.Inputs()) != 1 {
		t.Fatalf("expected the rebuilt kernel to have a single physical input, got %d", len(rebuilt.Inputs()))
	}
	if rebuilt.NumOperands() != 2 {
		t.Fatalf("expected the rebuilt kernel to still report 2 logical operands, got %d", rebuilt.NumOperands())
	}
	if rebuilt.Operand(0) != rebuilt.Inputs()[0] || rebuilt.Operand(1) != rebuilt.Inputs()[0] {
		t.Fatalf("expected both logical operands to resolve to the single coalesced input")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}
