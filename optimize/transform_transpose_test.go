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

func matrixField() kernel.FieldType {
	return kernel.MustFieldType(kernel.Shape{4, 4}, kernel.Shape{3, 3}, kernel.Float32)
}

func TestTransformTransposeCancelsDoubleTranspose(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	t1 := c.NewKernel(kernel.MatrixTransposeOp{}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{matrixField()})
	t2 := c.NewKernel(kernel.MatrixTransposeOp{}, kernel.Device, []*kernel.VirtualFieldRegister{t1.Outputs()[0]}, []kernel.FieldType{matrixField()})
	t2.Outputs()[0].SetProbed(true)

	n, err := (&TransformTransposePass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !t2.IsDead() {
		t.Fatalf("expected the outer transpose to be elided, got %d rewrites", n)
	}
	if !in1.Outputs()[0].Probed() {
		t.Fatalf("expected the probe to move onto in1's output once the transpose pair cancels")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestTransformTransposeFoldsIntoMatMul(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m1"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	in2 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m2"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	tr := c.NewKernel(kernel.MatrixTransposeOp{}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{matrixField()})
	mm := c.NewKernel(kernel.MatrixTransformMatrixOp{}, kernel.Device, []*kernel.VirtualFieldRegister{tr.Outputs()[0], in2.Outputs()[0]}, []kernel.FieldType{matrixField()})
	mm.Outputs()[0].SetProbed(true)

	n, err := (&TransformTransposePass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the transpose to fold into the matmul, got %d rewrites", n)
	}

	roots := c.Roots()
	if len(roots) != 1 {
		t.Fatalf("expected a single root after folding, got %d", len(roots))
	}
	folded, ok := roots[0].Opcode().(kernel.MatrixTransformMatrixOp)
	if !ok || !folded.TransposeIn1 || folded.TransposeIn2 {
		t.Fatalf("expected TransposeIn1 to be set on the folded matmul, got %+v", roots[0].Opcode())
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

// TestTransformTransposeAbsorbsDownstreamMatMul exercises transpose(A@B) =
// B^T@A^T: a transpose reading a matmul's output is replaced outright by a
// new matmul over the original matmul's own inputs, swapped and with both
// transpose flags inverted. The original matmul is left alive, untouched,
// since it may still have other readers.
func TestTransformTransposeAbsorbsDownstreamMatMul(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m1"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	in2 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m2"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	mm := c.NewKernel(kernel.MatrixTransformMatrixOp{TransposeIn1: true}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0], in2.Outputs()[0]}, []kernel.FieldType{matrixField()})
	tr := c.NewKernel(kernel.MatrixTransposeOp{}, kernel.Device, []*kernel.VirtualFieldRegister{mm.Outputs()[0]}, []kernel.FieldType{matrixField()})
	tr.Outputs()[0].SetProbed(true)
	mm.Outputs()[0].SetProbed(true)

	n, err := (&TransformTransposePass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !tr.IsDead() {
		t.Fatalf("expected the downstream transpose to be absorbed into a new matmul, got %d rewrites", n)
	}
	if mm.IsDead() {
		t.Fatalf("expected the original matmul to survive since its own output is still probed")
	}

	roots := c.Roots()
	if len(roots) != 2 {
		t.Fatalf("expected two live roots (the original matmul and the absorbed replacement), got %d", len(roots))
	}
	var replacement *kernel.AbstractKernel
	for _, r := range roots {
		if r != mm {
			replacement = r
		}
	}
	if replacement == nil {
		t.Fatalf("expected to find the replacement kernel among the roots")
	}
	folded, ok := replacement.Opcode().(kernel.MatrixTransformMatrixOp)
	if !ok || !folded.TransposeIn1 || folded.TransposeIn2 {
		t.Fatalf("expected TransposeIn1=true, TransposeIn2=false on the absorbed matmul, got %+v", replacement.Opcode())
	}
	if replacement.Inputs()[0] != in2.Outputs()[0] || replacement.Inputs()[1] != in1.Outputs()[0] {
		t.Fatalf("expected the absorbed matmul's inputs to be swapped: in2 then in1")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

// TestTransformTransposeFoldsAllMatMulSinks exercises the removal of the
// former sole-sink requirement in pushIntoMatMul: an unprobed transpose with
// two distinct matmul sinks has both folded in a single Run, and the
// transpose kernel itself is fully elided once neither sink remains.
func TestTransformTransposeFoldsAllMatMulSinks(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m1"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	in2 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m2"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	in3 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "m3"}, kernel.ConstantField, nil, []kernel.FieldType{matrixField()})
	tr := c.NewKernel(kernel.MatrixTransposeOp{}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{matrixField()})
	mm1 := c.NewKernel(kernel.MatrixTransformMatrixOp{}, kernel.Device, []*kernel.VirtualFieldRegister{tr.Outputs()[0], in2.Outputs()[0]}, []kernel.FieldType{matrixField()})
	mm2 := c.NewKernel(kernel.MatrixTransformMatrixOp{}, kernel.Device, []*kernel.VirtualFieldRegister{in3.Outputs()[0], tr.Outputs()[0]}, []kernel.FieldType{matrixField()})
	mm1.Outputs()[0].SetProbed(true)
	mm2.Outputs()[0].SetProbed(true)

	n, err := (&TransformTransposePass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !tr.IsDead() {
		t.Fatalf("expected the transpose to be processed once, folding both matmul sinks and eliding itself, got %d rewrites", n)
	}

	roots := c.Roots()
	if len(roots) != 2 {
		t.Fatalf("expected two live roots (the two folded matmuls), got %d", len(roots))
	}
	for _, r := range roots {
		mm, ok := r.Opcode().(kernel.MatrixTransformMatrixOp)
		if !ok {
			t.Fatalf("expected a folded matmul root, got %+v", r.Opcode())
		}
		switch {
		case r.Inputs()[1] == in2.Outputs()[0]:
			if !mm.TransposeIn1 || mm.TransposeIn2 {
				t.Fatalf("expected TransposeIn1 set on the mm1 replacement, got %+v", mm)
			}
			if r.Inputs()[0] != in1.Outputs()[0] {
				t.Fatalf("expected the mm1 replacement to read in1 directly")
			}
		case r.Inputs()[0] == in3.Outputs()[0]:
			if mm.TransposeIn1 || !mm.TransposeIn2 {
				t.Fatalf("expected TransposeIn2 set on the mm2 replacement, got %+v", mm)
			}
			if r.Inputs()[1] != in1.Outputs()[0] {
				t.Fatalf("expected the mm2 replacement to read in1 directly")
			}
		default:
			t.Fatalf("unexpected folded matmul root: %+v", r)
		}
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}
