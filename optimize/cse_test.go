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

func scalarField() kernel.FieldType {
	return kernel.MustFieldType(kernel.Shape{4, 4}, nil, kernel.Float32)
}

func TestCommonSubexpressionMergesIdenticalKernels(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	a := c.NewKernel(kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 2}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{scalarField()})
	b := c.NewKernel(kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 2}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{scalarField()})
	a.Outputs()[0].SetProbed(true)
	b.Outputs()[0].SetProbed(true)

	n, err := (&CommonSubexpressionPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 merge, got %d", n)
	}
	if !a.IsDead() && !b.IsDead() {
		t.Fatalf("expected one of the duplicate kernels to be removed")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated after merge: %v", err)
	}
}

func TestCommonSubexpressionDistinguishesByConstantFieldName(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "in1"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	in2 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "in2"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	in1.Outputs()[0].SetProbed(true)
	in2.Outputs()[0].SetProbed(true)

	n, err := (&CommonSubexpressionPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("two distinct sensor fields of the same shape must never be merged, got %d merges", n)
	}
}
