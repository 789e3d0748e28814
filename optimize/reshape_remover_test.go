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

func TestReshapeRemoverElidesUnprobedReshape(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	rs := c.NewKernel(kernel.ReshapeOp{NewFieldShape: kernel.Shape{4, 4}}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{scalarField()})
	add := c.NewKernel(kernel.ScalarOp{Kind: kernel.Add, Scalar: 1}, kernel.Device, []*kernel.VirtualFieldRegister{rs.Outputs()[0]}, []kernel.FieldType{scalarField()})
	add.Outputs()[0].SetProbed(true)

	n, err := (&ReshapeRemoverPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !rs.IsDead() {
		t.Fatalf("expected the unprobed reshape to be elided, got %d rewrites", n)
	}
	if add.Inputs()[0] != in1.Outputs()[0] {
		t.Fatalf("expected add's input to be rewired directly onto in1's output")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestReshapeRemoverLeavesProbedReshapeAlone(t *testing.T) {
	c := kernel.NewKernelCircuit()
	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{scalarField()})
	rs := c.NewKernel(kernel.ReshapeOp{NewFieldShape: kernel.Shape{4, 4}}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{scalarField()})
	rs.Outputs()[0].SetProbed(true)

	n, err := (&ReshapeRemoverPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 || rs.IsDead() {
		t.Fatalf("a probed reshape's declared shape is an external contract and must survive, got %d rewrites", n)
	}
}

func TestReshapeRemoverCollapsesChain(t *testing.T) {
	c := kernel.NewKernelCircuit()
	s1 := kernel.MustFieldType(kernel.Shape{16}, nil, kernel.Float32)
	s2 := kernel.MustFieldType(kernel.Shape{4, 4}, nil, kernel.Float32)
	s3 := kernel.MustFieldType(kernel.Shape{2, 2, 4}, nil, kernel.Float32)

	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{s1})
	r1 := c.NewKernel(kernel.ReshapeOp{NewFieldShape: s2.FieldShape}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{s2})
	r2 := c.NewKernel(kernel.ReshapeOp{NewFieldShape: s3.FieldShape}, kernel.Device, []*kernel.VirtualFieldRegister{r1.Outputs()[0]}, []kernel.FieldType{s3})
	final := c.NewKernel(kernel.ScalarOp{Kind: kernel.Add, Scalar: 1}, kernel.Device, []*kernel.VirtualFieldRegister{r2.Outputs()[0]}, []kernel.FieldType{s3})
	final.Outputs()[0].SetProbed(true)

	n, err := (&ReshapeRemoverPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || !r1.IsDead() || !r2.IsDead() {
		t.Fatalf("expected both unprobed reshapes in the chain to collapse away, got %d rewrites", n)
	}
	if final.Inputs()[0] != in1.Outputs()[0] {
		t.Fatalf("expected final's input to be rewired directly onto in1's output")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

// TestReshapeRemoverElidesReshapeBetweenFlips matches the shape of
// out=flip(reshape(flip(in),[10,10]))+1: a reshape whose new shape genuinely
// differs from its input's, with neither side also a reshape, must still be
// elided since the data it passes through is never reordered.
func TestReshapeRemoverElidesReshapeBetweenFlips(t *testing.T) {
	c := kernel.NewKernelCircuit()
	flat := kernel.MustFieldType(kernel.Shape{100}, nil, kernel.Float32)
	square := kernel.MustFieldType(kernel.Shape{10, 10}, nil, kernel.Float32)

	in1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sf"}, kernel.ConstantField, nil, []kernel.FieldType{flat})
	flip1 := c.NewKernel(kernel.FlipOp{}, kernel.Device, []*kernel.VirtualFieldRegister{in1.Outputs()[0]}, []kernel.FieldType{flat})
	rs := c.NewKernel(kernel.ReshapeOp{NewFieldShape: square.FieldShape}, kernel.Device, []*kernel.VirtualFieldRegister{flip1.Outputs()[0]}, []kernel.FieldType{square})
	flip2 := c.NewKernel(kernel.FlipOp{}, kernel.Device, []*kernel.VirtualFieldRegister{rs.Outputs()[0]}, []kernel.FieldType{square})
	out := c.NewKernel(kernel.ScalarOp{Kind: kernel.Add, Scalar: 1}, kernel.Device, []*kernel.VirtualFieldRegister{flip2.Outputs()[0]}, []kernel.FieldType{square})
	out.Outputs()[0].SetProbed(true)

	n, err := (&ReshapeRemoverPass{}).Run(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !rs.IsDead() {
		t.Fatalf("expected the reshape between the two flips to be elided despite its shape genuinely changing, got %d rewrites", n)
	}
	if flip2.Inputs()[0] != flip1.Outputs()[0] {
		t.Fatalf("expected flip2 to read directly from flip1's output once the reshape in between is elided")
	}
	if err := kernel.CheckInvariants(c); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}
