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

package factory

import (
	"testing"

	"kernelopt/device"
	"kernelopt/kernel"
)

func TestConvolveHyperKernelRejectsWrongOutputType(t *testing.T) {
	c := kernel.NewKernelCircuit()
	sig := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sig"}, kernel.ConstantField, nil,
		[]kernel.FieldType{kernel.MustFieldType(kernel.Shape{8, 8}, nil, kernel.Float32)})
	filt := c.NewKernel(kernel.ConstantFieldOp{FieldName: "filt"}, kernel.ConstantField, nil,
		[]kernel.FieldType{kernel.MustFieldType(kernel.Shape{8, 8}, nil, kernel.Float32)})

	op := kernel.ConvolveOp{BatchSize: 1}
	wrong := kernel.MustFieldType(kernel.Shape{4, 4}, nil, kernel.Float32)
	_, err := ConvolveHyperKernel(c, []*kernel.VirtualFieldRegister{sig.Outputs()[0], filt.Outputs()[0]}, op, wrong, device.Params{}, nil)
	if err == nil {
		t.Fatalf("expected an error when the declared output type does not match the computed one")
	}

	right, err := ConvolveOutputFieldType(sig.Outputs()[0].FieldType(), filt.Outputs()[0].FieldType(), op.Border, op.Sampling, op.VectorMode, op.BatchSize)
	if err != nil {
		t.Fatalf("unexpected error computing output type: %v", err)
	}
	k, err := ConvolveHyperKernel(c, []*kernel.VirtualFieldRegister{sig.Outputs()[0], filt.Outputs()[0]}, op, right, device.Params{}, device.StaticProfiler{})
	if err != nil {
		t.Fatalf("unexpected error building the kernel: %v", err)
	}
	if !k.Outputs()[0].FieldType().Equals(right) {
		t.Fatalf("built kernel's output type does not match")
	}
}

func TestIsMergeableRejectsStructuralOpcodes(t *testing.T) {
	if IsMergeable(kernel.ReshapeOp{}, kernel.BinaryOp{Kind: kernel.Add}) {
		t.Fatalf("a reshape should never be accepted as a merge sink")
	}
	if !IsMergeable(kernel.BinaryOp{Kind: kernel.Add}, kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 2}) {
		t.Fatalf("two elementwise opcodes should be mergeable")
	}
}
