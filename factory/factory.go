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

// Package factory is the kernel-factory boundary: the constructors every
// optimization pass goes through to build a replacement kernel, and the
// device-specific legality predicates (is_mergeable,
// can_share_multi_output_kernel, can_use_variant) spec.md's open questions
// delegate to "the kernel-factory collaborators" as a black box. Every
// constructor here is total on legal inputs: it validates its arguments
// the way plan.lowerX validates a PIR node before lowering it, and returns
// an error instead of building a kernel whose output type wouldn't match
// what the caller declared.
package factory

import (
	"fmt"

	"kernelopt/device"
	"kernelopt/kernel"
)

func reject(format string, args ...any) error {
	return fmt.Errorf("factory: %s", fmt.Sprintf(format, args...))
}

// ConvolveOutputFieldType computes the output type of a convolution given
// its two input types and parameters, without constructing a kernel. Passes
// use this to validate a fused replacement's output type matches the
// original before committing to the rewrite.
func ConvolveOutputFieldType(in0, in1 kernel.FieldType, border kernel.BorderPolicy, sampling kernel.SamplingPolicy, mode kernel.VectorMode, batch int) (kernel.FieldType, error) {
	if batch <= 0 {
		return kernel.FieldType{}, reject("convolve: batch size must be positive, got %d", batch)
	}
	fieldShape := resample(in0.FieldShape, sampling)

	tensorShape := in0.TensorShape
	switch mode {
	case kernel.VectorModeProjectFrameBlockReduceSum, kernel.VectorModeBackProjectFrameBlockReduceSum, kernel.VectorModeFilterAdjointBlockReduceSum:
		// the fused forms drop the trailing tensor dimension the plain
		// ProjectFrame/BackProjectFrame/FilterAdjoint variant would have
		// left for a separate downstream tensor-reduce-sum to collapse.
		if len(tensorShape) > 0 {
			tensorShape = tensorShape[:len(tensorShape)-1]
		}
	}
	return kernel.NewFieldType(fieldShape, tensorShape, in0.Element)
}

func resample(sh kernel.Shape, sampling kernel.SamplingPolicy) kernel.Shape {
	out := make(kernel.Shape, len(sh))
	for i, d := range sh {
		switch sampling {
		case kernel.Upsample:
			out[i] = d * 2
		case kernel.Downsample:
			out[i] = (d + 1) / 2
		default:
			out[i] = d
		}
	}
	return out
}

// ConvolveHyperKernel builds a device convolution kernel. inputs must have
// length 2 (signal, filter). outputType must be exactly what
// ConvolveOutputFieldType computes for the same parameters; a mismatch is
// treated as an internal invariant violation by the caller, not retried
// here.
func ConvolveHyperKernel(
	c *kernel.KernelCircuit,
	inputs []*kernel.VirtualFieldRegister,
	op kernel.ConvolveOp,
	outputType kernel.FieldType,
	params device.Params,
	profiler device.Profiler,
) (*kernel.AbstractKernel, error) {
	if len(inputs) != 2 {
		return nil, reject("convolve_hyperkernel: expected 2 inputs, got %d", len(inputs))
	}
	want, err := ConvolveOutputFieldType(inputs[0].FieldType(), inputs[1].FieldType(), op.Border, op.Sampling, op.VectorMode, op.BatchSize)
	if err != nil {
		return nil, err
	}
	if !want.Equals(outputType) {
		return nil, reject("convolve_hyperkernel: declared output type %s does not match computed type %s", outputType, want)
	}
	if profiler != nil {
		variants := []device.Variant{{Name: "default", Cost: 1}}
		if params.TiledConvolveEnable {
			variants = append(variants, device.Variant{Name: "tiled", Cost: 0.5})
		}
		_ = profiler.Pick(variants)
	}
	return c.NewKernel(op, kernel.Device, inputs, []kernel.FieldType{outputType}), nil
}

// CanUseFilterAdjointBlockReduceSum is the kernel-factory predicate
// ProjectFrameTensorReduceSum consults before fusing a FilterAdjoint
// convolution with its downstream tensor-reduce-sum: it's the device's
// call on whether the fused form is representable for fieldShape on this
// device, not something the optimizer can determine on its own.
func CanUseFilterAdjointBlockReduceSum(inputs []*kernel.VirtualFieldRegister, op kernel.ConvolveOp, fieldShape kernel.Shape, params device.Params) bool {
	if op.VectorMode != kernel.VectorModeFilterAdjoint {
		return false
	}
	if op.Sampling != kernel.Upsample || op.Orientation != kernel.CrossCorrelation || op.BatchSize <= 1 {
		return false
	}
	return len(fieldShape) > 0
}

// TensorReduceHyperKernel builds a tensor-reduce kernel over a single
// input.
func TensorReduceHyperKernel(c *kernel.KernelCircuit, input *kernel.VirtualFieldRegister, op kernel.TensorReduceOp, outputType kernel.FieldType) (*kernel.AbstractKernel, error) {
	in := input.FieldType()
	if in.TensorOrder() == 0 {
		return nil, reject("tensor_reduce_hyperkernel: input has no tensor dimensions to reduce")
	}
	if op.Factor <= 0 || in.TensorPoints()%op.Factor != 0 {
		return nil, reject("tensor_reduce_hyperkernel: factor %d does not divide %d tensor points", op.Factor, in.TensorPoints())
	}
	return c.NewKernel(op, kernel.Device, []*kernel.VirtualFieldRegister{input}, []kernel.FieldType{outputType}), nil
}

// SliceVectorsHyperKernel builds a kernel slicing a single tensor index out
// of its input.
func SliceVectorsHyperKernel(c *kernel.KernelCircuit, input *kernel.VirtualFieldRegister, op kernel.TensorSliceOp, outputType kernel.FieldType) (*kernel.AbstractKernel, error) {
	in := input.FieldType()
	if in.TensorOrder() == 0 {
		return nil, reject("slice_vectors_hyperkernel: input has no tensor dimension to slice")
	}
	if op.Index < 0 || op.Index >= in.TensorShape[0] {
		return nil, reject("slice_vectors_hyperkernel: index %d out of range for leading tensor dimension %d", op.Index, in.TensorShape[0])
	}
	return c.NewKernel(op, kernel.Device, []*kernel.VirtualFieldRegister{input}, []kernel.FieldType{outputType}), nil
}

// MatrixMatrixTransformHyperKernel builds a matrix-multiply kernel, with
// optional transposition of either input baked into the opcode.
func MatrixMatrixTransformHyperKernel(c *kernel.KernelCircuit, inputs []*kernel.VirtualFieldRegister, op kernel.MatrixTransformMatrixOp, outputType kernel.FieldType) (*kernel.AbstractKernel, error) {
	if len(inputs) != 2 {
		return nil, reject("matrix_matrix_transform_hyperkernel: expected 2 inputs, got %d", len(inputs))
	}
	for i, in := range inputs {
		if in.FieldType().TensorOrder() != 2 {
			return nil, reject("matrix_matrix_transform_hyperkernel: input %d is not a matrix field", i)
		}
	}
	return c.NewKernel(op, kernel.Device, inputs, []kernel.FieldType{outputType}), nil
}

// CanUseVariant is the GPU runtime's predicate for whether a device-specific
// lowering variant of op is usable for shape on this device. The optimizer
// only ever consults it, never implements device capability logic itself.
func CanUseVariant(inputs []*kernel.VirtualFieldRegister, op kernel.Opcode, shape kernel.Shape, params device.Params) bool {
	return true
}

// IsMergeable is the device-specific legality predicate behind
// HyperKernel.find_mergeable_input (spec.md §9 Open Questions: "delegated
// to the kernel-factory collaborators; re-implementations should preserve
// the predicate's semantics as a black box"). Structural, shape-changing
// opcodes (reductions, reshapes, transposes, slices) are never merge
// sources or sinks here: fusing them into a single device kernel would
// require the composed kernel to describe a shape change mid-body, which
// the MergedOp representation (two plain component opcodes) can't express.
// Plain elementwise device opcodes fuse freely with one another.
func IsMergeable(sinkOp, sourceOp kernel.Opcode) bool {
	return isElementwise(sinkOp) && isElementwise(sourceOp)
}

func isElementwise(op kernel.Opcode) bool {
	switch op.(type) {
	case kernel.BinaryOp, kernel.ScalarOp, kernel.FlipOp:
		return true
	default:
		return false
	}
}

// CanShareMultiOutputKernel is the device-specific legality predicate
// behind HyperKernelMultiOutputMerger: whether two same-arity HyperKernels
// that already read the same input set can be combined into one
// multi-output kernel. Conservatively requires both opcodes to be
// elementwise, for the same reason IsMergeable does.
func CanShareMultiOutputKernel(a, b kernel.Opcode) bool {
	return isElementwise(a) && isElementwise(b)
}
