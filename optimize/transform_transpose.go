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

import "kernelopt/kernel"

// TransformTransposePass cancels and pushes MatrixTransposeOp kernels
// through three patterns: a transpose-of-a-transpose is the identity and
// is elided entirely; a transpose feeding a MatrixTransformMatrixOp is
// folded into that kernel's own transpose flag instead of staying a
// materialized kernel; and a transpose reading a MatrixTransformMatrixOp's
// output is replaced outright with transpose(A@B) = B^T@A^T, absorbing
// the transpose into a new matmul over the original, swapped operands. It
// is run to a fixed point by the driver because folding one transpose can
// expose another (e.g. once a chain's inner transpose is elided, the
// kernel that used to sit between it and the outer one may now itself be
// a transpose-of-transpose).
type TransformTransposePass struct{}

func (p *TransformTransposePass) Name() string { return "TransformTranspose" }

func (p *TransformTransposePass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, k := range c.Flatten() {
		if _, ok := k.Opcode().(kernel.MatrixTransposeOp); !ok {
			continue
		}
		if p.cancelDoubleTranspose(c, k) {
			count++
			continue
		}
		if p.absorbDownstreamOfMatMul(c, k) {
			count++
			continue
		}
		if p.pushIntoMatMul(c, k) {
			count++
		}
	}
	return count, nil
}

// cancelDoubleTranspose removes k when k's single input is itself the
// output of a MatrixTransposeOp kernel, rewiring k's sinks directly onto
// the original pre-transpose register.
func (p *TransformTransposePass) cancelDoubleTranspose(c *kernel.KernelCircuit, k *kernel.AbstractKernel) bool {
	in := k.Inputs()[0]
	src := in.Source()
	if src == nil || src.IsDead() {
		return false
	}
	if _, ok := src.Opcode().(kernel.MatrixTransposeOp); !ok {
		return false
	}
	original := src.Inputs()[0]
	c.StealSinksFrom(original, k.Outputs()[0])
	kernel.StealProbeAndNameFrom(original, k.Outputs()[0])
	if err := c.RemoveFromCircuit(k, true, true); err != nil {
		return false
	}
	return true
}

// absorbDownstreamOfMatMul rewrites k when k's single input is the output
// of a MatrixTransformMatrixOp mm: transpose(A@B) = B^T@A^T, so k can be
// replaced outright by a MatrixTransformMatrixOp over mm's own inputs,
// swapped, with both transpose flags inverted. mm itself is untouched, so
// any other reader of mm's un-transposed output is unaffected.
func (p *TransformTransposePass) absorbDownstreamOfMatMul(c *kernel.KernelCircuit, k *kernel.AbstractKernel) bool {
	in := k.Inputs()[0]
	src := in.Source()
	if src == nil || src.IsDead() {
		return false
	}
	mm, ok := src.Opcode().(kernel.MatrixTransformMatrixOp)
	if !ok {
		return false
	}
	newOp := kernel.MatrixTransformMatrixOp{
		TransposeIn1: !mm.TransposeIn2,
		TransposeIn2: !mm.TransposeIn1,
	}
	newInputs := []*kernel.VirtualFieldRegister{src.Inputs()[1], src.Inputs()[0]}
	nk := c.NewKernel(newOp, k.Kind(), newInputs, outputTypesOf(k))
	c.TransferOutputs(nk, k)
	if err := c.RemoveFromCircuit(k, true, true); err != nil {
		return false
	}
	return true
}

// pushIntoMatMul folds k into every sink that is a MatrixTransformMatrixOp
// reading k's output directly, flipping the corresponding TransposeIn flag
// and reading from k's own input instead, as long as k's output is not
// itself probed. Other sinks (matmul or otherwise) are left reading k's
// output unchanged; k itself is only removed once none remain.
func (p *TransformTransposePass) pushIntoMatMul(c *kernel.KernelCircuit, k *kernel.AbstractKernel) bool {
	out := k.Outputs()[0]
	if out.Probed() {
		return false
	}
	folded := false
	for _, sink := range append([]kernel.Sink(nil), out.Sinks()...) {
		if sink.Kernel.IsDead() {
			continue
		}
		mm, ok := sink.Kernel.Opcode().(kernel.MatrixTransformMatrixOp)
		if !ok || sink.Input != 0 && sink.Input != 1 {
			continue
		}
		newOp := mm
		newInputs := append([]*kernel.VirtualFieldRegister(nil), sink.Kernel.Inputs()...)
		if sink.Input == 0 {
			newOp.TransposeIn1 = !mm.TransposeIn1
		} else {
			newOp.TransposeIn2 = !mm.TransposeIn2
		}
		newInputs[sink.Input] = k.Inputs()[0]

		nk := c.NewKernel(newOp, sink.Kernel.Kind(), newInputs, outputTypesOf(sink.Kernel))
		c.TransferOutputs(nk, sink.Kernel)
		if err := c.RemoveFromCircuit(sink.Kernel, true, true); err != nil {
			return folded
		}
		folded = true
	}
	return folded
}
