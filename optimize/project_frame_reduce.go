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
	"kernelopt/device"
	"kernelopt/factory"
	"kernelopt/kernel"
)

// ProjectFrameTensorReduceSumPass fuses a ProjectFrame, BackProjectFrame or
// FilterAdjoint convolution with a downstream sum reduction over its
// trailing tensor dimension into the convolution's own *BlockReduceSum
// vector mode, avoiding ever materializing the unreduced intermediate. Each
// of the three source modes has its own config flag because each has
// different device-legality consequences; FilterAdjoint additionally
// consults factory.CanUseFilterAdjointBlockReduceSum since that fused form
// is only representable on some devices.
type ProjectFrameTensorReduceSumPass struct {
	Config   Config
	Params   device.Params
	Profiler device.Profiler
}

func (p *ProjectFrameTensorReduceSumPass) Name() string { return "ProjectFrameTensorReduceSum" }

func (p *ProjectFrameTensorReduceSumPass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, reduce := range c.Flatten() {
		reduceOp, ok := reduce.Opcode().(kernel.TensorReduceOp)
		if !ok || reduceOp.Operator != kernel.ReduceSum {
			continue
		}
		in := reduce.Inputs()[0]
		conv := in.Source()
		if conv == nil || conv.IsDead() {
			continue
		}
		convOp, ok := conv.Opcode().(kernel.ConvolveOp)
		if !ok {
			continue
		}
		if len(conv.Outputs()[0].Sinks()) != 1 {
			continue
		}
		fused, ok := convOp.VectorMode.BlockReduceSumVariant()
		if !ok || !p.gateEnabled(convOp.VectorMode) {
			continue
		}
		if reduceOp.Factor != in.FieldType().TensorShape[len(in.FieldType().TensorShape)-1] {
			continue
		}
		convInputs := []*kernel.VirtualFieldRegister{conv.Operand(0), conv.Operand(1)}
		if convOp.VectorMode == kernel.VectorModeFilterAdjoint {
			fieldShape := convInputs[0].FieldType().FieldShape
			if !factory.CanUseFilterAdjointBlockReduceSum(convInputs, convOp, fieldShape, p.Params) {
				continue
			}
		}

		fusedOp := convOp
		fusedOp.VectorMode = fused
		outputType, err := factory.ConvolveOutputFieldType(convInputs[0].FieldType(), convInputs[1].FieldType(), fusedOp.Border, fusedOp.Sampling, fusedOp.VectorMode, fusedOp.BatchSize)
		if err != nil {
			return count, violateInvariant(p.Name(), conv, err)
		}
		if !outputType.Equals(reduce.Outputs()[0].FieldType()) {
			return count, violateInvariant(p.Name(), reduce, errMismatchedFusedType(outputType, reduce.Outputs()[0].FieldType()))
		}
		nk, err := factory.ConvolveHyperKernel(c, convInputs, fusedOp, outputType, p.Params, p.Profiler)
		if err != nil {
			return count, violateInvariant(p.Name(), conv, err)
		}
		c.TransferOutputs(nk, reduce)
		if err := c.RemoveFromCircuit(reduce, true, true); err != nil {
			return count, violateInvariant(p.Name(), reduce, err)
		}
		count++
	}
	return count, nil
}

func (p *ProjectFrameTensorReduceSumPass) gateEnabled(mode kernel.VectorMode) bool {
	switch mode {
	case kernel.VectorModeProjectFrame:
		return p.Config.ProjectFrameMerging
	case kernel.VectorModeBackProjectFrame:
		return p.Config.BackProjectFrameMerging
	case kernel.VectorModeFilterAdjoint:
		return p.Config.FilterAdjointMerging
	default:
		return false
	}
}
