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
	"log"

	"kernelopt/factory"
	"kernelopt/kernel"
)

// HyperKernelMergerPass fuses a sink HyperKernel with a single-output
// source HyperKernel that feeds exactly one of its inputs and reads nowhere
// else, when factory.IsMergeable allows the pair, into one MergedOp
// kernel. It runs grouped with HyperKernelMultiOutputMerger to a fixed
// point: fusing one pair can expose a new single-sink neighbor for the
// next.
type HyperKernelMergerPass struct {
	Verbose bool
	Logger  *log.Logger
}

func (p *HyperKernelMergerPass) Name() string { return "HyperKernelMerger" }

func (p *HyperKernelMergerPass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, sink := range c.Flatten() {
		if sink.IsDead() || !sink.IsHyperKernel() {
			continue
		}
		merged, err := p.tryMerge(c, sink)
		if err != nil {
			return count, err
		}
		if merged {
			count++
		}
	}
	return count, nil
}

func (p *HyperKernelMergerPass) tryMerge(c *kernel.KernelCircuit, sink *kernel.AbstractKernel) (bool, error) {
	n := sink.NumOperands()
	for idx := 0; idx < n; idx++ {
		in := sink.Operand(idx)
		src := in.Source()
		if src == nil || src.IsDead() || !src.IsHyperKernel() || src == sink {
			continue
		}
		if len(src.Outputs()) != 1 || len(in.Sinks()) != 1 {
			continue
		}
		if !factory.IsMergeable(sink.Opcode(), src.Opcode()) {
			continue
		}

		newOp := kernel.MergedOp{Sink: sink.Opcode(), Source: src.Opcode(), SourceOffset: idx}
		srcN := src.NumOperands()
		newInputs := make([]*kernel.VirtualFieldRegister, 0, n-1+srcN)
		for j := 0; j < idx; j++ {
			newInputs = append(newInputs, sink.Operand(j))
		}
		for j := 0; j < srcN; j++ {
			newInputs = append(newInputs, src.Operand(j))
		}
		for j := idx + 1; j < n; j++ {
			newInputs = append(newInputs, sink.Operand(j))
		}

		nk := c.NewKernel(newOp, kernel.Device, newInputs, outputTypesOf(sink))
		c.TransferOutputs(nk, sink)
		if err := c.RemoveFromCircuit(sink, true, true); err != nil {
			return false, violateInvariant(p.Name(), sink, err)
		}
		if p.Verbose && p.Logger != nil {
			p.Logger.Printf("optimize: HyperKernelMerger: fused %s into %s", src.DebugName(), nk.DebugName())
		}
		return true, nil
	}
	return false, nil
}
