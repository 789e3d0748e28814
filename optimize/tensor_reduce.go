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

// TensorReduceFusionPass collapses a chain of two TensorReduceOp kernels
// using the same associative operator into a single kernel with the
// combined reduction factor, when the inner reduction has no other reader.
// It is one of the one-shot passes: TransformTranspose and the
// HyperKernelMerger group run to a fixed point on their own structures, but
// a chain of plain reductions never grows back once collapsed, so one pass
// over the circuit is enough.
type TensorReduceFusionPass struct{}

func (p *TensorReduceFusionPass) Name() string { return "TensorReduce" }

func (p *TensorReduceFusionPass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, outer := range c.Flatten() {
		outerOp, ok := outer.Opcode().(kernel.TensorReduceOp)
		if !ok {
			continue
		}
		in := outer.Inputs()[0]
		inner := in.Source()
		if inner == nil || inner.IsDead() {
			continue
		}
		innerOp, ok := inner.Opcode().(kernel.TensorReduceOp)
		if !ok || innerOp.Operator != outerOp.Operator {
			continue
		}
		if len(inner.Outputs()[0].Sinks()) != 1 {
			continue
		}
		merged := kernel.TensorReduceOp{Operator: outerOp.Operator, Factor: innerOp.Factor * outerOp.Factor}
		nk := c.NewKernel(merged, outer.Kind(), []*kernel.VirtualFieldRegister{inner.Inputs()[0]}, outputTypesOf(outer))
		c.TransferOutputs(nk, outer)
		if err := c.RemoveFromCircuit(outer, true, true); err != nil {
			return count, violateInvariant(p.Name(), outer, err)
		}
		count++
	}
	return count, nil
}
