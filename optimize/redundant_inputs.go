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

// RedundantInputsPass coalesces any HyperKernel's duplicate operand
// registers into one physical slot, rebuilding the kernel with the
// deduplicated input list plus an operand-to-slot remap (kernel.Operand)
// so a fixed-arity opcode such as BinaryOp still addresses every logical
// operand position even though two of them now read the same slot.
type RedundantInputsPass struct{}

func (p *RedundantInputsPass) Name() string { return "RedundantInputs" }

func (p *RedundantInputsPass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, k := range c.Flatten() {
		if !k.IsHyperKernel() {
			continue
		}
		n := k.NumOperands()
		operands := make([]*kernel.VirtualFieldRegister, n)
		for i := 0; i < n; i++ {
			operands[i] = k.Operand(i)
		}
		unique, remap := kernel.DedupInputs(operands)
		if len(unique) == n {
			continue
		}
		nk := c.NewReindexedKernel(k.Opcode(), k.Kind(), unique, remap, outputTypesOf(k))
		c.TransferOutputs(nk, k)
		if err := c.RemoveFromCircuit(k, true, true); err != nil {
			return count, violateInvariant(p.Name(), k, err)
		}
		count++
	}
	return count, nil
}
