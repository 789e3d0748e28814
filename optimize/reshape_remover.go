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

// ReshapeRemoverPass elides every ReshapeOp kernel whose output is not
// probed, rewiring its sinks directly onto its input's register: a reshape
// never touches the underlying data (evalPassthroughShapeOnly only checks
// the element count is preserved), so any internal consumer can read
// straight through it regardless of whether the declared shape actually
// changes or the input happens to be another reshape. A probed reshape is
// left in place, since its declared shape is the external contract a
// caller reads the result against. One Run already collapses an unprobed
// chain, since kernels are visited producers first and each elided
// reshape's readers are rewired before the next link is visited; the
// driver still runs this to a fixed point like its other groups.
type ReshapeRemoverPass struct{}

func (p *ReshapeRemoverPass) Name() string { return "ReshapeRemover" }

func (p *ReshapeRemoverPass) Run(c *kernel.KernelCircuit) (int, error) {
	count := 0
	for _, k := range c.Flatten() {
		if _, ok := k.Opcode().(kernel.ReshapeOp); !ok {
			continue
		}
		out := k.Outputs()[0]
		if out.Probed() {
			continue
		}
		in := k.Inputs()[0]
		c.StealSinksFrom(in, out)
		kernel.StealProbeAndNameFrom(in, out)
		if err := c.RemoveFromCircuit(k, true, true); err != nil {
			return count, violateInvariant(p.Name(), k, err)
		}
		count++
	}
	return count, nil
}
