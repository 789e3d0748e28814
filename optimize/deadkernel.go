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

// DeadKernelPass removes every live kernel that is not reachable from the
// circuit's roots or from a CPU kernel. CPU kernels are never removed this
// way even if nothing reads their outputs: they are side-effecting by
// definition, so their presence in the circuit is itself the observation
// that keeps them, and every kernel they read, alive.
type DeadKernelPass struct{}

func (p *DeadKernelPass) Name() string { return "DeadKernel" }

func (p *DeadKernelPass) Run(c *kernel.KernelCircuit) (int, error) {
	reachable := make(map[*kernel.AbstractKernel]bool)
	for _, k := range c.FlattenPreorder() {
		reachable[k] = true
	}
	var keep func(k *kernel.AbstractKernel)
	keep = func(k *kernel.AbstractKernel) {
		if k == nil || k.IsDead() || reachable[k] {
			return
		}
		reachable[k] = true
		for _, in := range k.Inputs() {
			keep(in.Source())
		}
	}
	for _, k := range c.Flatten() {
		if k.Kind() == kernel.CPU {
			keep(k)
		}
	}
	count := 0
	for _, k := range c.Flatten() {
		if reachable[k] || k.Kind() == kernel.CPU {
			continue
		}
		if err := c.RemoveFromCircuit(k, true, false); err != nil {
			return count, violateInvariant(p.Name(), k, err)
		}
		count++
	}
	return count, nil
}
