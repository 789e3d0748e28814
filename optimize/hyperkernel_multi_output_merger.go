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
	"fmt"
	"log"

	"kernelopt/factory"
	"kernelopt/kernel"
)

// HyperKernelMultiOutputMergerPass combines sibling HyperKernels that read
// the exact same ordered input list into a single multi-output kernel, when
// factory.CanShareMultiOutputKernel allows the pair. Unlike
// HyperKernelMerger this never changes a consumer's input set: the merged
// kernel has exactly the inputs its two components shared, and its outputs
// are the concatenation of each component's, so moving each component
// output's sinks onto the matching merged output (StealSinksFrom, which
// also records the rename) retargets every existing consumer.
type HyperKernelMultiOutputMergerPass struct {
	Verbose bool
	Logger  *log.Logger
}

func (p *HyperKernelMultiOutputMergerPass) Name() string { return "HyperKernelMultiOutputMerger" }

func (p *HyperKernelMultiOutputMergerPass) Run(c *kernel.KernelCircuit) (int, error) {
	groups := make(map[string][]*kernel.AbstractKernel)
	for _, k := range c.Flatten() {
		if !k.IsHyperKernel() {
			continue
		}
		groups[inputSignature(k)] = append(groups[inputSignature(k)], k)
	}

	count := 0
	for _, siblings := range groups {
		if len(siblings) < 2 {
			continue
		}
		a := siblings[0]
		for _, b := range siblings[1:] {
			if a.IsDead() || b.IsDead() {
				continue
			}
			if !factory.CanShareMultiOutputKernel(a.Opcode(), b.Opcode()) {
				continue
			}
			merged, err := p.merge(c, a, b)
			if err != nil {
				return count, err
			}
			if merged {
				count++
			}
		}
	}
	return count, nil
}

func (p *HyperKernelMultiOutputMergerPass) merge(c *kernel.KernelCircuit, a, b *kernel.AbstractKernel) (bool, error) {
	newOp := kernel.SharedOp{First: a.Opcode(), Second: b.Opcode()}
	outputTypes := append(outputTypesOf(a), outputTypesOf(b)...)
	nk := c.NewKernel(newOp, kernel.Device, a.Inputs(), outputTypes)

	for i, o := range a.Outputs() {
		c.StealSinksFrom(nk.Outputs()[i], o)
		kernel.StealProbeAndNameFrom(nk.Outputs()[i], o)
	}
	offset := len(a.Outputs())
	for i, o := range b.Outputs() {
		c.StealSinksFrom(nk.Outputs()[offset+i], o)
		kernel.StealProbeAndNameFrom(nk.Outputs()[offset+i], o)
	}
	if err := c.RemoveFromCircuit(a, true, true); err != nil {
		return false, violateInvariant(p.Name(), a, err)
	}
	if err := c.RemoveFromCircuit(b, true, true); err != nil {
		return false, violateInvariant(p.Name(), b, err)
	}
	if p.Verbose && p.Logger != nil {
		p.Logger.Printf("optimize: HyperKernelMultiOutputMerger: combined %s and %s into %s", a.DebugName(), b.DebugName(), nk.DebugName())
	}
	return true, nil
}

func inputSignature(k *kernel.AbstractKernel) string {
	s := fmt.Sprintf("%d:", k.Kind())
	for _, in := range k.Inputs() {
		s += fmt.Sprintf("%p,", in)
	}
	return s
}
