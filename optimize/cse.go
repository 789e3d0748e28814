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
	"strings"

	"kernelopt/kernel"
)

// CommonSubexpressionPass merges kernels that compute the identical value:
// same Kind, same Opcode (by Equals, not just by Go type), and the exact
// same ordered input registers. Kernels are visited in construction order,
// which is always a valid producers-before-consumers order in this IR
// (NewKernel requires every input register to already exist), so a
// kernel's inputs have already either survived this pass or been merged
// into their own canonical kernel by the time it is this kernel's turn.
type CommonSubexpressionPass struct{}

func (p *CommonSubexpressionPass) Name() string { return "CommonSubexpression" }

func (p *CommonSubexpressionPass) Run(c *kernel.KernelCircuit) (int, error) {
	seen := make(map[string][]*kernel.AbstractKernel)
	count := 0
	for _, k := range c.Flatten() {
		key := cseKey(k)
		var canonical *kernel.AbstractKernel
		for _, cand := range seen[key] {
			if cand.Opcode().Equals(k.Opcode()) {
				canonical = cand
				break
			}
		}
		if canonical == nil {
			seen[key] = append(seen[key], k)
			continue
		}
		c.StealOutputsFrom(canonical, k)
		count++
	}
	return count, nil
}

// cseKey hashes a kernel's Kind, Opcode and ordered input identities into a
// bucket key. Hash collisions land in the same bucket but are still
// disambiguated by a structural Opcode.Equals check before a merge, so a
// weak or colliding hash can only cost extra comparisons, never a wrong
// merge — the regression case this pass exists to protect against is an
// opcode whose Equals and Hash disagree, which a hash-only key would miss
// silently.
func cseKey(k *kernel.AbstractKernel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|", k.Kind(), kernel.HashOpcode(k.Opcode()))
	for _, in := range k.Inputs() {
		fmt.Fprintf(&b, "%p,", in)
	}
	return b.String()
}
