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

// fixupRecurrence refreshes every RecurrentField kernel's out-of-band
// feedback pointer by chasing the circuit's rename map, so a pointer aimed
// at a register some pass just stole outputs from follows the rewrite
// instead of going stale. It runs exactly once at the tail of every single
// pass invocation, never once per optimizer run: a pass earlier in a
// round-robin group can steal a register a later one's recurrence pointer
// still names.
func fixupRecurrence(c *kernel.KernelCircuit) {
	for _, k := range c.Kernels() {
		if k.IsDead() || k.Kind() != kernel.RecurrentField {
			continue
		}
		if r := k.Recurrence(); r != nil {
			k.SetRecurrence(c.FindStolenOutput(r))
		}
	}
}
