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

package kernel

import "fmt"

// CheckInvariants verifies the structural invariants every pass must leave
// intact: acyclicity, sink consistency, and that no dead kernel is
// reachable from a live one. It is meant for tests and for callers such as
// cmd/kernelopt that validate a finished circuit, not the hot path; the
// optimizer's driver does not call it.
func CheckInvariants(c *KernelCircuit) error {
	if err := checkAcyclic(c); err != nil {
		return err
	}
	if err := checkSinkConsistency(c); err != nil {
		return err
	}
	if err := checkNoDeadReachable(c); err != nil {
		return err
	}
	return nil
}

func checkAcyclic(c *KernelCircuit) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[*AbstractKernel]int)
	var visit func(k *AbstractKernel) error
	visit = func(k *AbstractKernel) error {
		switch color[k] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("kernel: cycle detected at %s", k.DebugName())
		}
		color[k] = gray
		for _, in := range k.inputs {
			if err := visit(in.source); err != nil {
				return err
			}
		}
		color[k] = black
		return nil
	}
	for _, k := range c.Flatten() {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

func checkSinkConsistency(c *KernelCircuit) error {
	for _, k := range c.Flatten() {
		for _, out := range k.outputs {
			if out.source != k {
				return fmt.Errorf("kernel: register owned by %s has source %v", k.DebugName(), out.source)
			}
			for _, s := range out.sinks {
				if s.Kernel.isDead {
					return fmt.Errorf("kernel: register of %s has a dead sink %s", k.DebugName(), s.Kernel.DebugName())
				}
				if s.Input < 0 || s.Input >= len(s.Kernel.inputs) || s.Kernel.inputs[s.Input] != out {
					return fmt.Errorf("kernel: sink (%s, %d) does not point back at its register", s.Kernel.DebugName(), s.Input)
				}
			}
		}
	}
	return nil
}

// checkNoDeadReachable walks from the roots itself rather than using
// TraversePreorder, whose walk already filters out dead kernels before a
// visitor ever sees them (by design, so ordinary traversals and reports
// never have to skip tombstones themselves) — using it here would make this
// check vacuous.
func checkNoDeadReachable(c *KernelCircuit) error {
	visited := make(map[*AbstractKernel]bool)
	var err error
	var walk func(k *AbstractKernel) bool
	walk = func(k *AbstractKernel) bool {
		if k == nil || visited[k] {
			return true
		}
		visited[k] = true
		if k.isDead {
			err = fmt.Errorf("kernel: dead kernel %s reachable from a root", k.DebugName())
			return false
		}
		for _, in := range k.inputs {
			if !walk(in.source) {
				return false
			}
		}
		return true
	}
	for _, root := range c.Roots() {
		if !walk(root) {
			break
		}
	}
	return err
}
