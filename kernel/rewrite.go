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

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// StealOutputsFrom is the only primitive that keeps a register's identity
// across a rewrite instead of moving its sinks: for every output position
// i, other.outputs[i] is re-sourced at this and takes this.outputs[i]'s
// place. this.outputs[i]'s own sinks, probed flag and name are migrated
// onto the surviving register too, so a consumer that was already reading
// this before the merge ends up reading the same register object as one
// that was reading other — this never leaves two live, independently
// addressable registers both claiming this as their source. The
// now-unreferenced old register is recorded in the rename map so any
// out-of-band pointer still aimed at it gets redirected. other is then
// marked dead and unlinked from its own inputs.
//
// This is used exclusively by CommonSubexpression: this is the
// already-seen canonical kernel, other is the newly-found duplicate.
func (c *KernelCircuit) StealOutputsFrom(this, other *AbstractKernel) {
	if len(this.outputs) != len(other.outputs) {
		panic(fmt.Sprintf("kernel: StealOutputsFrom arity mismatch: %s has %d outputs, %s has %d",
			this.DebugName(), len(this.outputs), other.DebugName(), len(other.outputs)))
	}
	for i, reg := range other.outputs {
		old := this.outputs[i]
		reg.source = this
		this.outputs[i] = reg
		c.StealSinksFrom(reg, old)
		StealProbeAndNameFrom(reg, old)
	}
	c.unlinkInputs(other)
	other.isDead = true
}

// StealSinksFrom moves every (kernel, input index) reader of oldReg onto
// newReg and records the rename oldReg ↦ newReg.
func (c *KernelCircuit) StealSinksFrom(newReg, oldReg *VirtualFieldRegister) {
	if newReg == oldReg {
		return
	}
	for _, s := range oldReg.sinks {
		s.Kernel.inputs[s.Input] = newReg
		newReg.addSink(s.Kernel, s.Input)
	}
	oldReg.sinks = nil
	c.recordRename(oldReg, newReg)
}

// StealProbeAndNameFrom ORs oldReg's probed flag into newReg and copies
// oldReg's name onto newReg if newReg has none of its own.
func StealProbeAndNameFrom(newReg, oldReg *VirtualFieldRegister) {
	if oldReg.probed {
		newReg.probed = true
	}
	if newReg.name == "" && oldReg.name != "" {
		newReg.name = oldReg.name
	}
}

// TransferOutputs moves every sink and the probed/name flags from oldK's
// outputs onto the correspondingly-positioned outputs of newK. This is the
// "transfers outputs and sinks" step the one-for-one kernel-rebuilding
// passes (HyperKernelMerger, RedundantInputs, TensorReduce,
// ProjectFrameTensorReduceSum, TransformTranspose) perform before removing
// oldK; HyperKernelMultiOutputMerger and ReshapeRemover move sinks with
// StealSinksFrom directly instead.
func (c *KernelCircuit) TransferOutputs(newK, oldK *AbstractKernel) {
	if len(newK.outputs) != len(oldK.outputs) {
		panic(fmt.Sprintf("kernel: TransferOutputs arity mismatch: %s has %d outputs, %s has %d",
			newK.DebugName(), len(newK.outputs), oldK.DebugName(), len(oldK.outputs)))
	}
	for i := range oldK.outputs {
		c.StealSinksFrom(newK.outputs[i], oldK.outputs[i])
		StealProbeAndNameFrom(newK.outputs[i], oldK.outputs[i])
	}
}

// unlinkInputs removes k from the sinks of every one of its current
// inputs, without touching k.isDead.
func (c *KernelCircuit) unlinkInputs(k *AbstractKernel) {
	for i, in := range k.inputs {
		in.removeSink(k, i)
	}
}

// RemoveFromCircuit removes k from the circuit. Unless mustDo is set, it
// first checks that every output has no sinks and is not probed, returning
// an error instead of mutating anything if that precondition fails. If
// recursive is set, inputs that become dangling (no sinks, not probed)
// purely as a result of this removal are recursively removed too, as long
// as doing so doesn't touch a still-observed kernel: a probed one, a
// RecurrentField or CPU kernel, or the source of a live RecurrentField
// kernel's (rename-chased) recurrence register.
func (c *KernelCircuit) RemoveFromCircuit(k *AbstractKernel, mustDo, recursive bool) error {
	if !mustDo {
		for _, o := range k.outputs {
			if o.HasSinks() || o.probed {
				return fmt.Errorf("kernel: cannot remove %s: output %s still has sinks or is probed", k.DebugName(), o)
			}
		}
	}
	inputs := append([]*VirtualFieldRegister(nil), k.inputs...)
	c.unlinkInputs(k)
	k.isDead = true

	if recursive {
		for _, in := range inputs {
			src := in.source
			if src == nil || src.isDead || src.kind == RecurrentField || src.kind == CPU {
				continue
			}
			danglerSafe := true
			for _, o := range src.outputs {
				if o.HasSinks() || o.probed {
					danglerSafe = false
					break
				}
			}
			for _, rk := range c.kernels {
				if danglerSafe && !rk.isDead && rk.kind == RecurrentField && rk.recurrence != nil &&
					c.FindStolenOutput(rk.recurrence).source == src {
					danglerSafe = false
				}
			}
			if danglerSafe {
				c.RemoveFromCircuit(src, false, true)
			}
		}
	}
	return nil
}

// DedupInputs returns the unique registers in inputs (first occurrence
// order preserved) along with remap, where remap[i] is the index of
// inputs[i] within the returned unique slice. Used by RedundantInputs to
// build the coalesced input list a rewritten HyperKernel needs.
func DedupInputs(inputs []*VirtualFieldRegister) (unique []*VirtualFieldRegister, remap []int) {
	remap = make([]int, len(inputs))
	for i, in := range inputs {
		if j := slices.Index(unique, in); j >= 0 {
			remap[i] = j
			continue
		}
		remap[i] = len(unique)
		unique = append(unique, in)
	}
	return unique, remap
}
