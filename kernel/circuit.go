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

// KernelCircuit is the mutable DAG of kernels produced by the field-algebra
// frontend and rewritten in place by the optimizer. It owns every kernel
// and register, the insertion order kernels were created in (used for
// deterministic traversal), and the rename map that lets out-of-band
// (recurrence) pointers survive rewrites that replace the register they
// once pointed at.
type KernelCircuit struct {
	kernels []*AbstractKernel
	renames map[*VirtualFieldRegister]*VirtualFieldRegister
	nextID  int
}

// NewKernelCircuit returns an empty circuit.
func NewKernelCircuit() *KernelCircuit {
	return &KernelCircuit{renames: make(map[*VirtualFieldRegister]*VirtualFieldRegister)}
}

// NewKernel is the only way to add a kernel to a circuit: it allocates the
// kernel, wires its inputs' sinks, and allocates one fresh output register
// per entry in outputTypes. Kernel factories are expected to call this as
// their final construction step.
func (c *KernelCircuit) NewKernel(opcode Opcode, kind Kind, inputs []*VirtualFieldRegister, outputTypes []FieldType) *AbstractKernel {
	k := &AbstractKernel{
		id:     c.nextID,
		opcode: opcode,
		kind:   kind,
		inputs: append([]*VirtualFieldRegister(nil), inputs...),
	}
	c.nextID++
	for _, ft := range outputTypes {
		k.outputs = append(k.outputs, NewVirtualFieldRegister(k, ft))
	}
	for i, in := range k.inputs {
		in.addSink(k, i)
	}
	c.kernels = append(c.kernels, k)
	return k
}

// NewReindexedKernel is NewKernel plus an explicit operandRefs: used by
// RedundantInputs when the opcode's logical operand count exceeds the
// deduplicated inputs it actually built the kernel with, so Operand(i)
// still resolves every original operand position to its coalesced slot.
func (c *KernelCircuit) NewReindexedKernel(opcode Opcode, kind Kind, inputs []*VirtualFieldRegister, operandRefs []int, outputTypes []FieldType) *AbstractKernel {
	k := c.NewKernel(opcode, kind, inputs, outputTypes)
	k.operandRefs = append([]int(nil), operandRefs...)
	return k
}

// Kernels returns every kernel ever created in this circuit, in insertion
// order, including dead tombstones. Most callers want Flatten instead.
func (c *KernelCircuit) Kernels() []*AbstractKernel { return c.kernels }

// Flatten returns every live kernel, in insertion order.
func (c *KernelCircuit) Flatten() []*AbstractKernel {
	out := make([]*AbstractKernel, 0, len(c.kernels))
	for _, k := range c.kernels {
		if !k.isDead {
			out = append(out, k)
		}
	}
	return out
}

// Size is the number of live kernels.
func (c *KernelCircuit) Size() int {
	n := 0
	for _, k := range c.kernels {
		if !k.isDead {
			n++
		}
	}
	return n
}

// Roots are the live kernels directly observed from outside the circuit:
// those with at least one probed output, every RecurrentField kernel
// (its current-cycle value is read every cycle by the runtime), and the
// source kernel of every RecurrentField kernel's recurrence register (kept
// alive across cycles even though it may have no in-DAG sinks).
func (c *KernelCircuit) Roots() []*AbstractKernel {
	var roots []*AbstractKernel
	seen := make(map[*AbstractKernel]bool)
	add := func(k *AbstractKernel) {
		if k != nil && !k.isDead && !seen[k] {
			seen[k] = true
			roots = append(roots, k)
		}
	}
	for _, k := range c.kernels {
		if k.isDead {
			continue
		}
		if k.kind == RecurrentField {
			add(k)
			if k.recurrence != nil {
				add(k.recurrence.source)
			}
			continue
		}
		for _, o := range k.outputs {
			if o.probed {
				add(k)
				break
			}
		}
	}
	return roots
}

// VisitFunc is called once per kernel during a preorder traversal. Returning
// false stops the traversal entirely.
type VisitFunc func(*AbstractKernel) bool

// TraversePreorder walks the DAG from Roots(), visiting each sink kernel
// before the kernels that produce its inputs, each live kernel exactly
// once. Traversal order is deterministic given the circuit's insertion
// order (Roots is insertion-ordered and inputs are visited in input-index
// order).
func (c *KernelCircuit) TraversePreorder(visit VisitFunc) {
	visited := make(map[*AbstractKernel]bool)
	var walk func(k *AbstractKernel) bool
	walk = func(k *AbstractKernel) bool {
		if k == nil || k.isDead || visited[k] {
			return true
		}
		visited[k] = true
		if !visit(k) {
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
			return
		}
	}
}

// FlattenPreorder collects the result of TraversePreorder into a slice.
func (c *KernelCircuit) FlattenPreorder() []*AbstractKernel {
	var out []*AbstractKernel
	c.TraversePreorder(func(k *AbstractKernel) bool {
		out = append(out, k)
		return true
	})
	return out
}

// recordRename records that old has been replaced by new. Called by the
// rewrite primitives in rewrite.go; never by passes directly.
func (c *KernelCircuit) recordRename(old, new *VirtualFieldRegister) {
	if old == new {
		return
	}
	c.renames[old] = new
}

// FindStolenOutput chases the rename map to its fixed point, compressing
// the chain it walks so subsequent lookups are O(1). Returns r unchanged
// if it was never replaced.
func (c *KernelCircuit) FindStolenOutput(r *VirtualFieldRegister) *VirtualFieldRegister {
	if r == nil {
		return nil
	}
	var chain []*VirtualFieldRegister
	cur := r
	for {
		next, ok := c.renames[cur]
		if !ok {
			break
		}
		chain = append(chain, cur)
		cur = next
	}
	for _, node := range chain {
		c.renames[node] = cur
	}
	return cur
}
