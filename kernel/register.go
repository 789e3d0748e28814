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

// Sink is a (consumer kernel, input index) pair recorded on the register
// the consumer reads.
type Sink struct {
	Kernel *AbstractKernel
	Input  int
}

// VirtualFieldRegister is a kernel's output edge: the slot other kernels
// reference as an input. It is owned exclusively by its Source kernel.
type VirtualFieldRegister struct {
	source    *AbstractKernel
	fieldType FieldType
	sinks     []Sink
	probed    bool
	name      string
}

// NewVirtualFieldRegister constructs a register owned by source.
func NewVirtualFieldRegister(source *AbstractKernel, ft FieldType) *VirtualFieldRegister {
	return &VirtualFieldRegister{source: source, fieldType: ft}
}

// Source is the kernel that produces this register.
func (r *VirtualFieldRegister) Source() *AbstractKernel { return r.source }

// FieldType is the register's value type.
func (r *VirtualFieldRegister) FieldType() FieldType { return r.fieldType }

// Probed reports whether the register is externally observed.
func (r *VirtualFieldRegister) Probed() bool { return r.probed }

// SetProbed marks (or unmarks) the register as externally observed.
func (r *VirtualFieldRegister) SetProbed(p bool) { r.probed = p }

// Name is the register's optional display name.
func (r *VirtualFieldRegister) Name() string { return r.name }

// SetName sets the register's display name.
func (r *VirtualFieldRegister) SetName(n string) { r.name = n }

// Sinks is the ordered multiset of (kernel, input index) readers. Callers
// must not mutate the returned slice.
func (r *VirtualFieldRegister) Sinks() []Sink { return r.sinks }

// HasSinks reports whether any kernel reads this register.
func (r *VirtualFieldRegister) HasSinks() bool { return len(r.sinks) > 0 }

func (r *VirtualFieldRegister) addSink(k *AbstractKernel, input int) {
	r.sinks = append(r.sinks, Sink{Kernel: k, Input: input})
}

// removeSink removes exactly one occurrence of the (k, input) sink entry.
func (r *VirtualFieldRegister) removeSink(k *AbstractKernel, input int) {
	for i, s := range r.sinks {
		if s.Kernel == k && s.Input == input {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

func (r *VirtualFieldRegister) String() string {
	if r.name != "" {
		return r.name
	}
	return fmt.Sprintf("%s#%p", r.fieldType, r)
}
