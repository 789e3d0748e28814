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

	"kernelopt/kernel"
)

// outputTypesOf collects k's output registers' field types, in order, for
// passing to KernelCircuit.NewKernel when rebuilding k under a new opcode
// or input list.
func outputTypesOf(k *kernel.AbstractKernel) []kernel.FieldType {
	out := make([]kernel.FieldType, len(k.Outputs()))
	for i, o := range k.Outputs() {
		out[i] = o.FieldType()
	}
	return out
}

func errMismatchedFusedType(got, want kernel.FieldType) error {
	return fmt.Errorf("fused kernel output type %s does not match the type it replaces, %s", got, want)
}
