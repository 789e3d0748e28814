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

import "github.com/dchest/siphash"

// hashKey0/hashKey1 are fixed, arbitrary keys: the hash is only ever used
// to key an in-process map for one optimizer run, never persisted or
// compared across processes, so there is no need to randomize it.
const (
	hashKey0 = 0x6b6e6572656c6f70
	hashKey1 = 0x742d686173686b65
)

// HashOpcode returns a hash of op that agrees with Equals: two opcodes
// that compare equal always hash equal. CommonSubexpression relies on this
// to key its "already seen" set; an opcode variant whose parameters aren't
// fed through appendHashBytes will still be correct (hash collisions are
// always rechecked with Equals) but will degrade CSE to an O(n) scan over
// same-named opcodes.
func HashOpcode(op Opcode) uint64 {
	buf := make([]byte, 0, 32)
	buf = append(buf, op.Name()...)
	if h, ok := op.(hashable); ok {
		buf = h.appendHashBytes(buf)
	}
	return siphash.Hash(hashKey0, hashKey1, buf)
}
