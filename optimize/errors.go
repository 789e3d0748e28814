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
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"kernelopt/kernel"
)

// invariantViolation is the fatal class of error spec.md §7 describes:
// "a factory returns the wrong output type, a rename-map chase yields the
// wrong kind of register". It always carries the offending kernel's debug
// name and is wrapped with github.com/pkg/errors so a caller that chooses
// to abort the process gets a stack trace pointing at the pass that
// detected the corruption, not just the panic site.
type invariantViolation struct {
	pass   string
	kernel string
	cause  error
}

func (e *invariantViolation) Error() string {
	return fmt.Sprintf("optimize: %s: internal invariant violated at %s: %v", e.pass, e.kernel, e.cause)
}

func (e *invariantViolation) Unwrap() error { return e.cause }

// violateInvariant builds a fatal invariantViolation, wrapping cause with a
// stack trace via pkg/errors so it survives being passed up through
// several pass boundaries before a caller logs or panics on it.
func violateInvariant(pass string, k *kernel.AbstractKernel, cause error) error {
	name := "<nil>"
	if k != nil {
		name = k.DebugName()
	}
	return &invariantViolation{pass: pass, kernel: name, cause: pkgerrors.WithStack(cause)}
}

// IsInvariantViolation reports whether err is the fatal, abort-worthy class
// of error described in spec.md §7, as opposed to a benign "pass disabled"
// or "zero improvements" outcome (which passes report via their int return,
// never via error).
func IsInvariantViolation(err error) bool {
	var v *invariantViolation
	return errors.As(err, &v)
}
