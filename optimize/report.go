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
	"io"

	"github.com/fatih/color"
)

// PassRun is one recorded invocation of a pass: its name and how many
// kernels it rewrote. The driver appends one PassRun per call, including
// the ones every round-robin group makes that change nothing, so a Report
// also shows how many idle rounds it took to reach the fixed point.
type PassRun struct {
	Pass  string
	Count int
}

// Report accumulates every pass invocation an optimizer run made, in the
// order they ran. RunID tags which Optimize call produced it, so verbose
// log lines from two circuits optimized concurrently on separate
// goroutines can be told apart.
type Report struct {
	RunID string
	Runs  []PassRun
}

func (r *Report) record(pass string, n int) {
	r.Runs = append(r.Runs, PassRun{Pass: pass, Count: n})
}

// Total is the sum of every recorded rewrite count.
func (r *Report) Total() int {
	total := 0
	for _, run := range r.Runs {
		total += run.Count
	}
	return total
}

// WriteTo renders the report as one colorized line per invocation followed
// by a total, matching the terse pass/fail coloring convention used
// elsewhere in verbose CLI output.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	ok := color.New(color.FgGreen).SprintFunc()
	idle := color.New(color.Faint).SprintFunc()
	var written int64
	if r.RunID != "" {
		n, err := fmt.Fprintf(w, "run %s:\n", r.RunID)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	for _, run := range r.Runs {
		var line string
		if run.Count > 0 {
			line = fmt.Sprintf("%s: %s\n", ok(run.Pass), fmt.Sprintf("%d kernel(s) rewritten", run.Count))
		} else {
			line = fmt.Sprintf("%s: %s\n", idle(run.Pass), "no change")
		}
		n, err := io.WriteString(w, line)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	n, err := fmt.Fprintf(w, "total: %d kernel(s) rewritten across %d pass invocation(s)\n", r.Total(), len(r.Runs))
	written += int64(n)
	return written, err
}
