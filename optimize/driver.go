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

// Package optimize drives the kernel-circuit rewrite pipeline: the ordered
// one-shot passes, the three round-robin groups run to a fixed point, and
// the out-of-band recurrence fix-up every pass invocation requires.
package optimize

import (
	"log"

	"github.com/google/uuid"

	"kernelopt/device"
	"kernelopt/kernel"
)

// Pass is one optimization rewrite. Run mutates c in place and returns the
// number of kernels it rewrote; 0 is a legal, non-error outcome — a
// disabled pass or one that found nothing to do. A non-nil error is always
// the fatal invariantViolation class described in errors.go; passes never
// use error to report "nothing to do".
type Pass interface {
	Name() string
	Run(c *kernel.KernelCircuit) (int, error)
}

// KernelCircuitOptimizer holds the standard pipeline: five one-shot passes
// run once each in a fixed order, then three independent groups looped to a
// fixed point, matching the two-phase structure described for the original
// circuit optimizer.
type KernelCircuitOptimizer struct {
	Config Config
	Logger *log.Logger

	oneShot []Pass
	groups  [][]Pass
}

// NewKernelCircuitOptimizer builds the standard pipeline from cfg, wiring
// params and profiler into every pass whose rewrites go through a kernel
// factory.
func NewKernelCircuitOptimizer(cfg Config, params device.Params, profiler device.Profiler) *KernelCircuitOptimizer {
	o := &KernelCircuitOptimizer{Config: cfg, Logger: log.Default()}
	o.oneShot = []Pass{
		&DeadKernelPass{},
		&RedundantInputsPass{},
		&CommonSubexpressionPass{},
		&TensorReduceFusionPass{},
		&ProjectFrameTensorReduceSumPass{Config: cfg, Params: params, Profiler: profiler},
	}
	o.groups = [][]Pass{
		{&TransformTransposePass{}},
		{
			&HyperKernelMergerPass{Verbose: cfg.VerboseKernelMerging, Logger: o.Logger},
			&HyperKernelMultiOutputMergerPass{Verbose: cfg.VerboseKernelMerging, Logger: o.Logger},
		},
		{&ReshapeRemoverPass{}},
	}
	return o
}

// Optimize runs the full pipeline to a fixed point and returns a Report of
// every pass invocation. It stops at the first fatal error a pass reports;
// the circuit is left however that pass's own rewrite primitives last left
// it, since every individual primitive either completes or panics rather
// than partially mutating the circuit.
func (o *KernelCircuitOptimizer) Optimize(c *kernel.KernelCircuit) (*Report, error) {
	runID := uuid.New().String()
	report := &Report{RunID: runID}
	if !o.Config.Enabled {
		return report, nil
	}
	if o.Config.VerboseOptimizer {
		o.Logger.Printf("optimize[%s]: starting, %d live kernel(s)", runID, c.Size())
	}
	for _, p := range o.oneShot {
		if _, err := o.runPass(c, p, report, runID); err != nil {
			return report, err
		}
	}
	for _, group := range o.groups {
		if err := o.runToFixedPoint(c, group, report, runID); err != nil {
			return report, err
		}
	}
	return report, nil
}

// runToFixedPoint round-robins through passes, advancing a cycle index and
// counting consecutive no-op runs; it stops once every pass in the group
// has had a turn with no effect since the last improvement anywhere in the
// group.
func (o *KernelCircuitOptimizer) runToFixedPoint(c *kernel.KernelCircuit, passes []Pass, report *Report, runID string) error {
	if len(passes) == 0 {
		return nil
	}
	i := 0
	fails := 0
	for fails < len(passes) {
		n, err := o.runPass(c, passes[i], report, runID)
		if err != nil {
			return err
		}
		if n > 0 {
			fails = 0
		} else {
			fails++
		}
		i = (i + 1) % len(passes)
	}
	return nil
}

func (o *KernelCircuitOptimizer) runPass(c *kernel.KernelCircuit, p Pass, report *Report, runID string) (int, error) {
	n, err := p.Run(c)
	fixupRecurrence(c)
	report.record(p.Name(), n)
	if o.Config.VerboseOptimizer {
		o.Logger.Printf("optimize[%s]: %s rewrote %d kernel(s)", runID, p.Name(), n)
	}
	if err != nil {
		return n, err
	}
	return n, nil
}
