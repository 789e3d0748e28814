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

// Command kernelopt runs the kernel-circuit optimizer over a small built-in
// demo circuit and prints the rewrite report. It exists to exercise
// optimize.KernelCircuitOptimizer end to end outside of the test suite, the
// same role cmd/snellerd/run_worker.go plays for the tenant worker: parse a
// flag.FlagSet, wire a handful of process-wide globals, and hand off to a
// library package that does the real work.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"kernelopt/device"
	"kernelopt/kernel"
	"kernelopt/optimize"
)

func main() {
	log.Default().SetOutput(os.Stderr)

	fs := flag.NewFlagSet("kernelopt", flag.ExitOnError)
	verboseOptimizer := fs.Bool("v", false, "log each pass as it runs")
	verboseMerging := fs.Bool("vm", false, "log individual kernel-merger fusions")
	projectFrameMerging := fs.Bool("project-frame-merging", true, "fuse ProjectFrame convolutions with a trailing reduce-sum")
	backProjectFrameMerging := fs.Bool("back-project-frame-merging", true, "fuse BackProjectFrame convolutions with a trailing reduce-sum")
	filterAdjointMerging := fs.Bool("filter-adjoint-merging", true, "fuse FilterAdjoint convolutions with a trailing reduce-sum")
	tiledConvolve := fs.Bool("tiled-convolve", true, "allow the convolution factory to pick a tiled variant")
	deviceName := fs.String("device", "cpu-reference", "device profile name threaded through to the kernel factories")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	cfg := optimize.Config{
		Enabled:                 true,
		VerboseOptimizer:        *verboseOptimizer,
		VerboseKernelMerging:    *verboseMerging,
		ProjectFrameMerging:     *projectFrameMerging,
		BackProjectFrameMerging: *backProjectFrameMerging,
		FilterAdjointMerging:    *filterAdjointMerging,
		TiledConvolveEnable:     *tiledConvolve,
	}
	params := device.Params{Name: *deviceName, TiledConvolveEnable: *tiledConvolve}

	c := demoCircuit()
	before := c.Size()

	opt := optimize.NewKernelCircuitOptimizer(cfg, params, device.StaticProfiler{})
	report, err := opt.Optimize(c)
	if err != nil {
		log.Fatalf("optimize: %v", err)
	}
	if err := kernel.CheckInvariants(c); err != nil {
		log.Fatalf("optimize produced an invalid circuit: %v", err)
	}

	if _, err := report.WriteTo(os.Stdout); err != nil {
		log.Fatalf("writing report: %v", err)
	}
	fmt.Printf("kernels: %d -> %d\n", before, c.Size())
}

// demoCircuit builds a small, deliberately redundant circuit: two identical
// constant-field reads, a dead branch fed from one of them, and a live
// elementwise chain ending in a reshape that only relabels its input's
// shape — the same shape of example optimize's own scenario tests exercise,
// reused here so running the binary has something nontrivial to rewrite.
func demoCircuit() *kernel.KernelCircuit {
	ft := kernel.MustFieldType(kernel.Shape{4, 4}, nil, kernel.Float32)

	c := kernel.NewKernelCircuit()
	sf1 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sensor"}, kernel.ConstantField, nil, []kernel.FieldType{ft})
	sf2 := c.NewKernel(kernel.ConstantFieldOp{FieldName: "sensor"}, kernel.ConstantField, nil, []kernel.FieldType{ft})

	mul := c.NewKernel(kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 2}, kernel.Device, []*kernel.VirtualFieldRegister{sf1.Outputs()[0]}, []kernel.FieldType{ft})
	add := c.NewKernel(kernel.ScalarOp{Kind: kernel.Add, Scalar: 1}, kernel.Device, []*kernel.VirtualFieldRegister{sf2.Outputs()[0]}, []kernel.FieldType{ft})
	sum := c.NewKernel(kernel.BinaryOp{Kind: kernel.Add}, kernel.Device, []*kernel.VirtualFieldRegister{mul.Outputs()[0], add.Outputs()[0]}, []kernel.FieldType{ft})
	reshaped := c.NewKernel(kernel.ReshapeOp{NewFieldShape: kernel.Shape{4, 4}}, kernel.Device, []*kernel.VirtualFieldRegister{sum.Outputs()[0]}, []kernel.FieldType{ft})

	c.NewKernel(kernel.ScalarOp{Kind: kernel.Multiply, Scalar: 9}, kernel.Device, []*kernel.VirtualFieldRegister{sf1.Outputs()[0]}, []kernel.FieldType{ft})

	reshaped.Outputs()[0].SetProbed(true)
	return c
}
