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

// Package device declares the read-only collaborators the optimizer
// consults but never constructs itself: the GPU/device code-gen parameter
// bundle and an optional cost profiler. Both are opaque from the
// optimizer's point of view — it never inspects Params' fields, and
// Profiler is free to be backed by anything from a static table to a
// learned model.
package device

// Params is the device code-gen parameter bundle (what spec.md calls
// OpenCLKernelCodeGenParams). The optimizer only ever threads it through to
// kernel factories and legality predicates; its contents are whatever the
// runtime needs and are not this package's concern.
type Params struct {
	// Name identifies the device profile for logging; everything else
	// about device capability is probed indirectly through the predicates
	// factories expose, not through fields on Params.
	Name string
	// TiledConvolveEnable mirrors the process-wide tiled_convolve_enable
	// flag at the point a kernel was built, so factories that care about
	// tiling can see it without importing the optimizer's config package.
	TiledConvolveEnable bool
}

// Variant is one legal, already-cost-modeled choice a kernel factory offers
// when more than one legal lowering exists (e.g. tiled vs. untiled
// convolution). The optimizer treats the payload as opaque; only Profiler
// implementations interpret it.
type Variant struct {
	Name string
	Cost float64
}

// Profiler picks among legal variants a kernel factory proposes. A nil
// Profiler means "no preference" and factories fall back to their default
// variant. Profiler never affects *legality*, only which legal variant to
// build — cost modeling and scheduling stay out of the optimizer's scope.
type Profiler interface {
	Pick(variants []Variant) Variant
}

// StaticProfiler always returns the lowest-Cost variant; ties go to the
// first one listed. It exists so tests and small tools have a Profiler
// without needing a real cost model.
type StaticProfiler struct{}

func (StaticProfiler) Pick(variants []Variant) Variant {
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Cost < best.Cost {
			best = v
		}
	}
	return best
}
