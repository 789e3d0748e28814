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

// Config is the process-wide configuration struct spec.md §6/§9
// enumerates. It is read, not owned, by the driver and individual passes;
// cmd/kernelopt builds one from flag.FlagSet the same way
// cmd/snellerd/run_worker.go builds its worker flags.
type Config struct {
	// Enabled short-circuits the whole optimizer: Optimize returns an
	// empty Report without running any pass when false.
	Enabled bool

	VerboseOptimizer     bool
	VerboseKernelMerging bool

	ProjectFrameMerging     bool
	BackProjectFrameMerging bool
	FilterAdjointMerging    bool

	TiledConvolveEnable bool
}

// DefaultConfig returns the configuration a production build runs with:
// the optimizer and every fusion flag on, verbose reporting off.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		ProjectFrameMerging:     true,
		BackProjectFrameMerging: true,
		FilterAdjointMerging:    true,
		TiledConvolveEnable:     true,
	}
}
