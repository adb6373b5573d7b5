// Copyright 2026 The Kernex Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for kx. kx uses command line flags to set configuration parameters; a TOML
// or YAML file named by --config may override them.
package config

import (
	"fmt"
	"strings"

	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
	"kernex.dev/kernex/pkg/log"
	"kernex.dev/kernex/pkg/paging"
)

// Config holds configuration that is not part of the command being run.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add field tags with the flag name and the TOML and YAML keys.
//  3. Register a new flag in flags.go, with name and description.
//  4. Add any necessary validation into validate().
type Config struct {
	// PoolCapacity is the number of frames in the physical frame pool.
	PoolCapacity int `flag:"pool-capacity" toml:"pool_capacity" yaml:"pool_capacity"`

	// FrameSize is the spacing between frame addresses.
	FrameSize uint `flag:"frame-size" toml:"frame_size" yaml:"frame_size"`

	// FrameBase is the physical address of the first frame.
	FrameBase addr.Addr `flag:"frame-base" toml:"frame_base" yaml:"frame_base"`

	// ShortPolicy controls allocations the pool cannot fully satisfy.
	ShortPolicy frame.ShortPolicy `flag:"short-policy" toml:"short_policy" yaml:"short_policy"`

	// BoundaryPolicy controls mappings that leave their directory slot.
	BoundaryPolicy paging.BoundaryPolicy `flag:"boundary-policy" toml:"boundary_policy" yaml:"boundary_policy"`

	// TableSource selects where directories and page tables come from.
	TableSource TableSource `flag:"table-source" toml:"table_source" yaml:"table_source"`

	// TableBase is the physical address of the first runtime-allocated
	// paging structure.
	TableBase addr.Addr `flag:"table-base" toml:"table_base" yaml:"table_base"`

	// TablePages is the number of runtime-allocated paging structures.
	TablePages int `flag:"table-pages" toml:"table_pages" yaml:"table_pages"`

	// LogFilename is the file where logs are written. The default is
	// stderr. %TIMESTAMP% and %COMMAND% are expanded.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `flag:"log-format" toml:"log_format" yaml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// ConfigFile is the TOML or YAML file applied on top of the flags.
	ConfigFile string `flag:"config" toml:"-" yaml:"-"`
}

func (c *Config) validate() error {
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("pool-capacity must be positive, got %d", c.PoolCapacity)
	}
	if c.FrameSize == 0 || c.FrameSize%addr.PageSize != 0 || c.FrameSize > 1<<31 {
		return fmt.Errorf("frame-size must be a multiple of %d up to 2GiB, got %d", addr.PageSize, c.FrameSize)
	}
	if !c.FrameBase.IsPageAligned() {
		return fmt.Errorf("frame-base %v is not page aligned", c.FrameBase)
	}
	if end := uint64(c.FrameBase) + uint64(c.PoolCapacity)*uint64(c.FrameSize); end > 1<<32 {
		return fmt.Errorf("%d frames of %d bytes at %v exceed the 32-bit physical address space", c.PoolCapacity, c.FrameSize, c.FrameBase)
	}
	if !c.TableBase.IsPageAligned() {
		return fmt.Errorf("table-base %v is not page aligned", c.TableBase)
	}
	if c.TablePages <= 0 {
		return fmt.Errorf("table-pages must be positive, got %d", c.TablePages)
	}
	if c.TableSource == TablesFromRuntime {
		poolStart, poolEnd := uint64(c.FrameBase), uint64(c.FrameBase)+uint64(c.PoolCapacity)*uint64(c.FrameSize)
		tableStart, tableEnd := uint64(c.TableBase), uint64(c.TableBase)+uint64(c.TablePages)*addr.PageSize
		if tableEnd > 1<<32 {
			return fmt.Errorf("%d table pages at %v exceed the 32-bit physical address space", c.TablePages, c.TableBase)
		}
		// A frame in both ranges would be handed out as data while it
		// holds the page directory or a page table.
		if poolStart < tableEnd && tableStart < poolEnd {
			return fmt.Errorf("frame pool [%#x, %#x) overlaps paging structures at [%#x, %#x); move table-base or use table-source=pool", poolStart, poolEnd, tableStart, tableEnd)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q, must be 'text' or 'json'", c.LogFormat)
	}
	return nil
}

// FrameOptions returns the options for the frame pool.
func (c *Config) FrameOptions() frame.Options {
	return frame.Options{
		Base:        c.FrameBase,
		FrameSize:   uint32(c.FrameSize),
		ShortPolicy: c.ShortPolicy,
	}
}

// PagingOptions returns the options for address spaces.
func (c *Config) PagingOptions() paging.Options {
	return paging.Options{Boundary: c.BoundaryPolicy}
}

// NewAllocator returns the paging-structure allocator selected by
// TableSource. pool is used by TablesFromPool.
func (c *Config) NewAllocator(pool *frame.Pool) (paging.Allocator, error) {
	switch c.TableSource {
	case TablesFromPool:
		return paging.NewPoolAllocator(pool), nil
	default:
		a, err := paging.NewRuntimeAllocator(c.TableBase, c.TablePages)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", strings.TrimPrefix(f, "--"))
	}
	if c.ConfigFile != "" {
		log.Infof("\tconfig file: %s", c.ConfigFile)
	}
}

// TableSource selects the paging-structure allocator.
type TableSource int

const (
	// TablesFromRuntime keeps paging structures on the Go heap at
	// addresses taken from TableBase.
	TablesFromRuntime TableSource = iota

	// TablesFromPool takes one frame from the frame pool for every
	// paging structure.
	TablesFromPool
)

func tableSourcePtr(v TableSource) *TableSource {
	return &v
}

// Set implements flag.Value.
func (t *TableSource) Set(v string) error {
	switch v {
	case "runtime":
		*t = TablesFromRuntime
	case "pool":
		*t = TablesFromPool
	default:
		return fmt.Errorf("invalid table source %q, must be 'runtime' or 'pool'", v)
	}
	return nil
}

// Get implements flag.Getter.
func (t *TableSource) Get() any {
	return *t
}

// String implements flag.Value.
func (t TableSource) String() string {
	switch t {
	case TablesFromRuntime:
		return "runtime"
	case TablesFromPool:
		return "pool"
	}
	panic(fmt.Sprintf("Invalid table source %d", t))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TableSource) UnmarshalText(b []byte) error {
	return t.Set(string(b))
}
