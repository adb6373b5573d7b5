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

// Package cmd holds implementations of the kx commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"

	"kernex.dev/kernex/kx/config"
	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
	"kernex.dev/kernex/pkg/log"
	"kernex.dev/kernex/pkg/mmu"
	"kernex.dev/kernex/pkg/paging"
	"kernex.dev/kernex/pkg/physmem"
	"kernex.dev/kernex/pkg/ring0"
)

// Words written through the MMU once paging is on.
const (
	testWordA = 0xDEADBEEF
	testWordB = 0xCAFEBABE
)

// bootOptions control the boot sequence.
type bootOptions struct {
	// va is where the test pages are mapped.
	va addr.Addr

	// pages is the number of test pages.
	pages int

	// dump lists every mapping before the pages are freed.
	dump bool
}

func defaultBootOptions() bootOptions {
	return bootOptions{va: 0xC0000000, pages: 3}
}

// bootResult is what the boot sequence observed.
type bootResult struct {
	a, b        uint32
	mapped      int
	freeAfter   int
	directoryAt addr.Addr
}

// boot runs the paging bring-up: build the frame pool, take the test pages,
// map them, load the directory, turn paging on, write and read back through
// the MMU, and free the pages. Progress goes to out.
func boot(conf *config.Config, opts bootOptions, out io.Writer) (bootResult, error) {
	var res bootResult
	// The whole pool is backed by emulated physical memory.
	memSize := uint64(conf.PoolCapacity) * uint64(conf.FrameSize)
	if memSize > math.MaxUint32 {
		return res, fmt.Errorf("cannot emulate %d bytes of physical memory for the frame pool, at most %d", memSize, uint64(math.MaxUint32))
	}
	fmt.Fprintf(out, "Kernel initialized.\n")

	pool, err := frame.NewPool(conf.FrameOptions())
	if err != nil {
		return res, err
	}
	if err := pool.Init(conf.PoolCapacity); err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Physical frame allocator ready.\n")

	pages, err := pool.Allocate(opts.pages)
	if err != nil {
		var short *frame.ShortAllocationError
		if !errors.As(err, &short) || pages == nil {
			fmt.Fprintf(out, "Failed to allocate test pages.\n")
			return res, err
		}
		fmt.Fprintf(out, "Allocated %d of %d test pages.\n", short.Granted, short.Requested)
	}

	mem, err := physmem.New(conf.FrameBase, uint32(memSize))
	if err != nil {
		return res, err
	}
	defer mem.Close()

	alloc, err := conf.NewAllocator(pool)
	if err != nil {
		return res, err
	}
	as, err := paging.New(alloc, conf.PagingOptions())
	if err != nil {
		return res, err
	}
	res.directoryAt = as.DirectoryAddr()

	fmt.Fprintf(out, "Mapping pages starting at virtual %v\n", opts.va)
	if _, err := as.Map(opts.va, pages); err != nil {
		var partial *paging.PartialMapError
		if !errors.As(err, &partial) {
			return res, err
		}
		fmt.Fprintf(out, "Mapped %d of %d pages: %v\n", partial.Mapped, pages.Len(), err)
	}
	res.mapped = as.MappedPages()

	var cpu ring0.Emulated
	as.Activate(&cpu)
	ring0.EnablePaging(&cpu)
	fmt.Fprintf(out, "Paging enabled.\n")

	m := mmu.New(&cpu, mem)
	m.Register(as)
	if err := m.Store32(opts.va, testWordA); err != nil {
		return res, err
	}
	if err := m.Store32(opts.va+4, testWordB); err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Wrote test values to mapped pages.\n")

	if res.a, err = m.Load32(opts.va); err != nil {
		return res, err
	}
	if res.b, err = m.Load32(opts.va + 4); err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Read back values: a=0x%x, b=0x%x\n", res.a, res.b)

	if opts.dump {
		as.Mappings(func(va addr.Addr, pte paging.PTE) bool {
			fmt.Fprintf(out, "%v -> %v\n", va, pte)
			return true
		})
	}

	if err := pool.Free(pages); err != nil {
		return res, err
	}
	if pa, ok := alloc.(*paging.PoolAllocator); ok {
		if err := pa.Release(); err != nil {
			return res, err
		}
	}
	if err := pool.Check(); err != nil {
		return res, err
	}
	res.freeAfter = pool.FreeCount()
	fmt.Fprintf(out, "Freed test pages.\n")
	log.Debugf("Boot sequence done: %d pages mapped, %d frames free", res.mapped, res.freeAfter)
	return res, nil
}
