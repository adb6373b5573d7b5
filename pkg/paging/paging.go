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

// Package paging builds 32-bit two-level page tables.
//
// An AddressSpace owns one page directory. Map installs a list of physical
// frames at consecutive virtual pages, provisioning a page table for each
// directory slot it touches. Directories and tables come from an Allocator,
// which also knows their physical addresses.
//
// Once a slot has a table it is never unbound, and once a page is mapped it
// stays mapped; remapping a page replaces its frame. An AddressSpace must not
// be used from more than one goroutine at a time.
package paging

import (
	"fmt"
	"strings"

	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
	"kernex.dev/kernex/pkg/log"
	"kernex.dev/kernex/pkg/metric"
	"kernex.dev/kernex/pkg/ring0"
)

var (
	tablesProvisioned = metric.MustCreateNewUint64Metric("/paging/tables_provisioned", "Page tables installed in a directory.")
	pagesMapped       = metric.MustCreateNewUint64Metric("/paging/pages_mapped", "Page-table entries written by Map.")
	truncatedMaps     = metric.MustCreateNewUint64Metric("/paging/truncated_maps", "Map calls that left frames unmapped.")
)

// BoundaryPolicy selects what Map does with a frame list that does not fit
// in the directory slot where the mapping starts.
type BoundaryPolicy int

const (
	// StopAtBoundary maps frames up to the end of the starting slot and
	// reports the rest with a *PartialMapError.
	StopAtBoundary BoundaryPolicy = iota

	// RejectCrossing maps nothing if the list does not fit.
	RejectCrossing

	// ExtendSlots provisions tables for the following slots as needed.
	ExtendSlots
)

// String implements fmt.Stringer.String.
func (b BoundaryPolicy) String() string {
	switch b {
	case StopAtBoundary:
		return "stop"
	case RejectCrossing:
		return "reject"
	case ExtendSlots:
		return "extend"
	default:
		return fmt.Sprintf("BoundaryPolicy(%d)", int(b))
	}
}

// ParseBoundaryPolicy parses the String form of a BoundaryPolicy.
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch strings.ToLower(s) {
	case "stop", "":
		return StopAtBoundary, nil
	case "reject":
		return RejectCrossing, nil
	case "extend":
		return ExtendSlots, nil
	default:
		return 0, fmt.Errorf("invalid boundary policy %q, must be 'stop', 'reject' or 'extend'", s)
	}
}

// Set implements flag.Value.
func (b *BoundaryPolicy) Set(v string) error {
	p, err := ParseBoundaryPolicy(v)
	if err != nil {
		return err
	}
	*b = p
	return nil
}

// Get implements flag.Getter.
func (b *BoundaryPolicy) Get() any {
	return *b
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BoundaryPolicy) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

// Options configures an AddressSpace.
type Options struct {
	// Boundary controls mappings that leave their starting slot.
	Boundary BoundaryPolicy
}

// RangeState is the lifecycle state of one page of virtual address space.
type RangeState int

const (
	// Unmapped means the directory slot has no table.
	Unmapped RangeState = iota

	// TableProvisioned means the slot has a table but the page's entry is
	// not present.
	TableProvisioned

	// Mapped means the page's entry is present.
	Mapped
)

// String implements fmt.Stringer.String.
func (s RangeState) String() string {
	switch s {
	case Unmapped:
		return "unmapped"
	case TableProvisioned:
		return "table-provisioned"
	case Mapped:
		return "mapped"
	default:
		return fmt.Sprintf("RangeState(%d)", int(s))
	}
}

// AddressSpace is a page directory together with the tables it refers to.
type AddressSpace struct {
	alloc   Allocator
	opts    Options
	dir     *Directory
	dirAddr addr.Addr

	// mapped is the number of present page-table entries.
	mapped int
}

// New allocates an empty directory from alloc.
func New(alloc Allocator, opts Options) (*AddressSpace, error) {
	dir, phys, err := alloc.NewDirectory()
	if err != nil {
		return nil, fmt.Errorf("allocating page directory: %w", err)
	}
	if !phys.IsPageAligned() {
		return nil, fmt.Errorf("page directory at %v: %w", phys, ErrUnaligned)
	}
	*dir = Directory{}
	log.Debugf("Page directory allocated at %v", phys)
	return &AddressSpace{
		alloc:   alloc,
		opts:    opts,
		dir:     dir,
		dirAddr: phys,
	}, nil
}

// DirectoryAddr returns the physical address of the directory.
func (as *AddressSpace) DirectoryAddr() addr.Addr {
	return as.dirAddr
}

// MappedPages returns the number of present page-table entries.
func (as *AddressSpace) MappedPages() int {
	return as.mapped
}

// Map assigns the frames of l, in list order, to the consecutive pages
// starting at va. It returns va.
//
// va must be page aligned. An empty or nil list maps nothing. Frames that do
// not fit in va's directory slot are handled according to the boundary
// policy; when some are left unmapped the error is a *PartialMapError. That
// includes a table for a later slot failing to be provisioned after frames
// were already mapped.
func (as *AddressSpace) Map(va addr.Addr, l *frame.List) (addr.Addr, error) {
	if !va.IsPageAligned() {
		return va, fmt.Errorf("mapping at %v: %w", va, ErrUnaligned)
	}
	n := l.Len()
	if n == 0 {
		return va, nil
	}

	// Pages from va to the end of its slot, and to the top of memory.
	inSlot := int((addr.RegionSize - uint32(va-va.RegionBase())) / addr.PageSize)
	toTop := int((1<<32 - uint64(va)) / addr.PageSize)

	if as.opts.Boundary == RejectCrossing && n > inSlot {
		return va, &PartialMapError{Start: va, Remaining: n}
	}

	limit := n
	switch {
	case as.opts.Boundary == ExtendSlots:
		limit = min(n, toTop)
	case n > inSlot:
		limit = inSlot
	}

	cur := va
	var table *Table
	mapped := 0
	for f := l.Front(); f != nil && mapped < limit; f = f.Next() {
		if table == nil || cur.TableIndex() == 0 {
			t, err := as.provision(cur.DirectoryIndex())
			if err != nil {
				if mapped == 0 {
					return va, fmt.Errorf("mapping %v: %w", cur, err)
				}
				truncatedMaps.Increment()
				perr := &PartialMapError{Start: va, Mapped: mapped, Remaining: n - mapped, Cause: err}
				log.Debugf("Map at %v truncated: %v", va, perr)
				return va, perr
			}
			table = t
		}
		as.setEntry(&table[cur.TableIndex()], cur, f.Addr())
		mapped++
		cur += addr.PageSize
	}

	if mapped < n {
		truncatedMaps.Increment()
		err := &PartialMapError{Start: va, Mapped: mapped, Remaining: n - mapped, Overflow: as.opts.Boundary == ExtendSlots}
		log.Debugf("Map at %v truncated: %v", va, err)
		return va, err
	}
	return va, nil
}

// provision returns the table bound to slot, installing a new one if the
// slot is empty.
func (as *AddressSpace) provision(slot int) (*Table, error) {
	pde := &as.dir[slot]
	if pde.Present() {
		t := as.alloc.LookupTable(pde.Address())
		if t == nil {
			return nil, fmt.Errorf("slot %d: %w at %v", slot, ErrUnknownTable, pde.Address())
		}
		return t, nil
	}
	t, phys, err := as.alloc.NewTable()
	if err != nil {
		return nil, fmt.Errorf("provisioning table for slot %d: %w", slot, err)
	}
	if !phys.IsPageAligned() {
		return nil, fmt.Errorf("page table at %v: %w", phys, ErrUnaligned)
	}
	*t = Table{}
	pde.setTable(phys, kernelOpts)
	tablesProvisioned.Increment()
	log.Debugf("Slot %d bound to page table at %v", slot, phys)
	return t, nil
}

func (as *AddressSpace) setEntry(pte *PTE, va, phys addr.Addr) {
	if pte.Present() {
		if log.IsLogging(log.Debug) {
			log.Debugf("Remapping %v: %v -> %v", va, pte.Address(), phys)
		}
	} else {
		as.mapped++
	}
	pte.Set(phys, kernelOpts)
	pagesMapped.Increment()
}

// DirectoryEntry returns the directory entry for slot, which must be in
// [0, addr.EntriesPerTable).
func (as *AddressSpace) DirectoryEntry(slot int) PDE {
	return as.dir[slot]
}

// Table returns the page table bound to slot, if any.
func (as *AddressSpace) Table(slot int) (*Table, bool) {
	pde := as.dir[slot]
	if !pde.Present() {
		return nil, false
	}
	t := as.alloc.LookupTable(pde.Address())
	return t, t != nil
}

// Lookup returns the page-table entry for va and whether it is present.
func (as *AddressSpace) Lookup(va addr.Addr) (PTE, bool) {
	t, ok := as.Table(va.DirectoryIndex())
	if !ok {
		return 0, false
	}
	pte := t[va.TableIndex()]
	return pte, pte.Present()
}

// Translate returns the physical address va maps to.
func (as *AddressSpace) Translate(va addr.Addr) (addr.Addr, error) {
	pte, ok := as.Lookup(va)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrNotMapped, va)
	}
	return pte.Address() + addr.Addr(va.PageOffset()), nil
}

// State returns the lifecycle state of the page containing va.
func (as *AddressSpace) State(va addr.Addr) RangeState {
	if !as.dir[va.DirectoryIndex()].Present() {
		return Unmapped
	}
	if _, ok := as.Lookup(va); ok {
		return Mapped
	}
	return TableProvisioned
}

// Mappings calls fn for every present page-table entry in ascending virtual
// address order until fn returns false.
func (as *AddressSpace) Mappings(fn func(va addr.Addr, pte PTE) bool) {
	for slot := range as.dir {
		t, ok := as.Table(slot)
		if !ok {
			continue
		}
		for i, pte := range t {
			if !pte.Present() {
				continue
			}
			va := addr.Addr(uint32(slot)<<addr.DirectoryShift | uint32(i)<<addr.PageShift)
			if !fn(va, pte) {
				return
			}
		}
	}
}

// Activate loads the directory's physical address into CR3.
func (as *AddressSpace) Activate(cpu ring0.CPU) {
	ring0.LoadDirectory(cpu, as.dirAddr)
	log.Debugf("Activated page directory at %v", as.dirAddr)
}
