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

package paging

import (
	"fmt"
	"strings"

	"kernex.dev/kernex/pkg/addr"
)

// Bits in page-table and page-directory entries.
const (
	present      = 1 << 0
	writable     = 1 << 1
	user         = 1 << 2
	writeThrough = 1 << 3
	cacheDisable = 1 << 4
	accessed     = 1 << 5
	dirty        = 1 << 6
	pageSize     = 1 << 7 // PDE only.

	frameMask = ^uint32(addr.PageSize - 1)
)

// MapOpts are the permissions installed in an entry.
type MapOpts struct {
	// Writable allows writes through the entry.
	Writable bool

	// User allows user-mode access. Supervisor-only if false.
	User bool
}

func (o MapOpts) bits() uint32 {
	b := uint32(present)
	if o.Writable {
		b |= writable
	}
	if o.User {
		b |= user
	}
	return b
}

// kernelOpts are the permissions used for every entry the mapper writes.
var kernelOpts = MapOpts{Writable: true}

// PTE is a page-table entry mapping one 4KiB page.
type PTE uint32

// Present returns true if the entry maps a frame. When false, the frame
// number is meaningless.
func (p PTE) Present() bool { return p&present != 0 }

// Writable returns true if writes are allowed.
func (p PTE) Writable() bool { return p&writable != 0 }

// User returns true if user-mode access is allowed.
func (p PTE) User() bool { return p&user != 0 }

// Accessed returns the hardware accessed bit.
func (p PTE) Accessed() bool { return p&accessed != 0 }

// Dirty returns the hardware dirty bit.
func (p PTE) Dirty() bool { return p&dirty != 0 }

// FrameNumber returns the physical page frame number.
func (p PTE) FrameNumber() uint32 { return uint32(p) >> addr.PageShift }

// Address returns the physical address of the mapped frame.
func (p PTE) Address() addr.Addr { return addr.Addr(uint32(p) & frameMask) }

// Set maps the entry to the frame at phys with the given permissions. The
// accessed and dirty bits are cleared.
func (p *PTE) Set(phys addr.Addr, opts MapOpts) {
	*p = PTE(uint32(phys)&frameMask | opts.bits())
}

// Clear zeroes the entry.
func (p *PTE) Clear() { *p = 0 }

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	if !p.Present() {
		return "not present"
	}
	return fmt.Sprintf("pfn=%#05x %s", p.FrameNumber(), flagString(uint32(p)))
}

// PDE is a page-directory entry covering one 4MiB region.
type PDE uint32

// Present returns true if the slot is bound to a page table.
func (d PDE) Present() bool { return d&present != 0 }

// Writable returns true if writes are allowed anywhere in the region.
func (d PDE) Writable() bool { return d&writable != 0 }

// User returns true if user-mode access is allowed in the region.
func (d PDE) User() bool { return d&user != 0 }

// PageSize returns true if the entry maps a large page. Entries written by
// this package always point at a page table.
func (d PDE) PageSize() bool { return d&pageSize != 0 }

// FrameNumber returns the frame number of the page table.
func (d PDE) FrameNumber() uint32 { return uint32(d) >> addr.PageShift }

// Address returns the physical address of the page table.
func (d PDE) Address() addr.Addr { return addr.Addr(uint32(d) & frameMask) }

// setTable binds the slot to the page table at phys.
func (d *PDE) setTable(phys addr.Addr, opts MapOpts) {
	*d = PDE(uint32(phys)&frameMask | opts.bits())
}

// String implements fmt.Stringer.String.
func (d PDE) String() string {
	if !d.Present() {
		return "not present"
	}
	return fmt.Sprintf("table=%v %s", d.Address(), flagString(uint32(d)))
}

func flagString(v uint32) string {
	var b strings.Builder
	for _, f := range []struct {
		bit      uint32
		set, clr byte
	}{
		{present, 'P', '-'},
		{writable, 'W', 'R'},
		{user, 'U', 'S'},
		{accessed, 'A', '-'},
		{dirty, 'D', '-'},
	} {
		if v&f.bit != 0 {
			b.WriteByte(f.set)
		} else {
			b.WriteByte(f.clr)
		}
	}
	return b.String()
}

// Table is a second-level page table.
type Table [addr.EntriesPerTable]PTE

// Directory is a page directory.
type Directory [addr.EntriesPerTable]PDE
