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

// Package addr describes the 32-bit, two-level paging address layout used by
// the frame allocator and the address-space mapper.
package addr

import (
	"fmt"
	"strconv"
)

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page and of a physical frame.
	PageSize = 1 << PageShift

	// DirectoryShift is the binary log of the region covered by one
	// directory slot.
	DirectoryShift = 22

	// RegionSize is the amount of virtual address space covered by one
	// directory slot (4MiB).
	RegionSize = 1 << DirectoryShift

	// EntriesPerTable is the number of entries in a directory or a page
	// table.
	EntriesPerTable = 1024

	// indexMask selects a 10-bit directory or table index.
	indexMask = EntriesPerTable - 1
)

// Addr is a 32-bit physical or virtual address.
type Addr uint32

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// IsPageAligned returns true if v is page aligned.
func (v Addr) IsPageAligned() bool {
	return v&(PageSize-1) == 0
}

// PageOffset returns the offset of v into its page.
func (v Addr) PageOffset() uint32 {
	return uint32(v & (PageSize - 1))
}

// AddLength adds the given length to the address and returns the result. ok
// is true iff adding the length did not overflow.
func (v Addr) AddLength(length uint32) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// DirectoryIndex returns the directory slot covering v.
func (v Addr) DirectoryIndex() int {
	return int((v >> DirectoryShift) & indexMask)
}

// TableIndex returns the page-table slot covering v within its region.
func (v Addr) TableIndex() int {
	return int((v >> PageShift) & indexMask)
}

// FrameNumber returns the page frame number of v.
func (v Addr) FrameNumber() uint32 {
	return uint32(v >> PageShift)
}

// FromFrameNumber returns the base address of the given page frame number.
func FromFrameNumber(pfn uint32) Addr {
	return Addr(pfn << PageShift)
}

// RegionBase returns the first address of the directory region containing v.
func (v Addr) RegionBase() Addr {
	return v & ^Addr(RegionSize-1)
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#08x", uint32(v))
}

// Set implements flag.Value. It accepts decimal, octal (0 prefix) and
// hexadecimal (0x prefix) notation.
func (v *Addr) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	*v = Addr(n)
	return nil
}

// Get implements flag.Getter.
func (v *Addr) Get() any {
	return *v
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Addr) UnmarshalText(b []byte) error {
	return v.Set(string(b))
}
