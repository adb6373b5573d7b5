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

// Package ring0 abstracts the privileged register writes needed to switch
// address spaces and turn paging on.
//
// The allocator and mapper never execute privileged instructions directly.
// They go through CPU, which a bare-metal port implements with MOV to/from
// CR0 and CR3, and which Emulated implements in memory for hosted use.
package ring0

import "kernex.dev/kernex/pkg/addr"

// Control register bits.
const (
	// CR0_PE enables protected mode.
	CR0_PE = 1 << 0

	// CR0_WP makes supervisor writes honour read-only pages.
	CR0_WP = 1 << 16

	// CR0_PG enables paging. It requires CR0_PE.
	CR0_PG = 1 << 31

	// cr3AddrMask selects the page-directory base in CR3.
	cr3AddrMask = ^uint32(addr.PageSize - 1)
)

// CPU is the set of privileged operations the mapper depends on.
type CPU interface {
	// ReadCR0 returns the CR0 control register.
	ReadCR0() uint32

	// WriteCR0 sets the CR0 control register.
	WriteCR0(v uint32)

	// ReadCR3 returns the CR3 control register.
	ReadCR3() uint32

	// WriteCR3 sets the CR3 control register.
	WriteCR3(v uint32)
}

// LoadDirectory makes the page directory at the given physical address the
// active address space. It is a single CR3 write.
func LoadDirectory(cpu CPU, dir addr.Addr) {
	cpu.WriteCR3(uint32(dir) & cr3AddrMask)
}

// ActiveDirectory returns the physical address of the active page directory.
func ActiveDirectory(cpu CPU) addr.Addr {
	return addr.Addr(cpu.ReadCR3() & cr3AddrMask)
}

// EnablePaging turns on protected mode and paging together with a single
// read-modify-write of CR0.
func EnablePaging(cpu CPU) {
	cpu.WriteCR0(cpu.ReadCR0() | CR0_PE | CR0_PG)
}

// PagingEnabled returns true if CR0 has both PE and PG set.
func PagingEnabled(cpu CPU) bool {
	const want = CR0_PE | CR0_PG
	return cpu.ReadCR0()&want == want
}
