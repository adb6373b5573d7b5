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

// Package mmu emulates memory accesses through the paging hardware.
//
// With paging disabled in CR0 addresses are physical. With paging enabled
// they are translated through the address space whose directory is loaded
// in CR3.
package mmu

import (
	"errors"
	"fmt"

	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/paging"
	"kernex.dev/kernex/pkg/physmem"
	"kernex.dev/kernex/pkg/ring0"
)

var (
	// ErrPageFault indicates an access to a page with no present mapping.
	ErrPageFault = errors.New("page fault")

	// ErrNoDirectory indicates that CR3 holds a directory the MMU does not
	// know.
	ErrNoDirectory = errors.New("no address space registered for CR3")
)

// FaultError describes a page fault.
type FaultError struct {
	// Addr is the faulting virtual address.
	Addr addr.Addr

	// Write is set if the access was a store.
	Write bool
}

// Error implements error.Error.
func (e *FaultError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("%v: %s at %v", ErrPageFault, op, e.Addr)
}

// Unwrap returns ErrPageFault.
func (e *FaultError) Unwrap() error {
	return ErrPageFault
}

// MMU performs loads and stores on behalf of a CPU.
type MMU struct {
	cpu    ring0.CPU
	mem    *physmem.Memory
	spaces map[addr.Addr]*paging.AddressSpace
}

// New returns an MMU for cpu backed by mem.
func New(cpu ring0.CPU, mem *physmem.Memory) *MMU {
	return &MMU{
		cpu:    cpu,
		mem:    mem,
		spaces: make(map[addr.Addr]*paging.AddressSpace),
	}
}

// Register makes as available for translation when its directory is
// loaded in CR3.
func (m *MMU) Register(as *paging.AddressSpace) {
	m.spaces[as.DirectoryAddr()] = as
}

// Translate returns the physical address an access to va reaches.
func (m *MMU) Translate(va addr.Addr, write bool) (addr.Addr, error) {
	if !ring0.PagingEnabled(m.cpu) {
		return va, nil
	}
	cr3 := ring0.ActiveDirectory(m.cpu)
	as, ok := m.spaces[cr3]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrNoDirectory, cr3)
	}
	pa, err := as.Translate(va)
	if errors.Is(err, paging.ErrNotMapped) {
		return 0, &FaultError{Addr: va, Write: write}
	}
	return pa, err
}

// Load32 reads the 32-bit word at va.
func (m *MMU) Load32(va addr.Addr) (uint32, error) {
	pa, err := m.Translate(va, false)
	if err != nil {
		return 0, err
	}
	return m.mem.Load32(pa)
}

// Store32 writes v to the 32-bit word at va.
func (m *MMU) Store32(va addr.Addr, v uint32) error {
	pa, err := m.Translate(va, true)
	if err != nil {
		return err
	}
	return m.mem.Store32(pa, v)
}
