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

	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
)

// Allocator is used to allocate and map directories and page tables.
type Allocator interface {
	// NewDirectory returns a zeroed directory and its physical address.
	NewDirectory() (*Directory, addr.Addr, error)

	// NewTable returns a zeroed page table and its physical address.
	NewTable() (*Table, addr.Addr, error)

	// LookupTable returns the table previously returned by NewTable at
	// the given physical address, or nil.
	LookupTable(phys addr.Addr) *Table
}

// DefaultRuntimeBase is where RuntimeAllocator places structures unless
// told otherwise. It lies above the frames handed out by a default pool.
const DefaultRuntimeBase addr.Addr = 0x00800000

// RuntimeAllocator keeps directories and tables on the Go heap and assigns
// them physical addresses from a reserved, page-aligned region.
type RuntimeAllocator struct {
	next   addr.Addr
	left   int
	tables map[addr.Addr]*Table
	dirs   map[addr.Addr]*Directory
}

// NewRuntimeAllocator returns an allocator handing out up to pages
// structures starting at base, which must be page aligned.
func NewRuntimeAllocator(base addr.Addr, pages int) (*RuntimeAllocator, error) {
	if !base.IsPageAligned() {
		return nil, fmt.Errorf("runtime allocator base %v: %w", base, ErrUnaligned)
	}
	if pages <= 0 {
		return nil, fmt.Errorf("runtime allocator needs at least one page, got %d", pages)
	}
	if uint64(base)+uint64(pages)*addr.PageSize > 1<<32 {
		return nil, fmt.Errorf("%w: %d pages at %v", ErrAddressOverflow, pages, base)
	}
	return &RuntimeAllocator{
		next:   base,
		left:   pages,
		tables: make(map[addr.Addr]*Table),
		dirs:   make(map[addr.Addr]*Directory),
	}, nil
}

func (r *RuntimeAllocator) reserve() (addr.Addr, error) {
	if r.left == 0 {
		return 0, ErrNoTableMemory
	}
	phys := r.next
	r.next += addr.PageSize
	r.left--
	return phys, nil
}

// NewDirectory implements Allocator.NewDirectory.
func (r *RuntimeAllocator) NewDirectory() (*Directory, addr.Addr, error) {
	phys, err := r.reserve()
	if err != nil {
		return nil, 0, err
	}
	d := new(Directory)
	r.dirs[phys] = d
	return d, phys, nil
}

// NewTable implements Allocator.NewTable.
func (r *RuntimeAllocator) NewTable() (*Table, addr.Addr, error) {
	phys, err := r.reserve()
	if err != nil {
		return nil, 0, err
	}
	t := new(Table)
	r.tables[phys] = t
	return t, phys, nil
}

// LookupTable implements Allocator.LookupTable.
func (r *RuntimeAllocator) LookupTable(phys addr.Addr) *Table {
	return r.tables[phys]
}

// Used returns the number of structures handed out.
func (r *RuntimeAllocator) Used() int {
	return len(r.tables) + len(r.dirs)
}

// PoolAllocator takes one frame from a frame.Pool for every directory and
// table. The pool's frame size must be at least one page.
type PoolAllocator struct {
	pool   *frame.Pool
	tables map[addr.Addr]*Table
	held   []*frame.List
}

// NewPoolAllocator returns an allocator backed by p.
func NewPoolAllocator(p *frame.Pool) *PoolAllocator {
	return &PoolAllocator{
		pool:   p,
		tables: make(map[addr.Addr]*Table),
	}
}

func (a *PoolAllocator) take() (addr.Addr, error) {
	l, err := a.pool.Allocate(1)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoTableMemory, err)
	}
	if l.Len() == 0 {
		return 0, ErrNoTableMemory
	}
	a.held = append(a.held, l)
	return l.Front().Addr(), nil
}

// NewDirectory implements Allocator.NewDirectory.
func (a *PoolAllocator) NewDirectory() (*Directory, addr.Addr, error) {
	phys, err := a.take()
	if err != nil {
		return nil, 0, err
	}
	return new(Directory), phys, nil
}

// NewTable implements Allocator.NewTable.
func (a *PoolAllocator) NewTable() (*Table, addr.Addr, error) {
	phys, err := a.take()
	if err != nil {
		return nil, 0, err
	}
	t := new(Table)
	a.tables[phys] = t
	return t, phys, nil
}

// LookupTable implements Allocator.LookupTable.
func (a *PoolAllocator) LookupTable(phys addr.Addr) *Table {
	return a.tables[phys]
}

// Held returns the number of frames taken from the pool.
func (a *PoolAllocator) Held() int {
	return len(a.held)
}

// Release returns every frame to the pool. Address spaces built on this
// allocator must not be used afterwards. If a frame cannot be freed, Release
// stops and Held reports the frames still held.
func (a *PoolAllocator) Release() error {
	for i := len(a.held) - 1; i >= 0; i-- {
		if err := a.pool.Free(a.held[i]); err != nil {
			return err
		}
		a.held[i] = nil
		a.held = a.held[:i]
	}
	a.held = nil
	clear(a.tables)
	return nil
}
