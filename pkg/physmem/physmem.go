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

// Package physmem provides emulated physical memory backed by an anonymous
// host mapping.
package physmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
	"kernex.dev/kernex/pkg/addr"
)

// ErrOutOfRange indicates an access outside the emulated range.
var ErrOutOfRange = errors.New("physical address out of range")

// Memory is a contiguous range of emulated physical memory starting at Base.
// Accesses are little-endian.
type Memory struct {
	base addr.Addr
	data []byte
}

// New maps size bytes of zeroed memory starting at physical address base.
func New(base addr.Addr, size uint32) (*Memory, error) {
	if size == 0 {
		return nil, fmt.Errorf("physical memory size must be positive")
	}
	if uint64(base)+uint64(size) > 1<<32 {
		return nil, fmt.Errorf("%w: %d bytes at %v", ErrOutOfRange, size, base)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping %d bytes of physical memory: %w", size, err)
	}
	return &Memory{base: base, data: data}, nil
}

// Close unmaps the memory. The Memory must not be used afterwards.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// Base returns the first physical address.
func (m *Memory) Base() addr.Addr {
	return m.base
}

// Size returns the size of the range in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *Memory) slice(pa addr.Addr, n uint32) ([]byte, error) {
	if pa < m.base || uint64(pa-m.base)+uint64(n) > uint64(len(m.data)) {
		return nil, fmt.Errorf("%w: %d bytes at %v", ErrOutOfRange, n, pa)
	}
	off := pa - m.base
	return m.data[off : off+addr.Addr(n)], nil
}

// Load32 reads the 32-bit word at pa.
func (m *Memory) Load32(pa addr.Addr) (uint32, error) {
	b, err := m.slice(pa, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Store32 writes v to the 32-bit word at pa.
func (m *Memory) Store32(pa addr.Addr, v uint32) error {
	b, err := m.slice(pa, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// ReadAt copies len(p) bytes starting at pa into p.
func (m *Memory) ReadAt(p []byte, pa addr.Addr) error {
	b, err := m.slice(pa, uint32(len(p)))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}
