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

package physmem

import (
	"errors"
	"testing"

	"kernex.dev/kernex/pkg/addr"
)

func newMemory(t *testing.T, base, size uint32) *Memory {
	t.Helper()
	m, err := New(addr.Addr(base), size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return m
}

func TestLoadStore(t *testing.T) {
	m := newMemory(t, 0x1000, 0x2000)
	if err := m.Store32(0x1000, 0xDEADBEEF); err != nil {
		t.Fatalf("Store32: %v", err)
	}
	if err := m.Store32(0x1004, 0xCAFEBABE); err != nil {
		t.Fatalf("Store32: %v", err)
	}
	for _, tc := range []struct {
		pa   uint32
		want uint32
	}{
		{0x1000, 0xDEADBEEF},
		{0x1004, 0xCAFEBABE},
		{0x1008, 0},
	} {
		got, err := m.Load32(addr.Addr(tc.pa))
		if err != nil || got != tc.want {
			t.Errorf("Load32(%#x) = %#x, %v; want %#x", tc.pa, got, err, tc.want)
		}
	}

	b := make([]byte, 4)
	if err := m.ReadAt(b, 0x1000); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if b[0] != 0xEF || b[3] != 0xDE {
		t.Errorf("ReadAt = % x, want little-endian deadbeef", b)
	}
}

func TestBounds(t *testing.T) {
	m := newMemory(t, 0x1000, 0x1000)
	for _, pa := range []uint32{0x0ffc, 0x1ffd, 0x2000, 0xfffffffc} {
		if _, err := m.Load32(addr.Addr(pa)); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Load32(%#x) = %v, want ErrOutOfRange", pa, err)
		}
	}
	if err := m.Store32(0x1ffc, 1); err != nil {
		t.Errorf("Store32 of the last word: %v", err)
	}
}

func TestNewRejectsOverflow(t *testing.T) {
	if _, err := New(0xfffff000, 0x2000); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("New past 4GiB = %v, want ErrOutOfRange", err)
	}
}
