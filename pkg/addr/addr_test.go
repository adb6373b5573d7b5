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

package addr

import "testing"

func TestIndices(t *testing.T) {
	for _, tc := range []struct {
		va    Addr
		dir   int
		table int
	}{
		{0x00000000, 0, 0},
		{0x00001000, 0, 1},
		{0x003ff000, 0, 1023},
		{0x00400000, 1, 0},
		{0xc0000000, 768, 0},
		{0xc0002abc, 768, 2},
		{0xfffff000, 1023, 1023},
	} {
		if got := tc.va.DirectoryIndex(); got != tc.dir {
			t.Errorf("%v.DirectoryIndex() = %d, want %d", tc.va, got, tc.dir)
		}
		if got := tc.va.TableIndex(); got != tc.table {
			t.Errorf("%v.TableIndex() = %d, want %d", tc.va, got, tc.table)
		}
	}
}

func TestRounding(t *testing.T) {
	if got, want := Addr(0x1234).RoundDown(), Addr(0x1000); got != want {
		t.Errorf("RoundDown = %v, want %v", got, want)
	}
	if got, ok := Addr(0x1001).RoundUp(); !ok || got != 0x2000 {
		t.Errorf("RoundUp = (%v, %v), want (0x2000, true)", got, ok)
	}
	if _, ok := Addr(0xfffff001).RoundUp(); ok {
		t.Errorf("RoundUp of the last page did not report wraparound")
	}
	if !Addr(0xc0000000).IsPageAligned() || Addr(0xc0000004).IsPageAligned() {
		t.Errorf("IsPageAligned mismatch")
	}
	if got := Addr(0xc0000abc).PageOffset(); got != 0xabc {
		t.Errorf("PageOffset = %#x, want 0xabc", got)
	}
	if got := Addr(0xc0123456).RegionBase(); got != 0xc0000000 {
		t.Errorf("RegionBase = %v, want 0xc0000000", got)
	}
}

func TestFrameNumber(t *testing.T) {
	if got := Addr(0x2000).FrameNumber(); got != 2 {
		t.Errorf("FrameNumber = %d, want 2", got)
	}
	if got := FromFrameNumber(0xfffff); got != 0xfffff000 {
		t.Errorf("FromFrameNumber = %v, want 0xfffff000", got)
	}
	if _, ok := Addr(0xfffff000).AddLength(PageSize); ok {
		t.Errorf("AddLength past the top of the address space did not overflow")
	}
}

func TestSet(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Addr
	}{
		{"4096", 0x1000},
		{"0xC0000000", 0xc0000000},
		{"0x0", 0},
	} {
		var v Addr
		if err := v.Set(tc.in); err != nil || v != tc.want {
			t.Errorf("Set(%q) = %v, %v; want %v", tc.in, v, err, tc.want)
		}
	}
	for _, in := range []string{"", "0x100000000", "-1", "page"} {
		var v Addr
		if err := v.Set(in); err == nil {
			t.Errorf("Set(%q) succeeded", in)
		}
	}
	if got := Addr(0x1000).String(); got != "0x00001000" {
		t.Errorf("String() = %q, want 0x00001000", got)
	}
}
