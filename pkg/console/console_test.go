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

package console

import (
	"fmt"
	"strings"
	"testing"
)

func TestWrite(t *testing.T) {
	c := New()
	fmt.Fprintf(c, "Paging enabled.\nRead back values: a=0x%x\n", 0xdeadbeef)
	if got, want := c.Row(0), "Paging enabled."; got != want {
		t.Errorf("Row(0) = %q, want %q", got, want)
	}
	if got, want := c.Row(1), "Read back values: a=0xdeadbeef"; got != want {
		t.Errorf("Row(1) = %q, want %q", got, want)
	}
	if got := c.Cell(0, 0); got != 0x0750 {
		t.Errorf("Cell(0, 0) = %#04x, want 0x0750", got)
	}
	if row, col := c.Cursor(); row != 2 || col != 0 {
		t.Errorf("Cursor() = %d, %d; want 2, 0", row, col)
	}
}

func TestCarriageReturn(t *testing.T) {
	c := New()
	c.Write([]byte("hello\rJ"))
	if got := c.Row(0); got != "Jello" {
		t.Errorf("Row(0) = %q, want Jello", got)
	}
}

func TestWrap(t *testing.T) {
	c := New()
	c.Write([]byte(strings.Repeat("a", Width) + "b"))
	if got := c.Row(0); got != strings.Repeat("a", Width) {
		t.Errorf("Row(0) = %q", got)
	}
	if got := c.Row(1); got != "b" {
		t.Errorf("Row(1) = %q, want b", got)
	}
}

func TestScroll(t *testing.T) {
	c := New()
	for i := 0; i < Height+2; i++ {
		fmt.Fprintf(c, "line %d\n", i)
	}
	// The final newline scrolled too, so the last row is blank.
	if got, want := c.Row(0), "line 3"; got != want {
		t.Errorf("Row(0) = %q, want %q", got, want)
	}
	if got, want := c.Row(Height-2), fmt.Sprintf("line %d", Height+1); got != want {
		t.Errorf("Row(%d) = %q, want %q", Height-2, got, want)
	}
	if got := c.Row(Height - 1); got != "" {
		t.Errorf("last row = %q, want blank", got)
	}
	if got := c.Cell(Height-1, 0); got != blank {
		t.Errorf("blank cell = %#04x, want %#04x", got, blank)
	}
	if row, _ := c.Cursor(); row != Height-1 {
		t.Errorf("cursor row = %d, want %d", row, Height-1)
	}
}

func TestString(t *testing.T) {
	c := New()
	c.Write([]byte("a\nb\n"))
	if got := c.String(); got != "a\nb" {
		t.Errorf("String() = %q, want %q", got, "a\nb")
	}
}
