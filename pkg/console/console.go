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

// Package console emulates an 80x25 VGA text-mode buffer.
package console

import (
	"strings"
	"sync"
)

const (
	// Width and Height are the console dimensions in characters.
	Width  = 80
	Height = 25

	// DefaultAttr is light grey on black.
	DefaultAttr = 0x07

	blank = DefaultAttr<<8 | ' '
)

// VGA is a text console. Each cell holds a character in its low byte and an
// attribute in its high byte. Output past the last column wraps, and output
// past the last row scrolls the screen up one line.
//
// VGA implements io.Writer and is safe for concurrent use.
type VGA struct {
	mu  sync.Mutex
	fb  [Width * Height]uint16
	row int
	col int
}

// New returns a cleared console.
func New() *VGA {
	c := &VGA{}
	c.Clear()
	return c
}

// Clear blanks the screen and homes the cursor.
func (c *VGA) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.fb {
		c.fb[i] = blank
	}
	c.row, c.col = 0, 0
}

// Write implements io.Writer.Write.
func (c *VGA) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range p {
		c.putc(b)
	}
	return len(p), nil
}

func (c *VGA) putc(b byte) {
	switch b {
	case '\n':
		c.col = 0
		c.row++
	case '\r':
		c.col = 0
	default:
		c.fb[c.row*Width+c.col] = DefaultAttr<<8 | uint16(b)
		c.col++
		if c.col >= Width {
			c.col = 0
			c.row++
		}
	}
	if c.row >= Height {
		c.scroll()
	}
}

// scroll moves every line up by one and blanks the last line.
func (c *VGA) scroll() {
	copy(c.fb[:], c.fb[Width:])
	for i := (Height - 1) * Width; i < len(c.fb); i++ {
		c.fb[i] = blank
	}
	c.row = Height - 1
	c.col = 0
}

// Cell returns the raw cell at (row, col).
func (c *VGA) Cell(row, col int) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fb[row*Width+col]
}

// Cursor returns the current cursor position.
func (c *VGA) Cursor() (row, col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row, c.col
}

// Row returns the text of row i with trailing blanks removed.
func (c *VGA) Row(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowLocked(i)
}

func (c *VGA) rowLocked(i int) string {
	var b [Width]byte
	for j, cell := range c.fb[i*Width : (i+1)*Width] {
		b[j] = byte(cell)
	}
	return strings.TrimRight(string(b[:]), " ")
}

// String returns the screen contents, one line per row, with trailing blank
// rows removed.
func (c *VGA) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]string, Height)
	for i := range rows {
		rows[i] = c.rowLocked(i)
	}
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return strings.Join(rows, "\n")
}
