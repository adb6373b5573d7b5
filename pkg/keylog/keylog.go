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

// Package keylog records keystrokes in a fixed-size ring buffer and mirrors
// them to a serial line.
package keylog

import (
	"fmt"
	"io"
	"sync"

	"kernex.dev/kernex/pkg/log"
)

// Size is the capacity of the ring buffer in bytes.
const Size = 1024

// Logger is a keystroke ring buffer. Once full, new keystrokes overwrite
// the oldest ones.
//
// Logger is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	buf    [Size]byte
	head   int
	full   bool
	serial io.Writer

	// serialErrs counts failed serial writes.
	serialErrs int
}

// New returns an empty Logger that echoes accepted keystrokes to serial,
// which may be nil.
func New(serial io.Writer) *Logger {
	return &Logger{serial: serial}
}

// accepted returns true for printable ASCII, newline and carriage return.
func accepted(c byte) bool {
	return (c >= 0x20 && c <= 0x7e) || c == '\n' || c == '\r'
}

// Add records c. Other control characters and non-ASCII bytes are dropped.
func (l *Logger) Add(c byte) {
	if !accepted(c) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.head] = c
	l.head++
	if l.head == Size {
		l.head = 0
		l.full = true
	}
	if l.serial == nil {
		return
	}
	if _, err := l.serial.Write([]byte{c}); err != nil {
		l.serialErrs++
		if l.serialErrs == 1 {
			log.Warningf("Keylog serial echo failed: %v", err)
		}
	}
}

// Write implements io.Writer.Write by calling Add for every byte of p.
func (l *Logger) Write(p []byte) (int, error) {
	for _, c := range p {
		l.Add(c)
	}
	return len(p), nil
}

// Len returns the number of bytes held.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return Size
	}
	return l.head
}

// Contents returns the held bytes, oldest first.
func (l *Logger) Contents() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		return append([]byte(nil), l.buf[:l.head]...)
	}
	out := make([]byte, 0, Size)
	out = append(out, l.buf[l.head:]...)
	return append(out, l.buf[:l.head]...)
}

// Dump writes the held keystrokes to w between start and end banners,
// leaving out carriage returns.
func (l *Logger) Dump(w io.Writer) error {
	data := l.Contents()
	if len(data) == 0 {
		_, err := io.WriteString(w, "Keylog is empty.\n")
		return err
	}
	out := make([]byte, 0, len(data))
	for _, c := range data {
		if c == 0 || c == '\r' {
			continue
		}
		out = append(out, c)
	}
	_, err := fmt.Fprintf(w, "=== KEYLOG START ===\n%s\n=== KEYLOG END ===\n", out)
	return err
}

// Reset discards every held keystroke.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = [Size]byte{}
	l.head = 0
	l.full = false
}
