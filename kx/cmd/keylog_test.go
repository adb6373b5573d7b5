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

package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/containerd/console"
	"github.com/creack/pty"
	"kernex.dev/kernex/pkg/keylog"
)

func TestRecordPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	if _, err := w.Write([]byte("ab\x01c\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	kl := keylog.New(nil)
	if err := record(kl, r, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Bytes from a pipe are recorded untranslated.
	if got, want := string(kl.Contents()), "abc\r\n"; got != want {
		t.Errorf("Contents = %q, want %q", got, want)
	}
}

func TestRecordTerminal(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pseudo-terminal available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	// Put the terminal in raw mode before typing so that the line
	// discipline does not interpret the keys.
	term, err := console.ConsoleFromFile(tty)
	if err != nil {
		t.Fatalf("ConsoleFromFile: %v", err)
	}
	if err := term.SetRaw(); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}
	defer term.Reset()

	if _, err := ptmx.Write([]byte("hi\rok\x01\x04ignored")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	kl := keylog.New(nil)
	var echo bytes.Buffer
	if err := record(kl, tty, &echo); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got, want := string(kl.Contents()), "hi\nok"; got != want {
		t.Errorf("Contents = %q, want %q", got, want)
	}
	if got, want := echo.String(), "hi\r\nok"; got != want {
		t.Errorf("echo = %q, want %q", got, want)
	}
}
