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
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/containerd/console"
	"github.com/google/subcommands"
	"kernex.dev/kernex/kx/cmd/util"
	"kernex.dev/kernex/pkg/keylog"
)

// Keylog implements subcommands.Command for the "keylog" command.
type Keylog struct {
	serial string
}

// Name implements subcommands.Command.Name.
func (*Keylog) Name() string {
	return "keylog"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Keylog) Synopsis() string {
	return "record stdin as keystrokes and dump the keystroke log"
}

// Usage implements subcommands.Command.Usage.
func (*Keylog) Usage() string {
	return `keylog [flags] - feed stdin through the keystroke logger, then dump it.

When stdin is a terminal it is switched to raw mode and every key is recorded
as it is pressed, with Enter recorded as a newline. Ctrl-D ends the
recording. Only the last 1024 accepted keystrokes are kept.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (k *Keylog) SetFlags(f *flag.FlagSet) {
	f.StringVar(&k.serial, "serial", "", "file that receives the serial echo of every accepted keystroke.")
}

// Execute implements subcommands.Command.Execute.
func (k *Keylog) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	var serial io.Writer
	if k.serial != "" {
		out, err := os.OpenFile(k.serial, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return util.Errorf("opening serial file %q: %v", k.serial, err)
		}
		defer out.Close()
		bw := bufio.NewWriter(out)
		defer bw.Flush()
		serial = bw
	}

	kl := keylog.New(serial)
	if err := record(kl, os.Stdin, os.Stdout); err != nil {
		return util.Errorf("reading stdin: %v", err)
	}
	if err := kl.Dump(os.Stdout); err != nil {
		return util.Errorf("dumping keylog: %v", err)
	}
	return subcommands.ExitSuccess
}

// ctrlD ends a recording from a terminal.
const ctrlD = 0x04

// record feeds in through kl until EOF. A terminal is put in raw mode for the
// duration so that keys arrive one at a time; printable keys are echoed to
// echo, which may be nil.
func record(kl *keylog.Logger, in *os.File, echo io.Writer) error {
	term, err := console.ConsoleFromFile(in)
	if err != nil {
		// Not a terminal.
		_, err := io.Copy(kl, in)
		return err
	}
	if err := term.SetRaw(); err != nil {
		return fmt.Errorf("setting terminal to raw mode: %w", err)
	}
	defer term.Reset()

	var key [1]byte
	for {
		n, err := in.Read(key[:])
		if n == 1 {
			c := key[0]
			if c == ctrlD {
				return nil
			}
			// Raw mode turns off CR to NL translation.
			if c == '\r' {
				c = '\n'
			}
			kl.Add(c)
			if echo != nil {
				echoKey(echo, c)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func echoKey(w io.Writer, c byte) {
	switch {
	case c == '\n':
		// Output post-processing is off as well.
		io.WriteString(w, "\r\n")
	case c >= 0x20 && c < 0x7f:
		w.Write([]byte{c})
	}
}
