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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"kernex.dev/kernex/kx/cmd/util"
	"kernex.dev/kernex/pkg/fat"
)

// openVolume opens the FAT image at path. The returned function closes it.
func openVolume(path string) (*fat.FS, func() error, error) {
	dev, err := fat.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening image %q: %w", path, err)
	}
	fs, err := fat.Open(dev)
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("reading volume %q: %w", path, err)
	}
	return fs, dev.Close, nil
}

// FatLS implements subcommands.Command for the "fatls" command.
type FatLS struct {
	sorted bool
}

// Name implements subcommands.Command.Name.
func (*FatLS) Name() string {
	return "fatls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*FatLS) Synopsis() string {
	return "list the root directory of a FAT12/FAT16 image"
}

// Usage implements subcommands.Command.Usage.
func (*FatLS) Usage() string {
	return `fatls [flags] <image> - list the root directory of a FAT image.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *FatLS) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.sorted, "sorted", false, "list entries by name instead of directory order.")
}

// Execute implements subcommands.Command.Execute.
func (l *FatLS) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	fs, closeFn, err := openVolume(f.Arg(0))
	if err != nil {
		return util.Errorf("%v", err)
	}
	defer closeFn()

	if err := listVolume(os.Stdout, fs, l.sorted); err != nil {
		return util.Errorf("listing %q: %v", f.Arg(0), err)
	}
	return subcommands.ExitSuccess
}

func listVolume(w io.Writer, fs *fat.FS, sorted bool) error {
	bs := fs.BootSector()
	fmt.Fprintf(w, "Volume %q (%v, %d clusters of %d bytes)\n", bs.VolumeLabel, fs.Type(), fs.ClusterCount(), int(bs.SectorsPerCluster)*fat.SectorSize)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tSIZE\tCLUSTER\tMODIFIED\n")
	row := func(e fat.DirEntry) bool {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		mod := "-"
		if !e.Modified.IsZero() {
			mod = e.Modified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, e.Size, e.Cluster, mod)
		return true
	}
	if sorted {
		fs.Ascend(row)
	} else {
		for _, e := range fs.Entries() {
			row(e)
		}
	}
	return tw.Flush()
}

// FatCat implements subcommands.Command for the "fatcat" command.
type FatCat struct{}

// Name implements subcommands.Command.Name.
func (*FatCat) Name() string {
	return "fatcat"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*FatCat) Synopsis() string {
	return "print a file from the root directory of a FAT12/FAT16 image"
}

// Usage implements subcommands.Command.Usage.
func (*FatCat) Usage() string {
	return `fatcat <image> <name> - copy a root directory file to stdout.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*FatCat) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*FatCat) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	fs, closeFn, err := openVolume(f.Arg(0))
	if err != nil {
		return util.Errorf("%v", err)
	}
	defer closeFn()

	file, err := fs.Open(f.Arg(1))
	if err != nil {
		return util.Errorf("%v", err)
	}
	if _, err := io.Copy(os.Stdout, file.Reader()); err != nil {
		return util.Errorf("reading %q: %v", f.Arg(1), err)
	}
	return subcommands.ExitSuccess
}
