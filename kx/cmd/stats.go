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
	"io"
	"os"

	"github.com/google/subcommands"
	"kernex.dev/kernex/kx/cmd/util"
	"kernex.dev/kernex/kx/config"
	"kernex.dev/kernex/pkg/metric"
)

// metricNamespace prefixes exported metric names.
const metricNamespace = "kx"

// Stats implements subcommands.Command for the "stats" command.
type Stats struct {
	opts bootOptions
}

// Name implements subcommands.Command.Name.
func (*Stats) Name() string {
	return "stats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stats) Synopsis() string {
	return "run the paging bring-up silently and print metrics"
}

// Usage implements subcommands.Command.Usage.
func (*Stats) Usage() string {
	return `stats [flags] - print frame and paging metrics in Prometheus text format.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stats) SetFlags(f *flag.FlagSet) {
	s.opts = defaultBootOptions()
	f.Var(&s.opts.va, "va", "page-aligned virtual address to map the test pages at.")
	f.IntVar(&s.opts.pages, "pages", s.opts.pages, "number of test pages.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stats) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if _, err := boot(conf, s.opts, io.Discard); err != nil {
		return util.Errorf("boot failed: %v", err)
	}
	if err := metric.WritePrometheus(os.Stdout, metricNamespace); err != nil {
		return util.Errorf("writing metrics: %v", err)
	}
	return subcommands.ExitSuccess
}
