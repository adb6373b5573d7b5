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
	"os"

	"github.com/google/subcommands"
	"kernex.dev/kernex/kx/cmd/util"
	"kernex.dev/kernex/kx/config"
	"kernex.dev/kernex/pkg/console"
	"kernex.dev/kernex/pkg/metric"
)

// Demo implements subcommands.Command for the "demo" command.
type Demo struct {
	opts    bootOptions
	metrics bool
}

// Name implements subcommands.Command.Name.
func (*Demo) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Demo) Synopsis() string {
	return "map test pages, enable paging and access them through the MMU"
}

// Usage implements subcommands.Command.Usage.
func (*Demo) Usage() string {
	return `demo [flags] - run the paging bring-up and print the console.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Demo) SetFlags(f *flag.FlagSet) {
	d.opts = defaultBootOptions()
	f.Var(&d.opts.va, "va", "page-aligned virtual address to map the test pages at.")
	f.IntVar(&d.opts.pages, "pages", d.opts.pages, "number of test pages.")
	f.BoolVar(&d.opts.dump, "dump", false, "list every mapping before freeing the pages.")
	f.BoolVar(&d.metrics, "metrics", false, "print metrics in Prometheus text format after the run.")
}

// Execute implements subcommands.Command.Execute.
func (d *Demo) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	screen := console.New()
	_, err := boot(conf, d.opts, screen)
	fmt.Println(screen.String())
	if err != nil {
		return util.Errorf("demo failed: %v", err)
	}
	if d.metrics {
		if err := metric.WritePrometheus(os.Stdout, metricNamespace); err != nil {
			return util.Errorf("writing metrics: %v", err)
		}
	}
	return subcommands.ExitSuccess
}
