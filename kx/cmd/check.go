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
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"kernex.dev/kernex/kx/cmd/util"
	"kernex.dev/kernex/kx/config"
	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
	"kernex.dev/kernex/pkg/log"
	"kernex.dev/kernex/pkg/paging"
)

// Check implements subcommands.Command for the "check" command.
type Check struct {
	pools    int
	steps    int
	seed     int64
	maxBatch int
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "run randomized allocate, map and free sequences and verify invariants"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [flags] - exercise independent frame pools in parallel.

Each pool runs its own random sequence of allocations and frees. After every
step the free list is validated, held frames are checked to be disjoint and
every allocation is mapped and translated back.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Check) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.pools, "pools", 8, "number of independent pools.")
	f.IntVar(&c.steps, "steps", 1000, "operations per pool.")
	f.Int64Var(&c.seed, "seed", 1, "random seed; pool i uses seed+i.")
	f.IntVar(&c.maxBatch, "max-batch", 8, "largest number of frames requested at once.")
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || c.pools <= 0 || c.steps < 0 || c.maxBatch <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	if err := runChecks(ctx, conf, c.pools, c.steps, c.seed, c.maxBatch); err != nil {
		return util.Errorf("check failed: %v", err)
	}
	util.Infof("Checked %d pools, %d steps each", c.pools, c.steps)
	return subcommands.ExitSuccess
}

func runChecks(ctx context.Context, conf *config.Config, pools, steps int, seed int64, maxBatch int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < pools; i++ {
		i := i
		g.Go(func() error {
			if err := checkPool(ctx, conf, seed+int64(i), steps, maxBatch); err != nil {
				return fmt.Errorf("pool %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// checkPool runs one random sequence against a fresh pool.
func checkPool(ctx context.Context, conf *config.Config, seed int64, steps, maxBatch int) error {
	pool, err := frame.NewPool(conf.FrameOptions())
	if err != nil {
		return err
	}
	if err := pool.Init(conf.PoolCapacity); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))

	var live []*frame.List
	held := make(map[addr.Addr]bool)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(live) == 0 || rng.Intn(2) == 0 {
			l, err := pool.Allocate(1 + rng.Intn(maxBatch))
			if err != nil && !errors.Is(err, frame.ErrOutOfFrames) {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if l == nil {
				continue
			}
			for _, a := range l.Addrs() {
				if held[a] {
					return fmt.Errorf("step %d: frame %v handed out twice", step, a)
				}
				held[a] = true
			}
			if err := checkMapping(rng, conf.TableBase, l); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			live = append(live, l)
		} else {
			i := rng.Intn(len(live))
			l := live[i]
			addrs := l.Addrs()
			if err := pool.Free(l); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			for _, a := range addrs {
				delete(held, a)
			}
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
		if err := pool.Check(); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if got := pool.FreeCount() + len(held); got != pool.Capacity() {
			return fmt.Errorf("step %d: %d free + %d held != capacity %d", step, pool.FreeCount(), len(held), pool.Capacity())
		}
	}
	for _, l := range live {
		if err := pool.Free(l); err != nil {
			return err
		}
	}
	if pool.FreeCount() != pool.Capacity() {
		return fmt.Errorf("%d of %d frames free after freeing everything", pool.FreeCount(), pool.Capacity())
	}
	log.Debugf("Pool with seed %d passed %d steps", seed, steps)
	return nil
}

// checkMapping maps l at a random page in a fresh address space, with
// paging structures placed from tableBase, and checks that every page
// translates to its frame.
func checkMapping(rng *rand.Rand, tableBase addr.Addr, l *frame.List) error {
	// A directory plus every table the list can touch.
	alloc, err := paging.NewRuntimeAllocator(tableBase, l.Len()/addr.EntriesPerTable+3)
	if err != nil {
		return err
	}
	as, err := paging.New(alloc, paging.Options{Boundary: paging.ExtendSlots})
	if err != nil {
		return err
	}
	// Stay below the top slot so the mapping cannot run off the end.
	span := (addr.EntriesPerTable-1)*addr.EntriesPerTable - l.Len()
	if span <= 0 {
		return fmt.Errorf("list of %d frames is too long to map", l.Len())
	}
	va := addr.FromFrameNumber(uint32(rng.Intn(span)))
	if _, err := as.Map(va, l); err != nil {
		return err
	}
	for i, want := range l.Addrs() {
		page := va + addr.Addr(i*addr.PageSize)
		got, err := as.Translate(page)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("page %v translates to %v, want %v", page, got, want)
		}
	}
	return nil
}
