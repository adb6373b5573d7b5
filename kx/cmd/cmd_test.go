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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"kernex.dev/kernex/kx/config"
	"kernex.dev/kernex/pkg/console"
)

func testConfig(t *testing.T, kv ...string) *config.Config {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(testFlags)
	for i := 0; i < len(kv); i += 2 {
		if err := testFlags.Set(kv[i], kv[i+1]); err != nil {
			t.Fatalf("Flag set %s=%s: %v", kv[i], kv[i+1], err)
		}
	}
	conf, err := config.NewFromFlags(testFlags)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func TestBoot(t *testing.T) {
	screen := console.New()
	res, err := boot(testConfig(t), defaultBootOptions(), screen)
	if err != nil {
		t.Fatalf("boot: %v\n%s", err, screen)
	}
	if res.a != testWordA || res.b != testWordB {
		t.Errorf("read back a=%#x b=%#x", res.a, res.b)
	}
	if res.mapped != 3 || res.freeAfter != 128 {
		t.Errorf("mapped %d pages, %d frames free afterwards; want 3, 128", res.mapped, res.freeAfter)
	}
	want := []string{
		"Kernel initialized.",
		"Physical frame allocator ready.",
		"Mapping pages starting at virtual 0xc0000000",
		"Paging enabled.",
		"Wrote test values to mapped pages.",
		"Read back values: a=0xdeadbeef, b=0xcafebabe",
		"Freed test pages.",
	}
	if diff := cmp.Diff(want, strings.Split(screen.String(), "\n")); diff != "" {
		t.Errorf("console mismatch (-want +got):\n%s", diff)
	}
}

func TestBootTablesFromPool(t *testing.T) {
	conf := testConfig(t, "table-source", "pool", "frame-size", "2097152")
	res, err := boot(conf, defaultBootOptions(), console.New())
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	// The directory follows the three test pages.
	if res.directoryAt != 3*2<<20 {
		t.Errorf("directory at %v, want 0x00600000", res.directoryAt)
	}
	if res.freeAfter != 128 {
		t.Errorf("%d frames free afterwards, want 128", res.freeAfter)
	}
}

func TestBootAcrossBoundary(t *testing.T) {
	opts := defaultBootOptions()
	opts.va = 0xC03FF000

	screen := console.New()
	res, err := boot(testConfig(t), opts, screen)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	if res.mapped != 1 {
		t.Errorf("mapped %d pages, want 1", res.mapped)
	}
	if !strings.Contains(screen.String(), "Mapped 1 of 3 pages") {
		t.Errorf("console does not report the truncated mapping:\n%s", screen)
	}

	res, err = boot(testConfig(t, "boundary-policy", "extend"), opts, console.New())
	if err != nil {
		t.Fatalf("boot with extend: %v", err)
	}
	if res.mapped != 3 {
		t.Errorf("mapped %d pages with extend, want 3", res.mapped)
	}

	if _, err := boot(testConfig(t, "boundary-policy", "reject"), opts, console.New()); err == nil {
		t.Errorf("boot with reject succeeded, want a page fault")
	}
}

func TestBootShortPool(t *testing.T) {
	opts := defaultBootOptions()
	opts.pages = 5

	screen := console.New()
	res, err := boot(testConfig(t, "pool-capacity", "2"), opts, screen)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	if res.mapped != 2 || !strings.Contains(screen.String(), "Allocated 2 of 5 test pages.") {
		t.Errorf("mapped %d pages; console:\n%s", res.mapped, screen)
	}

	screen = console.New()
	if _, err := boot(testConfig(t, "pool-capacity", "2", "short-policy", "fail"), opts, screen); err == nil {
		t.Fatalf("boot with short-policy=fail succeeded")
	}
	if !strings.Contains(screen.String(), "Failed to allocate test pages.") {
		t.Errorf("console:\n%s", screen)
	}
}

func TestBootUnalignedVA(t *testing.T) {
	opts := defaultBootOptions()
	opts.va = 0xC0000010
	if _, err := boot(testConfig(t), opts, console.New()); err == nil {
		t.Errorf("boot at an unaligned address succeeded")
	}
}

func TestBootWholeAddressSpacePool(t *testing.T) {
	// 1M frames of 4KiB end exactly at 4GiB, which the config accepts but
	// physical memory cannot be emulated for.
	conf := testConfig(t, "pool-capacity", "1048576", "table-source", "pool")
	screen := console.New()
	_, err := boot(conf, defaultBootOptions(), screen)
	if err == nil || !strings.Contains(err.Error(), "physical memory") {
		t.Fatalf("boot = %v, want an error about physical memory", err)
	}
	if screen.String() != "" {
		t.Errorf("boot printed before rejecting the pool:\n%s", screen)
	}
}

func TestRunChecks(t *testing.T) {
	for _, kv := range [][]string{
		nil,
		{"pool-capacity", "16", "short-policy", "fail"},
		{"pool-capacity", "64", "frame-size", "2097152", "table-base", "0x10000000", "boundary-policy", "extend"},
	} {
		conf := testConfig(t, kv...)
		if err := runChecks(context.Background(), conf, 4, 500, 42, 8); err != nil {
			t.Errorf("runChecks with %v: %v", kv, err)
		}
	}
}

func TestRunChecksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runChecks(ctx, testConfig(t), 2, 10, 1, 4); err == nil {
		t.Errorf("runChecks with a cancelled context succeeded")
	}
}
