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

package frame

import (
	"fmt"
	"strings"

	"kernex.dev/kernex/pkg/addr"
)

// ShortPolicy selects what Allocate does when the free list holds fewer
// frames than requested.
type ShortPolicy int

const (
	// ShortPartial hands out every remaining frame and reports the shortfall
	// with a *ShortAllocationError alongside the partial list.
	ShortPartial ShortPolicy = iota

	// ShortFail hands out nothing and leaves the free list untouched.
	ShortFail
)

// String implements fmt.Stringer.String.
func (s ShortPolicy) String() string {
	switch s {
	case ShortPartial:
		return "partial"
	case ShortFail:
		return "fail"
	default:
		return fmt.Sprintf("ShortPolicy(%d)", int(s))
	}
}

// ParseShortPolicy parses the String form of a ShortPolicy.
func ParseShortPolicy(s string) (ShortPolicy, error) {
	switch strings.ToLower(s) {
	case "partial", "":
		return ShortPartial, nil
	case "fail":
		return ShortFail, nil
	default:
		return 0, fmt.Errorf("invalid short allocation policy %q, must be 'partial' or 'fail'", s)
	}
}

// Set implements flag.Value.
func (s *ShortPolicy) Set(v string) error {
	p, err := ParseShortPolicy(v)
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// Get implements flag.Getter.
func (s *ShortPolicy) Get() any {
	return *s
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ShortPolicy) UnmarshalText(b []byte) error {
	return s.Set(string(b))
}

const (
	// DefaultCapacity is the number of frames in a pool when no capacity is
	// configured.
	DefaultCapacity = 128

	// DefaultFrameSize is the spacing between consecutive frame addresses.
	DefaultFrameSize = addr.PageSize
)

// Options configures a Pool.
type Options struct {
	// Base is the physical address of the first frame.
	Base addr.Addr

	// FrameSize is the distance between consecutive frame addresses. Zero
	// selects DefaultFrameSize.
	FrameSize uint32

	// ShortPolicy controls partial allocations.
	ShortPolicy ShortPolicy
}
