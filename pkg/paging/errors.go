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

package paging

import (
	"errors"
	"fmt"

	"kernex.dev/kernex/pkg/addr"
)

var (
	// ErrUnaligned indicates a virtual address that is not page aligned.
	ErrUnaligned = errors.New("address is not page aligned")

	// ErrCrossBoundary indicates a mapping that would leave the 4MiB region
	// of the directory slot it started in.
	ErrCrossBoundary = errors.New("mapping crosses a directory slot boundary")

	// ErrAddressOverflow indicates a mapping that runs past the top of the
	// 32-bit address space.
	ErrAddressOverflow = errors.New("mapping runs past the top of the address space")

	// ErrNotMapped indicates a translation of an address with no present
	// page-table entry.
	ErrNotMapped = errors.New("address not mapped")

	// ErrNoTableMemory indicates that the Allocator could not supply a
	// directory or page table.
	ErrNoTableMemory = errors.New("no memory for paging structures")

	// ErrUnknownTable indicates a present directory entry whose table the
	// Allocator does not know.
	ErrUnknownTable = errors.New("directory entry refers to an unknown page table")
)

// PartialMapError is returned by Map when some frames were left unmapped
// because the range reached a directory slot boundary. It matches
// ErrCrossBoundary under errors.Is, or ErrAddressOverflow when the range
// reached the top of the address space. If a page table for a later slot
// could not be provisioned, the allocator's error is kept in Cause and
// matches as well.
type PartialMapError struct {
	// Start is the address passed to Map.
	Start addr.Addr

	// Mapped is the number of frames that were mapped.
	Mapped int

	// Remaining is the number of frames left unmapped.
	Remaining int

	// Overflow is set if the range ran off the top of the address space.
	Overflow bool

	// Cause is the error that stopped provisioning of the next slot, if
	// any.
	Cause error
}

// Error implements error.Error.
func (e *PartialMapError) Error() string {
	msg := fmt.Sprintf("%v: mapped %d frames at %v, %d left unmapped", e.boundary(), e.Mapped, e.Start, e.Remaining)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PartialMapError) boundary() error {
	if e.Overflow {
		return ErrAddressOverflow
	}
	return ErrCrossBoundary
}

// Unwrap returns ErrCrossBoundary or ErrAddressOverflow, followed by Cause
// if set.
func (e *PartialMapError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.boundary(), e.Cause}
	}
	return []error{e.boundary()}
}
