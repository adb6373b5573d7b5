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
	"errors"
	"fmt"
)

var (
	// ErrOutOfFrames indicates that the free list could not satisfy an
	// allocation, either entirely or in part.
	ErrOutOfFrames = errors.New("out of physical frames")

	// ErrAlreadyInitialized indicates an attempt to initialize a pool while
	// some of its frames are still held by callers.
	ErrAlreadyInitialized = errors.New("frame pool already initialized with outstanding frames")

	// ErrInvalidCount indicates a non-positive frame count or capacity, or a
	// capacity that does not fit in the physical address space.
	ErrInvalidCount = errors.New("invalid frame count")

	// ErrInvalidFrameSize indicates a frame size that is not a positive
	// multiple of the page size.
	ErrInvalidFrameSize = errors.New("frame size must be a positive multiple of the page size")

	// ErrStaleList indicates that a list handed to Free is not currently
	// allocated from the pool: it was already freed, belongs to another
	// pool, or was corrupted.
	ErrStaleList = errors.New("stale or foreign frame list")
)

// ShortAllocationError is returned by Allocate when fewer frames are available
// than requested. It matches ErrOutOfFrames under errors.Is.
type ShortAllocationError struct {
	// Requested is the number of frames asked for.
	Requested int

	// Granted is the number of frames in the returned list. It is zero
	// under ShortFail.
	Granted int

	// Available is the number of free frames at the time of the call.
	Available int
}

// Error implements error.Error.
func (e *ShortAllocationError) Error() string {
	return fmt.Sprintf("%v: requested %d frames, granted %d (%d available)", ErrOutOfFrames, e.Requested, e.Granted, e.Available)
}

// Unwrap returns ErrOutOfFrames.
func (e *ShortAllocationError) Unwrap() error {
	return ErrOutOfFrames
}
