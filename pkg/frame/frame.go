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

// Package frame implements a fixed-capacity physical frame allocator.
//
// All frame descriptors live in one arena owned by a Pool and are chained by
// index, either on the pool's free list or on a List handed out by Allocate.
// A descriptor is on exactly one chain at a time. Every allocated List carries
// an owner id that is stamped on its descriptors; Free refuses a list whose
// descriptors no longer carry that id, which catches double frees and lists
// from other pools.
//
// A Pool must not be used from more than one goroutine at a time.
package frame

import "kernex.dev/kernex/pkg/addr"

// none marks the absence of a link.
const none int32 = -1

// Frame describes one physical frame.
type Frame struct {
	pool  *Pool
	addr  addr.Addr
	next  int32
	prev  int32
	owner uint64
}

// Addr returns the physical base address of the frame.
func (f *Frame) Addr() addr.Addr {
	return f.addr
}

// Next returns the frame that follows f on its chain, or nil.
func (f *Frame) Next() *Frame {
	if f.next == none {
		return nil
	}
	return &f.pool.frames[f.next]
}

// Prev returns the frame that precedes f on its chain, or nil.
func (f *Frame) Prev() *Frame {
	if f.prev == none {
		return nil
	}
	return &f.pool.frames[f.prev]
}

// List is a detached chain of allocated frames.
//
// To iterate over a list (where l is a *List):
//
//	for f := l.Front(); f != nil; f = f.Next() {
//		// do something with f.
//	}
type List struct {
	pool *Pool
	head int32
	len  int
	id   uint64
}

// Len returns the number of frames on the list. A freed list has length 0.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return l.len
}

// Empty returns true iff the list holds no frames.
func (l *List) Empty() bool {
	return l.Len() == 0
}

// Front returns the first frame of the list or nil.
func (l *List) Front() *Frame {
	if l.Empty() {
		return nil
	}
	return &l.pool.frames[l.head]
}

// Addrs returns the physical addresses of the frames in list order.
func (l *List) Addrs() []addr.Addr {
	addrs := make([]addr.Addr, 0, l.Len())
	for f := l.Front(); f != nil; f = f.Next() {
		addrs = append(addrs, f.addr)
	}
	return addrs
}
