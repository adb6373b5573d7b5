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
	"time"

	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/log"
	"kernex.dev/kernex/pkg/metric"
)

var (
	allocatedFrames = metric.MustCreateNewUint64Metric("/frame/allocated", "Frames handed out by Allocate.")
	freedFrames     = metric.MustCreateNewUint64Metric("/frame/freed", "Frames returned by Free.")
	shortAllocs     = metric.MustCreateNewUint64Metric("/frame/short_allocations", "Allocate calls that could not be fully satisfied.")

	shortLog = log.BasicRateLimitedLogger(time.Second)
)

// Pool is a fixed set of frame descriptors with a doubly-linked free list.
//
// The zero value is not usable; call NewPool and then Init.
type Pool struct {
	opts Options

	// frames is the descriptor arena. It is replaced only by Init.
	frames []Frame

	// head is the index of the first free frame, or none.
	head int32

	// free and outstanding count the frames on the free list and on
	// allocated lists respectively.
	free        int
	outstanding int

	// lastID is the owner id given to the most recent allocation. Ids are
	// never reused for the life of the pool.
	lastID uint64
}

// NewPool returns an uninitialized pool. Allocate on an uninitialized pool
// returns ErrOutOfFrames.
func NewPool(opts Options) (*Pool, error) {
	if opts.FrameSize == 0 {
		opts.FrameSize = DefaultFrameSize
	}
	if opts.FrameSize%addr.PageSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, opts.FrameSize)
	}
	if !opts.Base.IsPageAligned() {
		return nil, fmt.Errorf("pool base %v is not page aligned", opts.Base)
	}
	return &Pool{opts: opts, head: none}, nil
}

// Init builds capacity descriptors with ascending physical addresses, links
// them into one chain and makes that chain the free list.
//
// Init may be called again to reset a pool with no outstanding frames. It
// returns ErrAlreadyInitialized if any frames are still allocated.
func (p *Pool) Init(capacity int) error {
	if p.outstanding > 0 {
		return fmt.Errorf("%w: %d frames outstanding", ErrAlreadyInitialized, p.outstanding)
	}
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidCount, capacity)
	}
	if end := uint64(p.opts.Base) + uint64(capacity)*uint64(p.opts.FrameSize); end > 1<<32 {
		return fmt.Errorf("%w: %d frames of %d bytes from %v exceed the physical address space", ErrInvalidCount, capacity, p.opts.FrameSize, p.opts.Base)
	}

	p.frames = make([]Frame, capacity)
	for i := range p.frames {
		f := &p.frames[i]
		f.pool = p
		f.addr = p.opts.Base + addr.Addr(uint32(i)*p.opts.FrameSize)
		f.prev = int32(i) - 1
		f.next = int32(i) + 1
	}
	p.frames[capacity-1].next = none
	p.head = 0
	p.free = capacity
	p.outstanding = 0

	log.Debugf("Frame pool initialized: %d frames of %d bytes at %v", capacity, p.opts.FrameSize, p.opts.Base)
	return nil
}

// Capacity returns the number of descriptors in the pool.
func (p *Pool) Capacity() int {
	return len(p.frames)
}

// FrameSize returns the spacing between frame addresses.
func (p *Pool) FrameSize() uint32 {
	return p.opts.FrameSize
}

// FreeCount returns the number of frames on the free list.
func (p *Pool) FreeCount() int {
	return p.free
}

// Outstanding returns the number of frames held on allocated lists.
func (p *Pool) Outstanding() int {
	return p.outstanding
}

// FreeAddrs returns the addresses on the free list, head first.
func (p *Pool) FreeAddrs() []addr.Addr {
	addrs := make([]addr.Addr, 0, p.free)
	for i := p.head; i != none; i = p.frames[i].next {
		addrs = append(addrs, p.frames[i].addr)
	}
	return addrs
}

// Allocate detaches the first n frames from the head of the free list and
// returns them as a list, in free-list order.
//
// If the free list is empty Allocate returns ErrOutOfFrames. If it holds
// fewer than n frames the result depends on the pool's ShortPolicy; in both
// cases the error is a *ShortAllocationError.
func (p *Pool) Allocate(n int) (*List, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	if p.head == none {
		shortAllocs.Increment()
		shortLog.Warningf("Frame allocation of %d failed: free list empty", n)
		return nil, ErrOutOfFrames
	}

	take := n
	var shortErr *ShortAllocationError
	if p.free < n {
		shortAllocs.Increment()
		shortErr = &ShortAllocationError{Requested: n, Available: p.free}
		if p.opts.ShortPolicy == ShortFail {
			shortLog.Warningf("Frame allocation of %d refused: %d available", n, p.free)
			return nil, shortErr
		}
		take = p.free
		shortErr.Granted = take
		shortLog.Warningf("Frame allocation of %d short: granting %d", n, take)
	}

	p.lastID++
	id := p.lastID
	first := p.head
	last := first
	for i := 0; ; i++ {
		p.frames[last].owner = id
		if i == take-1 {
			break
		}
		last = p.frames[last].next
	}

	// Detach [first, last] from the free list.
	p.head = p.frames[last].next
	if p.head != none {
		p.frames[p.head].prev = none
	}
	p.frames[last].next = none

	p.free -= take
	p.outstanding += take
	allocatedFrames.IncrementBy(uint64(take))

	l := &List{pool: p, head: first, len: take, id: id}
	if shortErr != nil {
		return l, shortErr
	}
	return l, nil
}

// Free returns every frame on l to the head of the free list, preserving
// their order. It walks l to find its tail, so it runs in O(l.Len()).
//
// Free returns ErrStaleList, and changes nothing, if l is not a live
// allocation of this pool. Freeing a nil or zero List is a no-op. After Free
// returns nil, l is empty.
func (p *Pool) Free(l *List) error {
	if l == nil || (l.id == 0 && l.len == 0) {
		return nil
	}
	if l.pool != p || l.len == 0 {
		return ErrStaleList
	}

	// Validate the whole chain before touching anything.
	tail := none
	count := 0
	prev := none
	for i := l.head; i != none; i = p.frames[i].next {
		if i < 0 || int(i) >= len(p.frames) {
			return fmt.Errorf("%w: link %d out of range", ErrStaleList, i)
		}
		f := &p.frames[i]
		if f.owner != l.id {
			return fmt.Errorf("%w: frame %v not owned by this list", ErrStaleList, f.addr)
		}
		if f.prev != prev {
			return fmt.Errorf("%w: broken backward link at %v", ErrStaleList, f.addr)
		}
		count++
		if count > l.len {
			return fmt.Errorf("%w: list longer than its recorded length %d", ErrStaleList, l.len)
		}
		tail = i
		prev = i
	}
	if count != l.len {
		return fmt.Errorf("%w: list has %d frames, recorded %d", ErrStaleList, count, l.len)
	}

	for i := l.head; i != none; i = p.frames[i].next {
		p.frames[i].owner = 0
	}
	p.frames[tail].next = p.head
	if p.head != none {
		p.frames[p.head].prev = tail
	}
	p.head = l.head

	p.free += count
	p.outstanding -= count
	freedFrames.IncrementBy(uint64(count))

	l.head = none
	l.len = 0
	return nil
}

// Check walks the free list and verifies the pool's invariants: the head has
// no backward link, the list is acyclic, backward links mirror forward
// links, free frames carry no owner, and free plus outstanding frames equal
// the capacity.
func (p *Pool) Check() error {
	seen := 0
	prev := none
	for i := p.head; i != none; i = p.frames[i].next {
		if seen >= len(p.frames) {
			return fmt.Errorf("free list is cyclic")
		}
		f := &p.frames[i]
		if f.prev != prev {
			return fmt.Errorf("free frame %v has backward link %d, want %d", f.addr, f.prev, prev)
		}
		if f.owner != 0 {
			return fmt.Errorf("free frame %v is owned by list %d", f.addr, f.owner)
		}
		prev = i
		seen++
	}
	if seen != p.free {
		return fmt.Errorf("free list holds %d frames, counter says %d", seen, p.free)
	}
	owned := 0
	for i := range p.frames {
		if p.frames[i].owner != 0 {
			owned++
		}
	}
	if owned != p.outstanding {
		return fmt.Errorf("%d frames are owned, counter says %d outstanding", owned, p.outstanding)
	}
	if p.free+p.outstanding != len(p.frames) {
		return fmt.Errorf("free %d + outstanding %d != capacity %d", p.free, p.outstanding, len(p.frames))
	}
	return nil
}
