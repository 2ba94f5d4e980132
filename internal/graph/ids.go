package graph

import (
	"fmt"
	"math"
	"sync/atomic"
)

// ID identifies a node, edge, location, error record, or file record.
// IDs are unique within one generation of a Store.
type ID int64

// InitialID is the first ID an Allocator hands out after creation or Reset.
const InitialID ID = 1

// Allocator issues strictly increasing IDs. It is safe for concurrent use.
//
// Reset must only be called while the owning Store is being cleared; Store.Reset
// does both under the store's locks so no consumer sees IDs from two generations.
type Allocator struct {
	last atomic.Int64 // last issued ID; InitialID-1 when fresh
}

// NewAllocator returns an Allocator whose first ID is InitialID.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.last.Store(int64(InitialID) - 1)
	return a
}

// Next returns the next ID. It panics with ErrAllocatorOverflow instead of
// wrapping when the int64 range is exhausted.
func (a *Allocator) Next() ID {
	for {
		last := a.last.Load()
		if last == math.MaxInt64 {
			panic(fmt.Errorf("%w: last issued id %d", ErrAllocatorOverflow, last))
		}
		if a.last.CompareAndSwap(last, last+1) {
			return ID(last + 1)
		}
	}
}

// Peek returns the last issued ID without allocating. Zero means nothing has
// been issued in this generation.
func (a *Allocator) Peek() ID {
	return ID(a.last.Load())
}

// Advance moves the counter so the next ID is greater than last. It never moves
// the counter backwards. Used when a generation is restored from a snapshot.
func (a *Allocator) Advance(last ID) {
	for {
		cur := a.last.Load()
		if int64(last) <= cur {
			return
		}
		if a.last.CompareAndSwap(cur, int64(last)) {
			return
		}
	}
}

// Reset returns the counter to its initial value.
func (a *Allocator) Reset() {
	a.last.Store(int64(InitialID) - 1)
}
