// Package tb provides a wait-free single-producer/single-consumer triple buffer.
package tb

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// The whole buffer state is packed into the low byte of a single atomic
// word, two bits per field:
//
//	bit 7-6: data-available flag
//	bit 5-4: write-slot index (owned by the producer)
//	bit 3-2: exchange-slot index (the hand-off slot)
//	bit 1-0: read-slot index (owned by the consumer)
//
// {write, exchange, read} is always a permutation of {0, 1, 2}: the
// producer swaps write<->exchange on publish, the consumer swaps
// exchange<->read on advance, and neither side ever touches the other's
// field pair. Go has no atomic.Uint8, so the byte lives in an
// atomic.Uint32.
const (
	readShift     = 0
	exchangeShift = 2
	writeShift    = 4
	availShift    = 6

	slotMask = 0b11

	availFlag = 1 << availShift

	// write=0, exchange=1, read=2, no data available yet
	initialState = 0<<writeShift | 1<<exchangeShift | 2<<readShift
)

func writeSlot(state uint32) uint32 {
	return (state >> writeShift) & slotMask
}

func exchangeSlot(state uint32) uint32 {
	return (state >> exchangeShift) & slotMask
}

func readSlot(state uint32) uint32 {
	return (state >> readShift) & slotMask
}

// TripleBuffer lets one producer goroutine publish an ever-changing value
// and one consumer goroutine read the freshest one, without locks,
// allocations, or blocking on either side. Values pushed between two
// consumer reads are dropped, never queued: the consumer is only ever
// guaranteed to see the latest published value.
//
// Exactly one goroutine may call Push/Update and exactly one may call
// Front/Pop for the buffer's entire lifetime. More producers or more
// consumers is undefined behavior; the buffer does not defend against it.
type TripleBuffer[T any] struct {
	noCopy noCopy

	state atomic.Uint32

	_ cpu.CacheLinePad

	slots [3]T
}

// New returns a new triple buffer holding up to 3 initial values.
// The values fill the physical slots in order, so with three arguments the
// consumer observes the third one from Front before any Push occurs.
// Missing values are left zero. More than 3 values panics.
func New[T any](initial ...T) *TripleBuffer[T] {
	if len(initial) > 3 {
		panic("tb: at most 3 initial values")
	}

	b := &TripleBuffer[T]{}
	copy(b.slots[:], initial)
	b.state.Store(initialState)

	return b
}

// Push publishes a new value. Producer-only.
//
// The value lands in the current write slot, then a CAS swaps the write
// and exchange roles and raises the available flag. The read slot is left
// untouched, so an in-flight Front on the consumer side stays valid.
func (b *TripleBuffer[T]) Push(item T) {
	state := b.state.Load()
	b.slots[writeSlot(state)] = item
	b.publish(state)
}

// Update writes the new value in place through the provided function,
// which receives a pointer to the current write slot. Producer-only.
// Useful when T is large and a full copy per publish is unwanted.
func (b *TripleBuffer[T]) Update(write func(item *T)) {
	state := b.state.Load()
	write(&b.slots[writeSlot(state)])
	b.publish(state)
}

func (b *TripleBuffer[T]) publish(state uint32) {
	for {
		// Swap write<->exchange, set the available flag, keep read.
		next := availFlag |
			exchangeSlot(state)<<writeShift |
			writeSlot(state)<<exchangeShift |
			state&(slotMask<<readShift)

		if b.state.CompareAndSwap(state, next) {
			return
		}

		// The consumer swapped exchange<->read underneath us. It never
		// changes the write field, so the slot just written is still the
		// write slot: recompute the swap from the fresh word, not from
		// the stale one.
		state = b.state.Load()
	}
}

// Front returns a pointer to the value in the current read slot.
// Consumer-only. The pointer stays valid until the next Pop that actually
// advances, or until the buffer is gone.
func (b *TripleBuffer[T]) Front() *T {
	return &b.slots[readSlot(b.state.Load())]
}

// Pop adopts the freshest published value, if any, as the new Front.
// Consumer-only. When nothing new was published since the last Pop it is
// a no-op costing a single atomic load.
func (b *TripleBuffer[T]) Pop() {
	for {
		state := b.state.Load()
		if state&availFlag == 0 {
			return
		}

		// Swap exchange<->read, clear the available flag, keep write.
		next := readSlot(state)<<exchangeShift |
			exchangeSlot(state)<<readShift |
			state&(slotMask<<writeShift)

		if b.state.CompareAndSwap(state, next) {
			return
		}
	}
}

// Pending states whether the exchange slot holds a value the consumer has
// not adopted yet, i.e. whether the next Pop will advance Front.
func (b *TripleBuffer[T]) Pending() bool {
	return b.state.Load()&availFlag != 0
}

// noCopy makes go vet flag copies of a TripleBuffer: the packed state
// indexes into the sibling slot array, so relocation while operations are
// in flight breaks the role permutation.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
