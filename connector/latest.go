package connector

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/attimo/internal/tb"
	"golang.org/x/sys/cpu"
)

var maxSpins = runtime.NumCPU() * 32

var _ Connector[int] = (*Latest[int])(nil)

// Latest is a latest-wins connector backed by a wait-free triple buffer.
//
// Write never blocks: publishing overwrites any value the consumer has not
// read yet, so a slow consumer only ever pays by skipping stale values,
// never by stalling the producer. Read blocks until a fresh value is
// published; TryRead and Peek never block.
//
// Exactly one goroutine may call Write and exactly one may call
// Read/TryRead/Peek for the connector's lifetime, matching the contract
// of the underlying buffer.
type Latest[T any] struct {
	buf *tb.TripleBuffer[T]

	_ cpu.CacheLinePad

	// isClosed states whether the connector is closed.
	isClosed atomic.Bool

	_ cpu.CacheLinePad

	// isEmpty states whether the consumer is parked waiting for data.
	isEmpty atomic.Bool

	_ cpu.CacheLinePad

	// notEmpty is used to signal the parked consumer
	notEmpty *sync.Cond
	mux      *sync.Mutex
}

// NewLatest returns a new latest-wins connector, optionally seeded with up
// to 3 initial values (the last one is what Peek observes first).
func NewLatest[T any](initial ...T) *Latest[T] {
	mux := &sync.Mutex{}

	return &Latest[T]{
		buf: tb.New(initial...),

		mux:      mux,
		notEmpty: sync.NewCond(mux),
	}
}

// Write publishes an item, overwriting any unconsumed one.
// It never blocks; after Close it returns ErrClosed.
func (l *Latest[T]) Write(item T) error {
	// Check if the connector is closed
	if l.isClosed.Load() {
		return ErrClosed
	}

	l.buf.Push(item)

	// Wake up the consumer if it is parked
	if l.isEmpty.CompareAndSwap(true, false) {
		l.mux.Lock()
		l.notEmpty.Broadcast()
		l.mux.Unlock()
	}

	return nil
}

// TryRead consumes and returns the freshest published value, if any.
func (l *Latest[T]) TryRead() (T, bool) {
	if !l.buf.Pending() {
		var zero T
		return zero, false
	}

	l.buf.Pop()

	return *l.buf.Front(), true
}

// Peek returns the value of the last consumed read without advancing.
func (l *Latest[T]) Peek() T {
	return *l.buf.Front()
}

// Read returns the freshest published value, blocking until one is
// available. It spins briefly before parking on a condition variable.
func (l *Latest[T]) Read(ctx context.Context) (T, error) {
	var zero T

	for range maxSpins {
		// Try to consume a fresh value
		if item, ok := l.TryRead(); ok {
			return item, nil
		}

		// Nothing published yet, yield to other goroutines
		runtime.Gosched()
	}

	for {
		if item, ok := l.TryRead(); ok {
			return item, nil
		}

		// Still nothing, yield and retry once before parking
		runtime.Gosched()

		if item, ok := l.TryRead(); ok {
			return item, nil
		}

		l.mux.Lock()

		// Mark the consumer as parked
		l.isEmpty.Store(true)

		// Check if the connector is closed
		if l.isClosed.Load() {
			l.mux.Unlock()
			return zero, ErrClosed
		}

		// A Write may have landed between the last TryRead and the
		// parked-flag store; in that case it saw isEmpty as false and
		// will not signal, so do not wait.
		if l.buf.Pending() {
			l.isEmpty.Store(false)
			l.mux.Unlock()
			continue
		}

		// Wait for data, return an error if the context is done
		if err := l.wait(ctx, l.notEmpty); err != nil {
			l.mux.Unlock()
			return zero, err
		}

		l.mux.Unlock()
	}
}

func (l *Latest[T]) wait(ctx context.Context, cond *sync.Cond) error {
	done := make(chan struct{})

	go func() {
		defer close(done)
		cond.Wait()
	}()

	select {
	case <-done:
		return nil

	case <-ctx.Done():
		// Wake up the waiting goroutine
		cond.Broadcast()
		<-done
		return ctx.Err()
	}
}

// Close closes the connector. Pending Reads return ErrClosed.
func (l *Latest[T]) Close() {
	if !l.isClosed.CompareAndSwap(false, true) {
		return
	}

	l.mux.Lock()
	l.notEmpty.Broadcast()
	l.mux.Unlock()
}
