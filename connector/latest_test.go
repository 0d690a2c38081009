package connector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_LatestWriteRead(t *testing.T) {
	assert := assert.New(t)

	conn := NewLatest[int]()

	assert.NoError(conn.Write(1))
	assert.NoError(conn.Write(2))
	assert.NoError(conn.Write(3))

	// Only the freshest value survives
	item, err := conn.Read(t.Context())
	assert.NoError(err)
	assert.Equal(3, item)

	// Nothing new: TryRead must not block nor return stale data
	_, ok := conn.TryRead()
	assert.False(ok)

	// Peek keeps returning the last consumed value
	assert.Equal(3, conn.Peek())
}

func Test_LatestInitialValues(t *testing.T) {
	assert := assert.New(t)

	conn := NewLatest(1, 2, 3)

	// The third seed value is the initial Peek
	assert.Equal(3, conn.Peek())

	// No Write happened yet
	_, ok := conn.TryRead()
	assert.False(ok)
}

func Test_LatestBlockingRead(t *testing.T) {
	assert := assert.New(t)

	conn := NewLatest[int]()

	got := make(chan int, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		item, err := conn.Read(t.Context())
		assert.NoError(err)
		got <- item
	}()

	// Let the reader park before publishing
	time.Sleep(10 * time.Millisecond)
	assert.NoError(conn.Write(7))

	select {
	case item := <-got:
		assert.Equal(7, item)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never woke up")
	}

	wg.Wait()
}

func Test_LatestReadContextDone(t *testing.T) {
	assert := assert.New(t)

	conn := NewLatest[int]()

	ctx, cancelCtx := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancelCtx()

	_, err := conn.Read(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func Test_LatestClose(t *testing.T) {
	assert := assert.New(t)

	conn := NewLatest[int]()

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Read(t.Context())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never woke up after close")
	}

	// Writes after close are rejected
	assert.ErrorIs(conn.Write(1), ErrClosed)

	// Closing twice is a no-op
	conn.Close()
}

func Test_LatestConcurrent(t *testing.T) {
	assert := assert.New(t)

	const writes = 500_000

	conn := NewLatest[int]()

	var readerWg sync.WaitGroup
	readerWg.Add(1)

	var lastRead int
	go func() {
		defer readerWg.Done()

		for lastRead < writes {
			item, err := conn.Read(t.Context())
			if err != nil {
				t.Errorf("read error: %v", err)
				return
			}

			// Latest-wins must never go backwards
			if item < lastRead {
				t.Errorf("read %d after %d", item, lastRead)
				return
			}
			lastRead = item
		}
	}()

	for val := 1; val <= writes; val++ {
		assert.NoError(conn.Write(val))
	}

	readerWg.Wait()
	assert.Equal(writes, lastRead)
}

func Benchmark_LatestWrite(b *testing.B) {
	b.ReportAllocs()

	conn := NewLatest[int]()

	val := 0
	for b.Loop() {
		if err := conn.Write(val); err != nil {
			b.Fatalf("write error: %v", err)
		}
		val++
	}
}

func Benchmark_LatestWriteTryRead(b *testing.B) {
	b.ReportAllocs()

	conn := NewLatest[int]()

	val := 0
	for b.Loop() {
		if err := conn.Write(val); err != nil {
			b.Fatalf("write error: %v", err)
		}

		if _, ok := conn.TryRead(); !ok {
			b.Fatal("expected a fresh value")
		}

		val++
	}
}
