package tb

import (
	"math/rand"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SingleHandoff(t *testing.T) {
	assert := assert.New(t)

	b := New[int]()

	b.Push(42)
	assert.Equal(0, *b.Front())

	b.Pop()
	assert.Equal(42, *b.Front())
}

func Test_LatestWins(t *testing.T) {
	assert := assert.New(t)

	const pushes = 1000

	b := New[int]()

	for val := 1; val <= pushes; val++ {
		b.Push(val)
	}

	// Only the last push survives; the intermediate values are dropped.
	b.Pop()
	assert.Equal(pushes, *b.Front())

	assert.False(b.Pending())
}

func Test_PopWithoutPush(t *testing.T) {
	assert := assert.New(t)

	b := New[string]("a", "b", "c")

	assert.Equal("c", *b.Front())

	// No push happened, so Pop must be a no-op.
	b.Pop()
	assert.Equal("c", *b.Front())

	b.Pop()
	b.Pop()
	assert.Equal("c", *b.Front())
}

func Test_InitialValues(t *testing.T) {
	assert := assert.New(t)

	// The third value sits in the initial read slot.
	b := New(10, 20, 30)
	assert.Equal(30, *b.Front())

	// Missing values are zero filled.
	partial := New(10)
	assert.Equal(0, *partial.Front())

	empty := New[int]()
	assert.Equal(0, *empty.Front())

	assert.Panics(func() { New(1, 2, 3, 4) })
}

func Test_Update(t *testing.T) {
	assert := assert.New(t)

	type point struct{ x, y int }

	b := New[point]()

	b.Update(func(p *point) {
		p.x = 3
		p.y = 7
	})

	b.Pop()
	assert.Equal(point{3, 7}, *b.Front())
}

func Test_PendingFlag(t *testing.T) {
	assert := assert.New(t)

	b := New[int]()
	assert.False(b.Pending())

	b.Push(1)
	assert.True(b.Pending())

	b.Pop()
	assert.False(b.Pending())

	b.Push(2)
	b.Push(3)
	assert.True(b.Pending())

	b.Pop()
	assert.False(b.Pending())
	assert.Equal(3, *b.Front())
}

// checkState decodes the packed word and asserts the role fields always
// form a permutation of {0,1,2} and no stray bits are set.
func checkState(t *testing.T, state uint32) {
	t.Helper()

	w := writeSlot(state)
	x := exchangeSlot(state)
	r := readSlot(state)

	if w == x || w == r || x == r {
		t.Fatalf("role slots not disjoint: write=%d exchange=%d read=%d", w, x, r)
	}

	if w > 2 || x > 2 || r > 2 {
		t.Fatalf("role slot out of range: write=%d exchange=%d read=%d", w, x, r)
	}

	if state&^(availFlag|slotMask<<writeShift|slotMask<<exchangeShift|slotMask<<readShift) != 0 {
		t.Fatalf("stray bits in state word: %#08b", state)
	}
}

func Test_RoleSlotsStayDisjoint(t *testing.T) {
	const ops = 100_000

	b := New[int]()
	checkState(t, b.state.Load())

	rng := rand.New(rand.NewSource(1))

	front := 0
	for i := range ops {
		if rng.Intn(2) == 0 {
			b.Push(i)
		} else {
			b.Pop()
			val := *b.Front()
			if val < front {
				t.Fatalf("front went backwards: %d after %d", val, front)
			}
			front = val
		}

		checkState(t, b.state.Load())
	}
}

func Test_ConcurrentMonotonicReads(t *testing.T) {
	assert := assert.New(t)

	const pushes = 1_000_000

	b := New[int]()

	done := make(chan struct{})

	// Consumer: the sequence of observed values must never go backwards,
	// and must eventually reach the last pushed value.
	go func() {
		defer close(done)

		last := 0
		for last < pushes {
			b.Pop()
			val := *b.Front()
			if val < last {
				t.Errorf("observed %d after %d", val, last)
				return
			}
			last = val
		}
	}()

	for val := 1; val <= pushes; val++ {
		b.Push(val)
	}

	<-done

	b.Pop()
	assert.Equal(pushes, *b.Front())
}

type checksummed struct {
	a, b, c uint64
	sum     uint64
}

func Test_ConcurrentNoTearing(t *testing.T) {
	const pushes = 2_000_000

	b := New[checksummed]()

	var consumerWg sync.WaitGroup
	consumerWg.Add(1)

	stop := make(chan struct{})

	// Consumer: every observed value must carry a valid checksum,
	// otherwise a torn read slipped through.
	go func() {
		defer consumerWg.Done()

		for {
			select {
			case <-stop:
				return
			default:
			}

			b.Pop()
			val := *b.Front()
			if val.a+val.b+val.c != val.sum {
				t.Errorf("torn read: a=%d b=%d c=%d sum=%d", val.a, val.b, val.c, val.sum)
				return
			}
		}
	}()

	for i := uint64(1); i <= pushes; i++ {
		b.Push(checksummed{
			a:   i,
			b:   i * 3,
			c:   i * 7,
			sum: i + i*3 + i*7,
		})
	}

	close(stop)
	consumerWg.Wait()
}

func Test_ConcurrentUpdateNoTearing(t *testing.T) {
	const updates = 1_000_000

	b := New[checksummed]()

	done := make(chan struct{})

	go func() {
		defer close(done)

		last := uint64(0)
		for last < updates {
			b.Pop()
			val := *b.Front()
			if val.a+val.b+val.c != val.sum {
				t.Errorf("torn read: a=%d b=%d c=%d sum=%d", val.a, val.b, val.c, val.sum)
				return
			}
			if val.a < last {
				t.Errorf("observed %d after %d", val.a, last)
				return
			}
			last = val.a
		}
	}()

	for i := uint64(1); i <= updates; i++ {
		b.Update(func(v *checksummed) {
			v.a = i
			v.b = i * 5
			v.c = i * 11
			v.sum = v.a + v.b + v.c
		})
	}

	<-done
}

func Benchmark_Push(b *testing.B) {
	b.ReportAllocs()

	buf := New[int]()

	val := 0
	for b.Loop() {
		buf.Push(val)
		val++
	}
}

func Benchmark_PushPopCycle(b *testing.B) {
	b.ReportAllocs()

	buf := New[int]()

	val := 0
	for b.Loop() {
		buf.Push(val)
		buf.Pop()
		_ = *buf.Front()
		val++
	}
}

func Benchmark_1P1C(b *testing.B) {
	buf := New[int]()

	done := make(chan struct{})

	go func() {
		defer close(done)

		last := 0
		for last < b.N {
			buf.Pop()
			last = *buf.Front()
			runtime.Gosched()
		}
	}()

	b.ResetTimer()
	for i := 1; i <= b.N; i++ {
		buf.Push(i)
	}
	<-done
	b.StopTimer()
}
