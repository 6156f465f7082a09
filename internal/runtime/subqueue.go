package runtime

import (
	"sync"
)

// SubQueue decouples a producer from a single consumer. Enqueue never blocks;
// a dispatcher goroutine drains the backlog into the consumer channel at
// whatever pace the consumer reads.
type SubQueue[T any] struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []T
	maxBacklog int
	dropped    uint64
	closed     bool
	done       chan struct{}

	outCh chan T // consumer reads from this
}

// NewSubQueue creates a running queue. When maxBacklog is positive and the
// backlog is full, the oldest queued item is discarded to make room.
func NewSubQueue[T any](outBuf, maxBacklog int) *SubQueue[T] {
	sq := &SubQueue[T]{
		outCh:      make(chan T, outBuf),
		maxBacklog: maxBacklog,
		done:       make(chan struct{}),
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.dispatch()
	return sq
}

// Channel exposed to subscriber. It is closed once the queue is closed.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends to the backlog and wakes the dispatcher.
func (sq *SubQueue[T]) Enqueue(ev T) {
	sq.mu.Lock()
	if !sq.closed {
		if sq.maxBacklog > 0 && len(sq.queue) >= sq.maxBacklog {
			var zero T
			sq.queue[0] = zero
			sq.queue = sq.queue[1:]
			sq.dropped++
		}
		sq.queue = append(sq.queue, ev)
		sq.cond.Signal()
	}
	sq.mu.Unlock()
}

// Pending is the number of items not yet handed to the consumer channel.
func (sq *SubQueue[T]) Pending() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return len(sq.queue)
}

// Dropped is the number of items discarded because the backlog was full.
func (sq *SubQueue[T]) Dropped() uint64 {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.dropped
}

// Close stops the dispatcher and closes the out channel. Items still in the
// backlog are discarded.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	if !sq.closed {
		sq.closed = true
		close(sq.done)
		sq.cond.Broadcast()
	}
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) dispatch() {
	for {
		sq.mu.Lock()
		for !sq.closed && len(sq.queue) == 0 {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.queue = nil
			sq.mu.Unlock()
			close(sq.outCh)
			return
		}
		ev := sq.queue[0]
		var zero T
		sq.queue[0] = zero
		sq.queue = sq.queue[1:]
		sq.mu.Unlock()

		// Blocks only on the channel buffer / reader, or until Close.
		select {
		case sq.outCh <- ev:
		case <-sq.done:
			close(sq.outCh)
			return
		}
	}
}
