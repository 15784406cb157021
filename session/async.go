package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncOptions configures an AsyncObserver.
type AsyncOptions struct {
	// BufferSize defaults to 64.
	BufferSize int
	// DropIfFull discards events instead of blocking Notify when the buffer is full.
	DropIfFull bool
}

// AsyncObserver delivers events to another observer on its own goroutine, in order.
// It may call back into the Manager.
type AsyncObserver struct {
	next       Observer
	dropIfFull bool
	ch         chan Event
	done       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewAsyncObserver starts the delivery goroutine. Close stops it after draining.
func NewAsyncObserver(next Observer, opts AsyncOptions) *AsyncObserver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if next == nil {
		next = ObserverFunc(func(context.Context, Event) {})
	}

	o := &AsyncObserver{
		next:       next,
		dropIfFull: opts.DropIfFull,
		ch:         make(chan Event, opts.BufferSize),
		done:       make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

func (o *AsyncObserver) run() {
	defer o.wg.Done()

	for {
		select {
		case event := <-o.ch:
			o.next.Notify(context.Background(), event)
		case <-o.done:
			for {
				select {
				case event := <-o.ch:
					o.next.Notify(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Notify enqueues event.
func (o *AsyncObserver) Notify(ctx context.Context, event Event) {
	if o == nil || o.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if o.dropIfFull {
		select {
		case o.ch <- event:
		case <-o.done:
		default:
			o.dropped.Add(1)
		}
		return
	}

	select {
	case o.ch <- event:
	case <-ctx.Done():
	case <-o.done:
	}
}

// Close delivers buffered events and stops the goroutine. It is idempotent.
func (o *AsyncObserver) Close() {
	if o == nil {
		return
	}
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
		o.wg.Wait()
	})
}

// Dropped returns the number of events discarded because the buffer was full.
func (o *AsyncObserver) Dropped() uint64 {
	if o == nil {
		return 0
	}
	return o.dropped.Load()
}
