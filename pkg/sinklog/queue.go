package sinklog

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// entry is a queued message or, when sync is set, a flush marker that the
// worker closes once every entry ahead of it has been handled.
type entry struct {
	msg  types.LogMessage
	sync chan struct{}
}

// queue is the bounded buffer between producers and the single worker
// goroutine of an asynchronous logger.
type queue struct {
	ch       chan entry
	overflow OverflowPolicy
	timeout  time.Duration
	interval time.Duration
	mode     ShutdownMode

	stop chan struct{}
	done chan struct{}

	// markers evicted by OverflowDropOldest; released after the worker's
	// next handled entry
	mu      sync.Mutex
	orphans []chan struct{}
}

func newQueue(cfg *Config) *queue {
	return &queue{
		ch:       make(chan entry, cfg.QueueCapacity),
		overflow: cfg.Overflow,
		timeout:  cfg.BlockTimeout,
		interval: cfg.WorkerInterval,
		mode:     cfg.Shutdown,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// push adds msg according to the overflow policy. evicted is called for each
// entry removed by OverflowDropOldest.
func (q *queue) push(msg types.LogMessage, evicted func(types.LogMessage)) error {
	e := entry{msg: msg}
	switch q.overflow {
	case OverflowDropNewest:
		if !q.offer(e) {
			return types.ErrQueueSpaceExceeded
		}

	case OverflowDropOldest:
		for !q.offer(e) {
			select {
			case old := <-q.ch:
				if old.sync != nil {
					q.adopt(old.sync)
				} else {
					evicted(old.msg)
				}
			default:
			}
		}

	default:
		if !q.offer(e) {
			return q.waitForSpace(e)
		}
	}
	return nil
}

func (q *queue) offer(e entry) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

func (q *queue) waitForSpace(e entry) error {
	if q.timeout < 0 {
		q.ch <- e
		return nil
	}
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case q.ch <- e:
		return nil
	case <-timer.C:
		return types.ErrQueueSpaceExceeded
	}
}

// run is the worker loop. idle is called when the poll interval elapses
// without new entries.
func (q *queue) run(process, discard func(types.LogMessage), idle func()) {
	defer close(q.done)

	var timer *time.Timer
	if q.interval > 0 {
		timer = time.NewTimer(q.interval)
		defer timer.Stop()
	}

	for {
		// stop wins over pending entries so discard mode drops them
		select {
		case <-q.stop:
			q.finish(process, discard)
			return
		default:
		}

		if q.interval == 0 {
			select {
			case e := <-q.ch:
				q.handle(e, process)
			case <-q.stop:
				q.finish(process, discard)
				return
			default:
				runtime.Gosched()
			}
			continue
		}

		var wake <-chan time.Time
		if timer != nil {
			timer.Reset(q.interval)
			wake = timer.C
		}
		select {
		case e := <-q.ch:
			q.handle(e, process)
		case <-q.stop:
			q.finish(process, discard)
			return
		case <-wake:
			q.releaseOrphans()
			idle()
		}
	}
}

func (q *queue) handle(e entry, process func(types.LogMessage)) {
	if e.sync != nil {
		close(e.sync)
	} else {
		process(e.msg)
	}
	q.releaseOrphans()
}

// finish empties the channel after stop. No producer can add entries by then.
func (q *queue) finish(process, discard func(types.LogMessage)) {
	defer q.releaseOrphans()
	for {
		select {
		case e := <-q.ch:
			switch {
			case e.sync != nil:
				close(e.sync)
			case q.mode == ShutdownDrain:
				process(e.msg)
			default:
				discard(e.msg)
			}
		default:
			return
		}
	}
}

// adopt keeps an evicted marker. Every entry ahead of it has left the
// channel, but the worker may still be writing one of them.
func (q *queue) adopt(marker chan struct{}) {
	q.mu.Lock()
	q.orphans = append(q.orphans, marker)
	q.mu.Unlock()
}

func (q *queue) releaseOrphans() {
	q.mu.Lock()
	orphans := q.orphans
	q.orphans = nil
	q.mu.Unlock()
	for _, marker := range orphans {
		close(marker)
	}
}

// mark queues a flush marker. The caller must keep the queue from being shut
// down until mark returns.
func (q *queue) mark(ctx context.Context) (<-chan struct{}, error) {
	marker := make(chan struct{})
	select {
	case q.ch <- entry{sync: marker}:
		return marker, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops the worker and waits for it to exit.
func (q *queue) shutdown() {
	close(q.stop)
	<-q.done
}

func (q *queue) depth() int    { return len(q.ch) }
func (q *queue) capacity() int { return cap(q.ch) }
