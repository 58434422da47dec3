package imgur

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"imgurfetch/internal"
)

// Lane is one serialized worker: closures posted to it run one at a time,
// in the order they were posted.
type Lane struct {
	id     int
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func newLane(id int) *Lane {
	return &Lane{id: id, wake: make(chan struct{}, 1)}
}

// Post queues fn and returns immediately. It reports false once the lane
// has been closed, in which case fn will never run.
func (l *Lane) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// run drains the queue until the lane is closed and empty
func (l *Lane) run() error {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return nil
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Lane) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			internal.LogError("lane %d: recovered from panic in callback: %v", l.id, r)
		}
	}()
	fn()
}

// Dispatcher owns a fixed set of lanes. Work for a single task always goes
// to the same lane, so per-task ordering holds for any number of lanes.
type Dispatcher struct {
	lanes     []*Lane
	next      atomic.Uint64
	group     *errgroup.Group
	closeOnce sync.Once
	err       error
}

// NewDispatcher starts n lanes. n below 1 is treated as 1.
func NewDispatcher(n int) *Dispatcher {
	if n < 1 {
		n = 1
	}

	group := new(errgroup.Group)
	d := &Dispatcher{
		lanes: make([]*Lane, n),
		group: group,
	}
	for i := range d.lanes {
		lane := newLane(i)
		d.lanes[i] = lane
		group.Go(lane.run)
	}
	return d
}

// Lane hands out lanes round robin
func (d *Dispatcher) Lane() *Lane {
	i := d.next.Add(1) - 1
	return d.lanes[i%uint64(len(d.lanes))]
}

// Size returns the number of lanes
func (d *Dispatcher) Size() int {
	return len(d.lanes)
}

// Close stops accepting work and waits for queued closures to finish
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		for _, lane := range d.lanes {
			lane.close()
		}
		d.err = d.group.Wait()
	})
	return d.err
}
