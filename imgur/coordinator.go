package imgur

import (
	"sync"
	"sync/atomic"

	"imgurfetch/internal"
)

// Coordinator downloads thumbnails for tracked resources with at most one
// exchange per resource in flight. Registry and record changes happen on its
// lane; Record and Records give other goroutines consistent copies.
type Coordinator struct {
	cc       *ClientContext
	resolver *Resolver
	lane     *Lane

	mu       sync.RWMutex
	records  map[string]*internal.ResourceRecord
	order    []string
	failures map[string]error

	// lane-only
	active map[string]*activeDownload
	closed bool

	nextObserver atomic.Uint64
}

type observerEntry struct {
	id       uint64
	observer internal.ThumbnailObserver
}

type activeDownload struct {
	task      *Task
	observers []observerEntry
}

func (a *activeDownload) attach(id uint64, observer internal.ThumbnailObserver) {
	a.observers = append(a.observers, observerEntry{id: id, observer: observer})
}

func (a *activeDownload) detach(id uint64) {
	for i, entry := range a.observers {
		if entry.id == id {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

// Subscription is one observer's interest in one resource
type Subscription struct {
	coordinator *Coordinator
	resourceID  string
	id          uint64
	once        sync.Once
}

// ResourceID returns the resource the subscription is for
func (s *Subscription) ResourceID() string {
	return s.resourceID
}

// Detach stops deliveries to this observer. The download keeps running for
// any other observers.
func (s *Subscription) Detach() {
	s.once.Do(func() {
		s.coordinator.lane.Post(func() {
			if entry, ok := s.coordinator.active[s.resourceID]; ok {
				entry.detach(s.id)
			}
		})
	})
}

// NewCoordinator creates a coordinator that owns one dispatcher lane
func NewCoordinator(cc *ClientContext) *Coordinator {
	return &Coordinator{
		cc:       cc,
		resolver: NewResolver(&cc.config),
		lane:     cc.dispatcher.Lane(),
		records:  make(map[string]*internal.ResourceRecord),
		failures: make(map[string]error),
		active:   make(map[string]*activeDownload),
	}
}

// Track adds records to the working set. Records already tracked keep their
// download state and thumbnail; their metadata is refreshed.
func (c *Coordinator) Track(records ...internal.ResourceRecord) {
	c.lane.Post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, rec := range records {
			if rec.ID == "" {
				continue
			}
			if existing, ok := c.records[rec.ID]; ok {
				rec.State = existing.State
				rec.PercentComplete = existing.PercentComplete
				rec.Thumbnail = existing.Thumbnail
				*existing = rec
				continue
			}
			if rec.State == "" {
				rec.State = internal.StateNew
			}
			stored := rec
			c.records[rec.ID] = &stored
			c.order = append(c.order, rec.ID)
		}
	})
}

// RequestThumbnail asks for the thumbnail of resourceID. The observer gets
// progress while the download runs and exactly one completion, unless the
// download is cancelled or the subscription detached first.
func (c *Coordinator) RequestThumbnail(resourceID string, observer internal.ThumbnailObserver) *Subscription {
	sub := &Subscription{
		coordinator: c,
		resourceID:  resourceID,
		id:          c.nextObserver.Add(1),
	}
	if !c.lane.Post(func() { c.request(resourceID, sub.id, observer) }) {
		observer.OnThumbnailComplete(internal.ResourceRecord{ID: resourceID}, internal.NewCancelledError())
	}
	return sub
}

func (c *Coordinator) request(resourceID string, subID uint64, observer internal.ThumbnailObserver) {
	if c.closed {
		observer.OnThumbnailComplete(internal.ResourceRecord{ID: resourceID}, internal.NewCancelledError())
		return
	}

	c.mu.RLock()
	rec, ok := c.records[resourceID]
	var snapshot internal.ResourceRecord
	if ok {
		snapshot = *rec
	}
	failure := c.failures[resourceID]
	c.mu.RUnlock()

	if !ok {
		observer.OnThumbnailComplete(internal.ResourceRecord{ID: resourceID}, internal.NewUnknownResourceError(resourceID))
		return
	}

	switch snapshot.State {
	case internal.StateDownloading:
		if entry, ok := c.active[resourceID]; ok {
			entry.attach(subID, observer)
			observer.OnThumbnailProgress(resourceID, snapshot.PercentComplete)
			return
		}
		// no task behind the state; start over
		c.start(snapshot, subID, observer)

	case internal.StateDownloaded, internal.StateFailed:
		delete(c.active, resourceID)
		if snapshot.State == internal.StateFailed && failure == nil {
			failure = internal.NewImageUnavailableError(resourceID)
		}
		observer.OnThumbnailComplete(snapshot, failure)

	default:
		c.start(snapshot, subID, observer)
	}
}

func (c *Coordinator) start(rec internal.ResourceRecord, subID uint64, observer internal.ThumbnailObserver) {
	kind := internal.TaskKind{Type: internal.TaskDownloadForResource, ResourceID: rec.ID}
	desc, err := c.resolver.ImageDescriptor(rec, kind)
	if err != nil {
		failed := c.update(rec.ID, func(r *internal.ResourceRecord) {
			r.State = internal.StateFailed
			r.PercentComplete = 0
		}, err)
		observer.OnThumbnailComplete(failed, err)
		return
	}

	task := newTaskOnLane(c.cc, *desc, c.lane)
	entry := &activeDownload{task: task}
	entry.attach(subID, observer)
	c.active[rec.ID] = entry

	c.update(rec.ID, func(r *internal.ResourceRecord) {
		r.State = internal.StateDownloading
		r.PercentComplete = 0
	}, nil)

	resourceID := rec.ID
	task.OnProgress(func(fraction float64) { c.progress(resourceID, task, fraction) })
	task.OnComplete(func(result Result) { c.complete(resourceID, task, result) })
	c.cc.logger.Debug("thumbnail %s: task %s started", resourceID, task.ID())
	task.Start()
}

// progress and complete run on the coordinator lane, where the task delivers
func (c *Coordinator) progress(resourceID string, task *Task, fraction float64) {
	entry, ok := c.active[resourceID]
	if !ok || entry.task != task {
		return
	}

	c.mu.Lock()
	if rec, ok := c.records[resourceID]; ok && rec.State == internal.StateDownloading {
		rec.PercentComplete = fraction
	}
	c.mu.Unlock()

	for _, o := range entry.observers {
		o.observer.OnThumbnailProgress(resourceID, fraction)
	}
}

func (c *Coordinator) complete(resourceID string, task *Task, result Result) {
	entry, ok := c.active[resourceID]
	if !ok || entry.task != task {
		return
	}

	err := result.Err
	if err == nil && result.Thumbnail == nil {
		err = internal.NewImageUnavailableError(resourceID)
	}

	snapshot := c.update(resourceID, func(r *internal.ResourceRecord) {
		if err != nil {
			r.State = internal.StateFailed
			r.PercentComplete = 0
			return
		}
		r.State = internal.StateDownloaded
		r.PercentComplete = 1
		r.Thumbnail = result.Thumbnail
	}, err)

	if err != nil {
		c.cc.logger.Warn("thumbnail %s: %v", resourceID, err)
	}
	for _, o := range entry.observers {
		o.observer.OnThumbnailComplete(snapshot, err)
	}
	delete(c.active, resourceID)
}

// update applies fn to the stored record and returns a copy. The failure is
// remembered for later requests; nil clears it.
func (c *Coordinator) update(resourceID string, fn func(*internal.ResourceRecord), failure error) internal.ResourceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if failure != nil {
		c.failures[resourceID] = failure
	} else {
		delete(c.failures, resourceID)
	}

	rec, ok := c.records[resourceID]
	if !ok {
		return internal.ResourceRecord{ID: resourceID}
	}
	fn(rec)
	return *rec
}

// Cancel stops the download for resourceID, if any. Its observers get no
// further events and the resource can be requested again straight away.
func (c *Coordinator) Cancel(resourceID string) {
	c.lane.Post(func() { c.cancel(resourceID) })
}

func (c *Coordinator) cancel(resourceID string) {
	entry, ok := c.active[resourceID]
	if !ok {
		return
	}
	delete(c.active, resourceID)
	entry.task.Cancel()

	c.update(resourceID, func(r *internal.ResourceRecord) {
		if r.State == internal.StateDownloading {
			r.State = internal.StateNew
			r.PercentComplete = 0
		}
	}, nil)
	c.cc.logger.Debug("thumbnail %s: cancelled", resourceID)
}

// Pause holds the download for resourceID
func (c *Coordinator) Pause(resourceID string) {
	c.lane.Post(func() {
		if entry, ok := c.active[resourceID]; ok {
			entry.task.Pause()
		}
	})
}

// Resume continues a paused download for resourceID
func (c *Coordinator) Resume(resourceID string) {
	c.lane.Post(func() {
		if entry, ok := c.active[resourceID]; ok {
			entry.task.Resume()
		}
	})
}

// Reset returns a failed resource to new so it can be requested again
func (c *Coordinator) Reset(resourceID string) {
	c.lane.Post(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if rec, ok := c.records[resourceID]; ok && rec.State == internal.StateFailed {
			rec.State = internal.StateNew
			rec.PercentComplete = 0
			delete(c.failures, resourceID)
		}
	})
}

// Remove evicts resourceID from the working set, cancelling its download
func (c *Coordinator) Remove(resourceID string) {
	c.lane.Post(func() {
		c.cancel(resourceID)

		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.records[resourceID]; !ok {
			return
		}
		delete(c.records, resourceID)
		delete(c.failures, resourceID)
		for i, id := range c.order {
			if id == resourceID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	})
}

// Record returns a copy of the tracked record for resourceID
func (c *Coordinator) Record(resourceID string) (internal.ResourceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[resourceID]
	if !ok {
		return internal.ResourceRecord{}, false
	}
	return *rec, true
}

// Records returns copies of all tracked records in the order they were added
func (c *Coordinator) Records() []internal.ResourceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]internal.ResourceRecord, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.records[id])
	}
	return out
}

// Failure returns the error that failed resourceID's last download, if any
func (c *Coordinator) Failure(resourceID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failures[resourceID]
}

// Sync returns a channel closed once everything posted to the coordinator
// before the call has been processed
func (c *Coordinator) Sync() <-chan struct{} {
	ch := make(chan struct{})
	if !c.lane.Post(func() { close(ch) }) {
		close(ch)
	}
	return ch
}

// Close cancels every running download. Later requests complete with a
// Cancelled error.
func (c *Coordinator) Close() {
	c.lane.Post(func() {
		c.closed = true
		for id := range c.active {
			c.cancel(id)
		}
	})
}
