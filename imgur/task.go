package imgur

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"math"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"imgurfetch/internal"
)

// chunkSize is the read and write granularity for bodies
const chunkSize = 32 * 1024

// progressBuffer is how many undelivered fractions Progress() holds
const progressBuffer = 64

// maxPrealloc caps how much of a declared Content-Length is reserved up front
const maxPrealloc = 8 << 20

// TaskState is the lifecycle of a Task
type TaskState int

const (
	TaskIdle TaskState = iota
	TaskRunning
	TaskPaused
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskRunning:
		return "running"
	case TaskPaused:
		return "paused"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// Result is the terminal outcome of a Task. Exactly one of Err or the
// payload fields is meaningful.
type Result struct {
	Err        error
	StatusCode int

	// Payload is the JSON body of plain and upload tasks, nil if the body was empty
	Payload json.RawMessage

	// Image is the decoded body of download tasks, nil if it did not decode
	Image     image.Image
	Thumbnail image.Image
	Bytes     []byte
}

// Task executes one HTTP exchange. Its events are delivered on a single
// dispatcher lane: progress in non-decreasing order, then exactly one
// terminal event. Start, Pause, Resume and Cancel never block.
type Task struct {
	id   uuid.UUID
	cc   *ClientContext
	desc internal.RequestDescriptor
	lane *Lane

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  TaskState
	gate   chan struct{} // non-nil while paused, closed on resume
	result Result

	onProgress func(float64)
	onComplete func(Result)

	// lane-only
	lastFraction float64

	done     chan struct{}
	progress chan float64
}

// NewTask creates an idle task for desc on the next dispatcher lane
func NewTask(cc *ClientContext, desc internal.RequestDescriptor) *Task {
	return newTaskOnLane(cc, desc, cc.dispatcher.Lane())
}

func newTaskOnLane(cc *ClientContext, desc internal.RequestDescriptor, lane *Lane) *Task {
	ctx, cancel := context.WithCancel(cc.root)
	return &Task{
		id:           uuid.New(),
		cc:           cc,
		desc:         desc,
		lane:         lane,
		ctx:          ctx,
		cancel:       cancel,
		lastFraction: -1,
		done:         make(chan struct{}),
		progress:     make(chan float64, progressBuffer),
	}
}

// ID identifies the task in logs
func (t *Task) ID() string {
	return t.id.String()
}

// Kind returns what the task does with its response
func (t *Task) Kind() internal.TaskKind {
	return t.desc.Kind
}

// OnProgress sets the progress callback. It must be called before Start.
func (t *Task) OnProgress(fn func(float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskIdle {
		t.onProgress = fn
	}
}

// OnComplete sets the completion callback. It must be called before Start.
// It is not invoked for cancelled tasks.
func (t *Task) OnComplete(fn func(Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskIdle {
		t.onComplete = fn
	}
}

// State returns the current state
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start begins the exchange. Calling it more than once has no effect.
func (t *Task) Start() {
	t.mu.Lock()
	if t.state != TaskIdle {
		t.mu.Unlock()
		return
	}
	t.state = TaskRunning
	t.mu.Unlock()

	if !t.cc.acquire() {
		t.Cancel()
		return
	}
	t.cc.logger.Debug("task %s: start %s %s (%s)", t.id, t.desc.Method, t.desc.URL, t.desc.Kind.Type)
	go func() {
		defer t.cc.release()
		t.run()
	}()
}

// Pause holds back further reads, writes and delivery until Resume
func (t *Task) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning {
		return
	}
	t.state = TaskPaused
	t.gate = make(chan struct{})
}

// Resume continues a paused task
func (t *Task) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskPaused {
		return
	}
	t.state = TaskRunning
	close(t.gate)
	t.gate = nil
}

// Cancel aborts the task. Nothing is delivered to its callbacks afterwards;
// Done is closed with a Cancelled result.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.state.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.state = TaskCancelled
	t.result = Result{Err: internal.NewCancelledError()}
	if t.gate != nil {
		close(t.gate)
		t.gate = nil
	}
	t.mu.Unlock()

	t.cancel()
	t.cc.logger.Debug("task %s: cancelled", t.id)

	if !t.lane.Post(t.closeChannels) {
		t.closeChannels()
	}
}

// Done is closed once the task reaches a terminal state
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the terminal result, or the zero Result before Done is closed
func (t *Task) Result() Result {
	select {
	case <-t.done:
	default:
		return Result{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Wait blocks until the task finishes or ctx is done. It does not cancel
// the task when ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Progress delivers progress fractions. Values are dropped rather than
// blocking when the reader falls behind. It is closed after the terminal event.
func (t *Task) Progress() <-chan float64 {
	return t.progress
}

func (t *Task) run() {
	resp, err := t.send()
	if err != nil {
		t.fail(internal.NewTransportError(err).WithURL(t.desc.URL.String()))
		return
	}
	defer resp.Body.Close()

	body, err := t.receive(resp)
	if err != nil {
		t.fail(internal.NewTransportError(err).WithURL(t.desc.URL.String()))
		return
	}

	result := t.interpret(resp.StatusCode, body)
	if err := t.waitIfPaused(); err != nil {
		t.Cancel()
		return
	}
	t.finish(result)
}

func (t *Task) send() (*http.Response, error) {
	var body io.Reader
	if len(t.desc.Body) > 0 {
		body = t.newSendCounter()
	}

	req, err := http.NewRequestWithContext(t.ctx, t.desc.Method, t.desc.URL.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = int64(len(t.desc.Body))
		// redirects replay the body; delivery drops fractions that go backwards
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(t.newSendCounter()), nil
		}
	}
	for key, value := range t.desc.Header {
		req.Header.Set(key, value)
	}

	return t.cc.http.Do(req)
}

// receive reads the body in chunks, honoring pause and the rate limit
func (t *Task) receive(resp *http.Response) ([]byte, error) {
	expected := resp.ContentLength
	reportReceive := t.desc.Kind.Type != internal.TaskUpload && expected > 0

	var buf bytes.Buffer
	if expected > 0 && expected <= maxPrealloc {
		buf.Grow(int(expected))
	}
	chunk := make([]byte, chunkSize)

	for {
		if err := t.waitIfPaused(); err != nil {
			return nil, err
		}

		n, err := resp.Body.Read(chunk)
		if n > 0 {
			if t.cc.limiter != nil {
				if werr := t.cc.limiter.Wait(t.ctx, n); werr != nil {
					return nil, werr
				}
			}
			buf.Write(chunk[:n])
			if reportReceive {
				t.emitProgress(float64(buf.Len()) / float64(expected))
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// interpret turns a finished exchange into a result according to the task kind
func (t *Task) interpret(status int, body []byte) Result {
	result := Result{StatusCode: status}

	if t.desc.Kind.IsDownload() {
		if status >= http.StatusBadRequest {
			result.Err = internal.NewHTTPStatusError(status, http.StatusText(status)).WithURL(t.desc.URL.String())
			return result
		}
		result.Bytes = body
		if len(body) == 0 {
			return result
		}
		result.Image = decodeImage(body)
		if result.Image == nil {
			t.cc.logger.Debug("task %s: %d bytes did not decode as an image", t.id, len(body))
		}
		if t.desc.Kind.Type == internal.TaskDownloadForResource && result.Image != nil {
			result.Thumbnail = Thumbnail(result.Image, t.cc.config.ThumbnailSize)
		}
		return result
	}

	if len(body) == 0 {
		if status >= http.StatusBadRequest {
			result.Err = internal.NewApplicationError(status, "")
		}
		return result
	}
	if err := checkEnvelope(status, body); err != nil {
		result.Err = err
		return result
	}
	result.Payload = json.RawMessage(body)
	return result
}

// waitIfPaused blocks while the task is paused
func (t *Task) waitIfPaused() error {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-t.ctx.Done():
		}
	}
	return t.ctx.Err()
}

func (t *Task) fail(err error) {
	if t.ctx.Err() != nil {
		// cancelled by the caller or by ClientContext.Close
		t.Cancel()
		return
	}
	t.cc.logger.Debug("task %s: %v", t.id, err)
	t.finish(Result{Err: err})
}

func (t *Task) finish(result Result) {
	if !t.lane.Post(func() { t.complete(result) }) {
		t.Cancel()
	}
}

// emitProgress may be called from any goroutine
func (t *Task) emitProgress(fraction float64) {
	fraction = math.Max(0, math.Min(1, fraction))
	t.lane.Post(func() { t.deliverProgress(fraction) })
}

func (t *Task) deliverProgress(fraction float64) {
	t.mu.Lock()
	state := t.state
	fn := t.onProgress
	t.mu.Unlock()

	if state.IsTerminal() || fraction <= t.lastFraction {
		return
	}
	t.lastFraction = fraction

	select {
	case t.progress <- fraction:
	default:
	}
	if fn != nil {
		fn(fraction)
	}
}

func (t *Task) complete(result Result) {
	t.mu.Lock()
	if t.state.IsTerminal() {
		t.mu.Unlock()
		return
	}
	if result.Err != nil {
		t.state = TaskFailed
	} else {
		t.state = TaskSucceeded
	}
	t.result = result
	fn := t.onComplete
	t.mu.Unlock()

	t.cancel()
	t.cc.logger.Debug("task %s: %s (status %d)", t.id, t.State(), result.StatusCode)

	if fn != nil {
		fn(result)
	}
	t.closeChannels()
}

// closeChannels runs once, on the lane, after the terminal event
func (t *Task) closeChannels() {
	close(t.progress)
	close(t.done)
}

func (t *Task) newSendCounter() *sendCounter {
	return &sendCounter{task: t, src: bytes.NewReader(t.desc.Body), total: int64(len(t.desc.Body))}
}

// sendCounter reports upload progress as the transport reads the body
type sendCounter struct {
	task  *Task
	src   io.Reader
	total int64
	sent  int64
}

func (s *sendCounter) Read(p []byte) (int, error) {
	if err := s.task.waitIfPaused(); err != nil {
		return 0, err
	}
	if len(p) > chunkSize {
		p = p[:chunkSize]
	}

	n, err := s.src.Read(p)
	if n > 0 {
		if limiter := s.task.cc.limiter; limiter != nil {
			if werr := limiter.Wait(s.task.ctx, n); werr != nil {
				return 0, werr
			}
		}
		s.sent += int64(n)
		if s.task.desc.Kind.Type == internal.TaskUpload {
			s.task.emitProgress(float64(s.sent) / float64(s.total))
		}
	}
	return n, err
}
