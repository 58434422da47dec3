package imgur

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"imgurfetch/internal"
)

var testCreds = internal.Credentials{
	AuthToken:    "test-token",
	RefreshToken: "test-refresh",
	AccountID:    "42",
	Username:     "tester",
	ExpiresIn:    "3600",
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newTestContext must be called after newTestServer so it is closed first
func newTestContext(t *testing.T, baseURL string, opts ...Option) *ClientContext {
	t.Helper()

	cfg := internal.DefaultConfig()
	cfg.BaseURL = baseURL + "/"
	cfg.ClientID = "test-client"
	cfg.RequestTimeout = 5 * time.Second
	cfg.CredentialsFile = filepath.Join(t.TempDir(), "credentials.yaml")

	all := append([]Option{
		WithLogger(internal.NewSecureLogger(io.Discard, internal.LogLevelError, false, true)),
	}, opts...)

	cc, err := NewClientContext(cfg, all...)
	if err != nil {
		t.Fatalf("NewClientContext() error = %v", err)
	}
	t.Cleanup(func() { cc.Close() })
	return cc
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// serveChunked writes body with a Content-Length in small flushed pieces
func serveChunked(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	const piece = 1024
	for i := 0; i < len(body); i += piece {
		end := min(i+piece, len(body))
		if _, err := w.Write(body[i:end]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if r.Context().Err() != nil {
			return
		}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

type completion struct {
	record internal.ResourceRecord
	err    error
}

// recordingObserver implements internal.ThumbnailObserver
type recordingObserver struct {
	mu          sync.Mutex
	progress    []float64
	completions []completion
	done        chan struct{}
	once        sync.Once
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{done: make(chan struct{})}
}

func (o *recordingObserver) OnThumbnailProgress(resourceID string, fraction float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, fraction)
}

func (o *recordingObserver) OnThumbnailComplete(record internal.ResourceRecord, err error) {
	o.mu.Lock()
	o.completions = append(o.completions, completion{record: record, err: err})
	o.mu.Unlock()
	o.once.Do(func() { close(o.done) })
}

func (o *recordingObserver) snapshot() ([]float64, []completion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.progress...), append([]completion(nil), o.completions...)
}

func assertMonotonic(t *testing.T, values []float64) {
	t.Helper()
	last := -1.0
	for i, v := range values {
		if v < 0 || v > 1 {
			t.Errorf("progress[%d] = %v outside [0,1]", i, v)
		}
		if v < last {
			t.Errorf("progress[%d] = %v decreased from %v", i, v, last)
		}
		last = v
	}
}
