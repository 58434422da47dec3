package imgur

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imgurfetch/internal"
)

// apiHandler routes API calls and checks the bearer header on each one
func apiHandler(t *testing.T, routes map[string]http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("%s %s: Authorization = %q", r.Method, r.URL.Path, got)
		}
		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.Error(w, `{"success":false,"status":404,"data":{"error":"no route"}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	})
}

func TestClient_ListImages(t *testing.T) {
	server := newTestServer(t, apiHandler(t, map[string]http.HandlerFunc{
		"GET /3/account/tester/images": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") != "1" {
				t.Errorf("page = %q", r.URL.Query().Get("page"))
			}
			w.Write([]byte(`{"success":true,"status":200,"data":[
				{"id":"aaaaa","link":"https://i.imgur.com/aaaaa.png","title":"first","datetime":1700000000,"size":2048},
				{"id":"bbbbb","link":"https://i.imgur.com/bbbbb.jpg","title":null,"views":"many"}
			]}`))
		},
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	records, err := NewClient(cc).ListImages(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "aaaaa" || records[0].Title != "first" || records[0].Size != 2048 {
		t.Errorf("first record = %+v", records[0])
	}
	if records[0].Datetime == nil || !records[0].Datetime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Datetime = %v", records[0].Datetime)
	}
	if records[1].Title != "" || records[1].Views != 0 || records[1].State != internal.StateNew {
		t.Errorf("lenient record = %+v", records[1])
	}
}

func TestClient_ImageCount(t *testing.T) {
	server := newTestServer(t, apiHandler(t, map[string]http.HandlerFunc{
		"GET /3/account/tester/images/count": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"status":200,"data":37}`))
		},
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	count, err := NewClient(cc).ImageCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 37 {
		t.Errorf("ImageCount() = %d, want 37", count)
	}
}

func TestClient_Upload(t *testing.T) {
	raw := []byte("fake image bytes")
	server := newTestServer(t, apiHandler(t, map[string]http.HandlerFunc{
		"POST /3/image": func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var payload internal.UploadPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if payload.Title != "holiday" || payload.Type != "base64" {
				t.Errorf("payload = %+v", payload)
			}
			w.Write([]byte(`{"success":true,"status":200,"data":{"id":"ccccc","link":"https://i.imgur.com/ccccc.png","deletehash":"secret"}}`))
		},
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	var last float64
	result, err := NewClient(cc).Upload(context.Background(),
		internal.NewUploadPayload(raw, "holiday", "beach.png", ""),
		func(f float64) { last = f })
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.ID != "ccccc" || result.Link != "https://i.imgur.com/ccccc.png" || result.DeleteHash != "secret" {
		t.Errorf("Upload() = %+v", result)
	}
	if last != 1 {
		t.Errorf("final upload progress = %v, want 1", last)
	}
}

func TestClient_Delete(t *testing.T) {
	deleted := make(chan string, 1)
	server := newTestServer(t, apiHandler(t, map[string]http.HandlerFunc{
		"DELETE /3/image/ddddd": func(w http.ResponseWriter, r *http.Request) {
			deleted <- "ddddd"
			w.Write([]byte(`{"success":true,"status":200,"data":true}`))
		},
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))
	client := NewClient(cc)

	if err := client.Delete(context.Background(), "ddddd"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := <-deleted; got != "ddddd" {
		t.Errorf("deleted %q", got)
	}

	err := client.Delete(context.Background(), "zzzzz")
	if !internal.IsApplicationError(err) || !strings.Contains(err.Error(), "no route") {
		t.Errorf("Delete(unknown) error = %v", err)
	}
}

func TestClient_ContextCancelsCall(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewClient(cc).ImageCount(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("ImageCount() error = %v, want deadline exceeded", err)
	}
}

func TestClient_Unauthenticated(t *testing.T) {
	cc := newTestContext(t, "http://127.0.0.1:1")

	if _, err := NewClient(cc).ListImages(context.Background(), 0); !internal.IsResolutionError(err) {
		t.Errorf("ListImages() error = %v, want resolution error", err)
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	cc := newTestContext(t, "https://api.example.test")

	raw, err := NewClient(cc).AuthorizationURL()
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/oauth2/authorize" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("client_id") != "test-client" || u.Query().Get("response_type") != "token" {
		t.Errorf("query = %v", u.Query())
	}
}

func TestClient_DownloadImage(t *testing.T) {
	img := testPNG(t, 40, 30)
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Client-ID test-client" {
			t.Errorf("Authorization = %q", got)
		}
		serveChunked(w, r, "image/png", img)
	}))
	cc := newTestContext(t, server.URL)

	results := make(chan Result, 1)
	task, err := NewClient(cc).DownloadImage(
		internal.ResourceRecord{ID: "eeeee", Link: server.URL + "/eeeee.png"},
		func(r Result) { results <- r }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Kind().Type != internal.TaskDownloadStandalone || task.Kind().ResourceID != "eeeee" {
		t.Errorf("Kind() = %+v", task.Kind())
	}

	result := <-results
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if string(result.Bytes) != string(img) {
		t.Error("Bytes should hold the raw body")
	}
	if b := result.Image.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("image = %dx%d", b.Dx(), b.Dy())
	}

	_, err = NewClient(cc).DownloadImage(internal.ResourceRecord{ID: "x"}, nil, nil)
	if !internal.IsResolutionError(err) {
		t.Errorf("missing link error = %v", err)
	}
}

func TestClient_DrainsLargeBody(t *testing.T) {
	server := newTestServer(t, apiHandler(t, map[string]http.HandlerFunc{
		"GET /3/account/tester/images": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"success":true,"status":200,"data":[`)
			for i := 0; i < 500; i++ {
				if i > 0 {
					io.WriteString(w, ",")
				}
				io.WriteString(w, `{"id":"fffff","description":"`+strings.Repeat("d", 200)+`"}`)
			}
			io.WriteString(w, `]}`)
		},
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	records, err := NewClient(cc).ListImages(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 500 {
		t.Errorf("got %d records, want 500", len(records))
	}
}

func TestClient_UploadFollowsRedirect(t *testing.T) {
	var received atomic.Int64
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/3/image":
			io.Copy(io.Discard, r.Body)
			http.Redirect(w, r, "/3/image/moved", http.StatusTemporaryRedirect)
		case "/3/image/moved":
			var payload internal.UploadPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode replayed body: %v", err)
			}
			received.Add(int64(len(payload.Image)))
			w.Write([]byte(`{"success":true,"status":200,"data":{"id":"eeeee","link":"https://i.imgur.com/eeeee.png"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	cc := newTestContext(t, server.URL, WithCredentials(testCreds))

	payload := internal.NewUploadPayload([]byte(strings.Repeat("x", 4096)), "moved", "x.png", "")
	var (
		mu       sync.Mutex
		progress []float64
	)
	result, err := NewClient(cc).Upload(context.Background(), payload, func(f float64) {
		mu.Lock()
		progress = append(progress, f)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.ID != "eeeee" {
		t.Errorf("Upload() = %+v", result)
	}
	if received.Load() != int64(len(payload.Image)) {
		t.Errorf("redirect target got %d image bytes, want %d", received.Load(), len(payload.Image))
	}

	mu.Lock()
	defer mu.Unlock()
	assertMonotonic(t, progress)
}
