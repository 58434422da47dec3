package imgur

import (
	"encoding/json"
	"net/http"
	"testing"

	"imgurfetch/internal"
)

func newTestResolver() *Resolver {
	cfg := internal.DefaultConfig()
	cfg.ClientID = "cid"
	return NewResolver(cfg)
}

func TestResolver_Shapes(t *testing.T) {
	r := newTestResolver()
	payload := internal.NewUploadPayload([]byte("img"), "t", "n", "d")

	tests := []struct {
		name       string
		op         Operation
		wantURL    string
		wantMethod string
		wantAuth   string
		wantType   internal.TaskType
		wantBody   bool
	}{
		{
			name:       "authorize",
			op:         Authorize{},
			wantURL:    "https://api.imgur.com/oauth2/authorize?client_id=cid&response_type=token",
			wantMethod: http.MethodGet,
			wantType:   internal.TaskPlain,
		},
		{
			name:       "list_images",
			op:         ListImages{Page: 2},
			wantURL:    "https://api.imgur.com/3/account/tester/images?page=2&perPage=100",
			wantMethod: http.MethodGet,
			wantAuth:   "Bearer test-token",
			wantType:   internal.TaskPlain,
		},
		{
			name:       "image_count",
			op:         ImageCount{},
			wantURL:    "https://api.imgur.com/3/account/tester/images/count",
			wantMethod: http.MethodGet,
			wantAuth:   "Bearer test-token",
			wantType:   internal.TaskPlain,
		},
		{
			name:       "upload",
			op:         Upload{Payload: payload},
			wantURL:    "https://api.imgur.com/3/image",
			wantMethod: http.MethodPost,
			wantAuth:   "Bearer test-token",
			wantType:   internal.TaskUpload,
			wantBody:   true,
		},
		{
			name:       "delete",
			op:         Delete{ResourceID: "abc123"},
			wantURL:    "https://api.imgur.com/3/image/abc123",
			wantMethod: http.MethodDelete,
			wantAuth:   "Bearer test-token",
			wantType:   internal.TaskPlain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := r.Resolve(tt.op, testCreds)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := desc.URL.String(); got != tt.wantURL {
				t.Errorf("URL = %q, want %q", got, tt.wantURL)
			}
			if desc.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", desc.Method, tt.wantMethod)
			}
			if got := desc.Header["Authorization"]; got != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", got, tt.wantAuth)
			}
			if desc.Kind.Type != tt.wantType {
				t.Errorf("Kind = %v, want %v", desc.Kind.Type, tt.wantType)
			}
			if (len(desc.Body) > 0) != tt.wantBody {
				t.Errorf("body present = %v, want %v", len(desc.Body) > 0, tt.wantBody)
			}
		})
	}
}

func TestResolver_UploadBody(t *testing.T) {
	r := newTestResolver()
	payload := internal.NewUploadPayload([]byte{1, 2, 3}, "title", "name.png", "description")

	desc, err := r.Resolve(Upload{Payload: payload}, testCreds)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Header["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", desc.Header["Content-Type"])
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(desc.Body, &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 5 {
		t.Errorf("body has %d fields, want exactly 5: %v", len(fields), fields)
	}

	var decoded internal.UploadPayload
	if err := json.Unmarshal(desc.Body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != payload {
		t.Errorf("round trip = %+v, want %+v", decoded, payload)
	}
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		baseURL  string
		op       Operation
		creds    internal.Credentials
		wantType internal.ErrorType
	}{
		{"list_unauthenticated", "cid", "", ListImages{Page: 0}, internal.Credentials{}, internal.ErrMissingCredentials},
		{"count_unauthenticated", "cid", "", ImageCount{}, internal.Credentials{}, internal.ErrMissingCredentials},
		{"upload_unauthenticated", "cid", "", Upload{}, internal.Credentials{}, internal.ErrMissingCredentials},
		{"delete_unauthenticated", "cid", "", Delete{ResourceID: "x"}, internal.Credentials{}, internal.ErrMissingCredentials},
		{"authorize_without_client_id", "", "", Authorize{}, internal.Credentials{}, internal.ErrMissingClientID},
		{"delete_empty_id", "cid", "", Delete{}, testCreds, internal.ErrMalformedURL},
		{"relative_base_url", "cid", "not a url", ImageCount{}, testCreds, internal.ErrMalformedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := internal.DefaultConfig()
			cfg.ClientID = tt.clientID
			if tt.baseURL != "" {
				cfg.BaseURL = tt.baseURL
			}
			desc, err := NewResolver(cfg).Resolve(tt.op, tt.creds)
			if err == nil {
				t.Fatalf("Resolve() = %v, want error", desc.URL)
			}
			apiErr, ok := err.(*internal.APIError)
			if !ok {
				t.Fatalf("error type = %T, want *internal.APIError", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("error type = %v, want %v", apiErr.Type, tt.wantType)
			}
			if !internal.IsResolutionError(err) {
				t.Error("expected a resolution error")
			}
		})
	}
}

func TestResolver_UsernameFallbackAndEscaping(t *testing.T) {
	r := newTestResolver()

	desc, err := r.Resolve(ImageCount{}, internal.Credentials{AuthToken: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	if got := desc.URL.String(); got != "https://api.imgur.com/3/account/me/images/count" {
		t.Errorf("URL = %q", got)
	}

	desc, err = r.Resolve(Delete{ResourceID: "a/b"}, testCreds)
	if err != nil {
		t.Fatal(err)
	}
	if got := desc.URL.String(); got != "https://api.imgur.com/3/image/a%2Fb" {
		t.Errorf("URL = %q, want escaped segment", got)
	}
}

func TestResolver_ImageDescriptor(t *testing.T) {
	r := newTestResolver()

	desc, err := r.ImageDescriptor(
		internal.ResourceRecord{ID: "abc", Link: "https://i.imgur.com/abc.png"},
		internal.TaskKind{Type: internal.TaskDownloadForResource},
	)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Header["Authorization"] != "Client-ID cid" {
		t.Errorf("Authorization = %q", desc.Header["Authorization"])
	}
	if desc.Kind.ResourceID != "abc" {
		t.Errorf("ResourceID = %q, want abc", desc.Kind.ResourceID)
	}
	if desc.Method != http.MethodGet || desc.Body != nil {
		t.Errorf("unexpected method/body: %s %v", desc.Method, desc.Body)
	}

	for _, link := range []string{"", "relative/path.png", "::"} {
		_, err := r.ImageDescriptor(internal.ResourceRecord{ID: "abc", Link: link}, internal.TaskKind{Type: internal.TaskDownloadStandalone})
		if !internal.IsResolutionError(err) {
			t.Errorf("link %q: error = %v, want resolution error", link, err)
		}
	}
}
