package internal

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestCredentials_IsAuthenticated(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"empty", Credentials{}, false},
		{"token_only", Credentials{AuthToken: "t"}, true},
		{"username_only", Credentials{Username: "someone"}, true},
		{"expiry_only", Credentials{ExpiresIn: "3600"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.IsAuthenticated(); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredentials_ExpiresAt(t *testing.T) {
	obtained := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Credentials{ExpiresIn: "3600", ObtainedAt: obtained}

	if got := c.ExpiresAt(); !got.Equal(obtained.Add(time.Hour)) {
		t.Errorf("ExpiresAt() = %v", got)
	}

	c.ExpiresIn = "never"
	if got := c.ExpiresAt(); !got.IsZero() {
		t.Errorf("ExpiresAt() with bad expiry = %v, want zero", got)
	}
}

func TestResourceRecord_UnmarshalJSON(t *testing.T) {
	data := []byte(`{
		"id": "abc123",
		"link": "https://i.imgur.com/abc123.png",
		"title": null,
		"name": "cat",
		"datetime": 1700000000,
		"type": "image/png",
		"favorite": true,
		"width": 640,
		"height": 480,
		"size": 2048,
		"views": "many",
		"deletehash": "dh"
	}`)

	var r ResourceRecord
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if r.ID != "abc123" || r.Link != "https://i.imgur.com/abc123.png" {
		t.Errorf("unexpected id/link: %q %q", r.ID, r.Link)
	}
	if r.Title != "" {
		t.Errorf("null title should decode as empty, got %q", r.Title)
	}
	if r.Datetime == nil || r.Datetime.Unix() != 1700000000 {
		t.Errorf("Datetime = %v", r.Datetime)
	}
	if !r.Favorite {
		t.Error("Favorite should be true")
	}
	if r.Width != 640 || r.Height != 480 || r.Size != 2048 {
		t.Errorf("dimensions = %dx%d size %d", r.Width, r.Height, r.Size)
	}
	if r.Views != 0 {
		t.Errorf("mistyped views should decode as zero, got %d", r.Views)
	}
	if r.State != StateNew {
		t.Errorf("State = %q, want %q", r.State, StateNew)
	}
	if r.DisplayName() != "cat" {
		t.Errorf("DisplayName() = %q, want cat", r.DisplayName())
	}
}

func TestResourceRecord_MissingDatetime(t *testing.T) {
	var r ResourceRecord
	if err := json.Unmarshal([]byte(`{"id":"x"}`), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if r.Datetime != nil {
		t.Errorf("Datetime = %v, want nil", r.Datetime)
	}
	if r.DisplayName() != "x" {
		t.Errorf("DisplayName() = %q, want x", r.DisplayName())
	}
}

func TestUploadPayload(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	p := NewUploadPayload(raw, "title", "name.png", "desc")

	if p.Type != "base64" {
		t.Errorf("Type = %q, want base64", p.Type)
	}
	decoded, err := base64.StdEncoding.DecodeString(p.Image)
	if err != nil || string(decoded) != string(raw) {
		t.Errorf("Image does not decode back to the raw bytes: %v", err)
	}

	var q UploadPayload
	if err := json.Unmarshal([]byte(`{"image":"aGk=","title":"t"}`), &q); err != nil {
		t.Fatal(err)
	}
	if q.Type != "base64" {
		t.Errorf("missing type should default to base64, got %q", q.Type)
	}
}

func TestDownloadState_IsTerminal(t *testing.T) {
	tests := []struct {
		state DownloadState
		want  bool
	}{
		{StateNew, false},
		{StateDownloading, false},
		{StateDownloaded, true},
		{StateFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
