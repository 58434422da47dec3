package internal

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"net/url"
	"strconv"
	"time"
)

// Credentials holds the OAuth state of the signed-in account
type Credentials struct {
	AuthToken    string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	AccountID    string    `yaml:"account_id"`
	Username     string    `yaml:"account_username"`
	ExpiresIn    string    `yaml:"expires_in"`
	ObtainedAt   time.Time `yaml:"obtained_at,omitempty"`
}

// IsAuthenticated reports whether any credential field is populated
func (c Credentials) IsAuthenticated() bool {
	return c.AuthToken != "" ||
		c.RefreshToken != "" ||
		c.AccountID != "" ||
		c.Username != "" ||
		c.ExpiresIn != ""
}

// ExpiresAt returns when the access token expires. The zero time means unknown.
func (c Credentials) ExpiresAt() time.Time {
	seconds, err := strconv.ParseInt(c.ExpiresIn, 10, 64)
	if err != nil || c.ObtainedAt.IsZero() {
		return time.Time{}
	}
	return c.ObtainedAt.Add(time.Duration(seconds) * time.Second)
}

// BearerHeader returns the Authorization header value for authenticated calls
func (c Credentials) BearerHeader() string {
	return "Bearer " + c.AuthToken
}

// TaskType tags what a transport task does with its response bytes
type TaskType int

const (
	TaskPlain TaskType = iota
	TaskDownloadForResource
	TaskDownloadStandalone
	TaskUpload
)

// String returns the string representation of TaskType
func (t TaskType) String() string {
	switch t {
	case TaskPlain:
		return "plain"
	case TaskDownloadForResource:
		return "downloadForResource"
	case TaskDownloadStandalone:
		return "downloadStandalone"
	case TaskUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// TaskKind is the task type plus the resource it targets, if any
type TaskKind struct {
	Type       TaskType
	ResourceID string
}

// IsDownload reports whether the response body is image data
func (k TaskKind) IsDownload() bool {
	return k.Type == TaskDownloadForResource || k.Type == TaskDownloadStandalone
}

// RequestDescriptor is a resolved, ready-to-send request
type RequestDescriptor struct {
	URL    *url.URL
	Method string
	Header map[string]string
	Body   []byte
	Kind   TaskKind
}

// DownloadState is the lifecycle of a resource's thumbnail download
type DownloadState string

const (
	StateNew         DownloadState = "new"
	StateDownloading DownloadState = "downloading"
	StateDownloaded  DownloadState = "downloaded"
	StateFailed      DownloadState = "failed"
)

// IsTerminal reports whether no further progress applies
func (s DownloadState) IsTerminal() bool {
	return s == StateDownloaded || s == StateFailed
}

// ResourceRecord describes one remote image and its local download state
type ResourceRecord struct {
	ID          string
	Link        string
	Name        string
	Title       string
	Description string
	Datetime    *time.Time
	Type        string
	Favorite    bool
	Width       int
	Height      int
	Size        int64
	Views       int
	DeleteHash  string

	State           DownloadState
	PercentComplete float64
	Thumbnail       image.Image
}

// UnmarshalJSON decodes an image object leniently: a missing or mistyped
// field leaves the zero value instead of failing the whole record.
func (r *ResourceRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	str := func(key string) string {
		var s string
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}
	num := func(key string) int64 {
		var n int64
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, &n)
		}
		return n
	}

	*r = ResourceRecord{
		ID:          str("id"),
		Link:        str("link"),
		Name:        str("name"),
		Title:       str("title"),
		Description: str("description"),
		Type:        str("type"),
		Width:       int(num("width")),
		Height:      int(num("height")),
		Size:        num("size"),
		Views:       int(num("views")),
		DeleteHash:  str("deletehash"),
		State:       StateNew,
	}
	if raw, ok := fields["favorite"]; ok {
		_ = json.Unmarshal(raw, &r.Favorite)
	}
	if raw, ok := fields["datetime"]; ok {
		var ts int64
		if err := json.Unmarshal(raw, &ts); err == nil {
			t := time.Unix(ts, 0)
			r.Datetime = &t
		}
	}
	return nil
}

// DisplayName returns the title, then the name, then the id
func (r ResourceRecord) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// UploadPayload is the JSON body of an image upload
type UploadPayload struct {
	Image       string `json:"image"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// NewUploadPayload base64-encodes raw image bytes into an upload payload
func NewUploadPayload(raw []byte, title, name, description string) UploadPayload {
	return UploadPayload{
		Image:       base64.StdEncoding.EncodeToString(raw),
		Title:       title,
		Name:        name,
		Description: description,
		Type:        "base64",
	}
}

// UnmarshalJSON defaults the type marker to base64 when absent
func (p *UploadPayload) UnmarshalJSON(data []byte) error {
	type plain UploadPayload
	decoded := plain{Type: "base64"}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = UploadPayload(decoded)
	return nil
}

// UploadResult is the subset of the upload response callers need
type UploadResult struct {
	ID         string `json:"id"`
	Link       string `json:"link"`
	DeleteHash string `json:"deletehash"`
}
