package imgur

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"imgurfetch/internal"
)

// Operation is one of the fixed set of API calls the client can make
type Operation interface {
	// Name identifies the operation in logs and errors
	Name() string
	operation()
}

// Authorize builds the OAuth authorization page URL
type Authorize struct{}

// ListImages fetches one page of the account's images
type ListImages struct {
	Page int
}

// ImageCount fetches the number of images on the account
type ImageCount struct{}

// Upload posts a new image to the account
type Upload struct {
	Payload internal.UploadPayload
}

// Delete removes an image from the account
type Delete struct {
	ResourceID string
}

func (Authorize) Name() string  { return "Authorize" }
func (ListImages) Name() string { return "ListImages" }
func (ImageCount) Name() string { return "ImageCount" }
func (Upload) Name() string     { return "Upload" }
func (Delete) Name() string     { return "Delete" }

func (Authorize) operation()  {}
func (ListImages) operation() {}
func (ImageCount) operation() {}
func (Upload) operation()     {}
func (Delete) operation()     {}

// Resolver turns operations into request descriptors. It has no side effects.
type Resolver struct {
	baseURL  string
	version  string
	clientID string
	perPage  int
}

// NewResolver creates a resolver for the configured API
func NewResolver(cfg *internal.Config) *Resolver {
	base := cfg.BaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	perPage := cfg.ImagesPerPage
	if perPage < 1 {
		perPage = 100
	}
	return &Resolver{
		baseURL:  base,
		version:  cfg.APIVersion,
		clientID: cfg.ClientID,
		perPage:  perPage,
	}
}

// Resolve builds the request for op. Authenticated operations fail with a
// MissingCredentials error when creds is empty.
func (r *Resolver) Resolve(op Operation, creds internal.Credentials) (*internal.RequestDescriptor, error) {
	switch op := op.(type) {
	case Authorize:
		if r.clientID == "" {
			return nil, internal.NewMissingClientIDError()
		}
		query := url.Values{}
		query.Set("client_id", r.clientID)
		query.Set("response_type", "token")
		u, err := r.endpoint("oauth2/authorize", query)
		if err != nil {
			return nil, err
		}
		return r.descriptor(u, http.MethodGet, nil, nil, internal.TaskPlain), nil

	case ListImages:
		if !creds.IsAuthenticated() {
			return nil, internal.NewMissingCredentialsError(op.Name())
		}
		query := url.Values{}
		query.Set("perPage", strconv.Itoa(r.perPage))
		query.Set("page", strconv.Itoa(op.Page))
		u, err := r.endpoint(r.version+"/account/"+accountSegment(creds)+"/images", query)
		if err != nil {
			return nil, err
		}
		return r.descriptor(u, http.MethodGet, bearer(creds), nil, internal.TaskPlain), nil

	case ImageCount:
		if !creds.IsAuthenticated() {
			return nil, internal.NewMissingCredentialsError(op.Name())
		}
		u, err := r.endpoint(r.version+"/account/"+accountSegment(creds)+"/images/count", nil)
		if err != nil {
			return nil, err
		}
		return r.descriptor(u, http.MethodGet, bearer(creds), nil, internal.TaskPlain), nil

	case Upload:
		if !creds.IsAuthenticated() {
			return nil, internal.NewMissingCredentialsError(op.Name())
		}
		body, err := json.Marshal(op.Payload)
		if err != nil {
			return nil, internal.NewDecodingError("upload payload", err)
		}
		u, err := r.endpoint(r.version+"/image", nil)
		if err != nil {
			return nil, err
		}
		header := bearer(creds)
		header["Content-Type"] = "application/json"
		return r.descriptor(u, http.MethodPost, header, body, internal.TaskUpload), nil

	case Delete:
		if !creds.IsAuthenticated() {
			return nil, internal.NewMissingCredentialsError(op.Name())
		}
		if op.ResourceID == "" {
			return nil, internal.NewMalformedURLError(r.baseURL+r.version+"/image/", nil).
				WithContext("reason", "empty resource id")
		}
		u, err := r.endpoint(r.version+"/image/"+url.PathEscape(op.ResourceID), nil)
		if err != nil {
			return nil, err
		}
		return r.descriptor(u, http.MethodDelete, bearer(creds), nil, internal.TaskPlain), nil

	default:
		return nil, internal.NewMalformedURLError("", nil).WithContext("reason", "unsupported operation")
	}
}

// ImageDescriptor builds the GET for a record's image bytes. kind must be one
// of the download task types.
func (r *Resolver) ImageDescriptor(record internal.ResourceRecord, kind internal.TaskKind) (*internal.RequestDescriptor, error) {
	if record.Link == "" {
		return nil, internal.NewMalformedURLError("", nil).WithContext("resource_id", record.ID)
	}
	u, err := url.Parse(record.Link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, internal.NewMalformedURLError(record.Link, err).WithContext("resource_id", record.ID)
	}

	header := map[string]string{}
	if r.clientID != "" {
		header["Authorization"] = "Client-ID " + r.clientID
	}
	if kind.ResourceID == "" {
		kind.ResourceID = record.ID
	}
	return &internal.RequestDescriptor{
		URL:    u,
		Method: http.MethodGet,
		Header: header,
		Kind:   kind,
	}, nil
}

func (r *Resolver) endpoint(path string, query url.Values) (*url.URL, error) {
	raw := r.baseURL + path
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, internal.NewMalformedURLError(raw, err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

func (r *Resolver) descriptor(u *url.URL, method string, header map[string]string, body []byte, taskType internal.TaskType) *internal.RequestDescriptor {
	if header == nil {
		header = map[string]string{}
	}
	if method != http.MethodPost && method != http.MethodPut {
		body = nil
	}
	return &internal.RequestDescriptor{
		URL:    u,
		Method: method,
		Header: header,
		Body:   body,
		Kind:   internal.TaskKind{Type: taskType},
	}
}

func bearer(creds internal.Credentials) map[string]string {
	return map[string]string{"Authorization": creds.BearerHeader()}
}

// accountSegment names the account in a path; "me" is the signed-in user
func accountSegment(creds internal.Credentials) string {
	if creds.Username == "" {
		return "me"
	}
	return url.PathEscape(creds.Username)
}
