package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"imgurfetch/internal"
)

// callback parameter names returned by the authorization redirect
const (
	paramAccessToken  = "access_token"
	paramRefreshToken = "refresh_token"
	paramAccountID    = "account_id"
	paramUsername     = "account_username"
	paramExpiresIn    = "expires_in"
	paramError        = "error"
)

// ParseCallback extracts credentials from an authorization redirect URL.
// Parameters are read from the query and then the fragment, with the
// fragment taking precedence. Unknown parameters are ignored.
func ParseCallback(rawURL string, now time.Time) (internal.Credentials, error) {
	var creds internal.Credentials

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return creds, internal.NewValidationErrorWithValue("callback_url", "not a valid URL", rawURL)
	}

	params := parsed.Query()
	if parsed.Fragment != "" {
		fragment, err := url.ParseQuery(parsed.Fragment)
		if err != nil {
			return creds, internal.NewValidationError("callback_url", "fragment is not a parameter list")
		}
		for key, values := range fragment {
			params[key] = values
		}
	}

	if reason := params.Get(paramError); reason != "" {
		return creds, internal.NewValidationError("callback_url", fmt.Sprintf("authorization was refused: %s", reason)).
			WithSuggestion("Run 'imgurfetch login' again and approve access")
	}

	creds.AuthToken = params.Get(paramAccessToken)
	creds.RefreshToken = params.Get(paramRefreshToken)
	creds.AccountID = params.Get(paramAccountID)
	creds.Username = params.Get(paramUsername)
	creds.ExpiresIn = params.Get(paramExpiresIn)

	if !creds.IsAuthenticated() {
		return creds, internal.NewValidationError("callback_url", "no credentials found in URL").
			WithSuggestion("Paste the full address the browser was redirected to, including the part after '#'")
	}
	creds.ObtainedAt = now
	return creds, nil
}

var imageIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{5,10}$`)

// ImageIDFromURL accepts a bare image id or an imgur page or direct link and
// returns the image id
func ImageIDFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if imageIDPattern.MatchString(raw) {
		return raw, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", internal.NewValidationErrorWithValue("image", "not an image id or imgur URL", raw)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host != "imgur.com" && host != "i.imgur.com" && host != "m.imgur.com" {
		return "", internal.NewValidationErrorWithValue("image", "not an imgur URL", raw)
	}

	segment := parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	if dot := strings.IndexByte(segment, '.'); dot != -1 {
		segment = segment[:dot]
	}
	if !imageIDPattern.MatchString(segment) {
		return "", internal.NewValidationErrorWithValue("image", "URL does not name a single image", raw)
	}
	return segment, nil
}
