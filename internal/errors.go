package internal

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultApplicationErrorMessage is used when an error envelope carries no message
const DefaultApplicationErrorMessage = "An error occurred while attempting to fulfill your request"

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrMissingCredentials ErrorType = iota
	ErrMissingClientID
	ErrMalformedURL
	ErrTransport
	ErrApplication
	ErrDecoding
	ErrCancelled
	ErrUnknownResource
	ErrImageUnavailable
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// APIError is the error type surfaced by every client operation
type APIError struct {
	Type       ErrorType
	Code       int
	Message    string
	Severity   ErrorSeverity
	URL        string
	Suggestion string
	Context    map[string]interface{}
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	var parts []string

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("imgur error (code: %d, type: %s)", e.Code, e.Type.String()))
	} else {
		parts = append(parts, fmt.Sprintf("imgur error (type: %s)", e.Type.String()))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying cause, if any
func (e *APIError) Unwrap() error {
	return e.Err
}

// DetailedError returns a detailed error message with all available information
func (e *APIError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}

	// URLs may carry tokens in the query
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrMissingCredentials:
		return "MissingCredentials"
	case ErrMissingClientID:
		return "MissingClientID"
	case ErrMalformedURL:
		return "MalformedURL"
	case ErrTransport:
		return "Transport"
	case ErrApplication:
		return "Application"
	case ErrDecoding:
		return "Decoding"
	case ErrCancelled:
		return "Cancelled"
	case ErrUnknownResource:
		return "UnknownResource"
	case ErrImageUnavailable:
		return "ImageUnavailable"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewAPIError creates an APIError with the default severity and suggestion for its type
func NewAPIError(code int, message string, errorType ErrorType) *APIError {
	return &APIError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WithSuggestion replaces the suggestion
func (e *APIError) WithSuggestion(suggestion string) *APIError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *APIError) WithURL(url string) *APIError {
	e.URL = url
	return e
}

// WithCause records the underlying error
func (e *APIError) WithCause(err error) *APIError {
	e.Err = err
	return e
}

// WithContext adds context information to the error
func (e *APIError) WithContext(key string, value interface{}) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsResolution reports whether the request could not be built
func (e *APIError) IsResolution() bool {
	switch e.Type {
	case ErrMissingCredentials, ErrMissingClientID, ErrMalformedURL:
		return true
	default:
		return false
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrMissingCredentials:
		return "Run 'imgurfetch login' and then 'imgurfetch callback <url>' to authorize this client"
	case ErrMissingClientID:
		return "Set the client id with --client-id or IMGURFETCH_CLIENT_ID"
	case ErrMalformedURL:
		return "Check the configured base URL and the request parameters"
	case ErrTransport:
		return "Check your internet connection and try again. Consider using a proxy if needed"
	case ErrApplication:
		return "The API rejected the request; see the message for details"
	case ErrDecoding:
		return "The API returned a response that could not be decoded"
	default:
		return ""
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrCancelled:
		return SeverityInfo
	case ErrTransport, ErrImageUnavailable:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// redactSensitiveURL drops the query and fragment of a URL
func redactSensitiveURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i != -1 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

// Constructors for the error families callers distinguish

// NewMissingCredentialsError is returned when an authenticated operation has no credentials
func NewMissingCredentialsError(operation string) *APIError {
	return NewAPIError(401, fmt.Sprintf("%s requires an authenticated account", operation), ErrMissingCredentials).
		WithContext("operation", operation)
}

// NewMissingClientIDError is returned when no client id is configured
func NewMissingClientIDError() *APIError {
	return NewAPIError(0, "client id is not configured", ErrMissingClientID)
}

// NewMalformedURLError is returned when a request URL cannot be built
func NewMalformedURLError(raw string, cause error) *APIError {
	return NewAPIError(404, "Invalid URL Found", ErrMalformedURL).
		WithURL(raw).
		WithCause(cause)
}

// NewTransportError wraps a connectivity, timeout or TLS failure
func NewTransportError(cause error) *APIError {
	return NewAPIError(0, "request failed", ErrTransport).WithCause(cause)
}

// NewHTTPStatusError reports a download whose HTTP status signals failure
func NewHTTPStatusError(status int, statusText string) *APIError {
	return NewAPIError(status, statusText, ErrTransport)
}

// NewApplicationError reports an error envelope returned with a successful exchange
func NewApplicationError(status int, message string) *APIError {
	if message == "" {
		message = DefaultApplicationErrorMessage
	}
	return NewAPIError(status, message, ErrApplication)
}

// NewDecodingError reports a payload that could not be parsed
func NewDecodingError(what string, cause error) *APIError {
	return NewAPIError(0, fmt.Sprintf("failed to decode %s", what), ErrDecoding).WithCause(cause)
}

// NewCancelledError reports an operation cancelled by the caller
func NewCancelledError() *APIError {
	return NewAPIError(0, "request cancelled", ErrCancelled)
}

// NewUnknownResourceError reports a resource id that is not in the working set
func NewUnknownResourceError(id string) *APIError {
	return NewAPIError(404, fmt.Sprintf("resource %s is not tracked", id), ErrUnknownResource).
		WithContext("resource_id", id)
}

// NewImageUnavailableError reports image bytes that did not decode
func NewImageUnavailableError(id string) *APIError {
	return NewAPIError(0, "image data could not be decoded", ErrImageUnavailable).
		WithContext("resource_id", id)
}

func errorOfType(err error, match func(*APIError) bool) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return match(apiErr)
	}
	return false
}

// IsResolutionError reports whether err means the request was never sent
func IsResolutionError(err error) bool {
	return errorOfType(err, (*APIError).IsResolution)
}

// IsTransportError reports whether err is a network-level failure
func IsTransportError(err error) bool {
	return errorOfType(err, func(e *APIError) bool { return e.Type == ErrTransport })
}

// IsApplicationError reports whether err came from an API error envelope
func IsApplicationError(err error) bool {
	return errorOfType(err, func(e *APIError) bool { return e.Type == ErrApplication })
}

// IsDecodingError reports whether err is a payload decoding failure
func IsDecodingError(err error) bool {
	return errorOfType(err, func(e *APIError) bool { return e.Type == ErrDecoding })
}

// IsCancelled reports whether err is a caller cancellation
func IsCancelled(err error) bool {
	return errorOfType(err, func(e *APIError) bool { return e.Type == ErrCancelled })
}
