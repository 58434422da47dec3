package internal

import "context"

// CredentialStore persists the credentials snapshot between runs
type CredentialStore interface {
	Load() (Credentials, error)
	Save(creds Credentials) error
}

// ThumbnailObserver receives thumbnail progress and the terminal outcome for one resource
type ThumbnailObserver interface {
	OnThumbnailProgress(resourceID string, fraction float64)
	OnThumbnailComplete(record ResourceRecord, err error)
}

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}
