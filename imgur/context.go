package imgur

import (
	"context"
	"sync"
	"time"

	"imgurfetch/internal"
	"imgurfetch/utils"
)

// ClientContext is the state shared by the Client and the Coordinator: the
// configuration, HTTP transport, dispatcher lanes and the credentials
// snapshot. Create one at startup and Close it at shutdown.
type ClientContext struct {
	config     internal.Config
	http       *utils.HTTPClient
	dispatcher *Dispatcher
	limiter    internal.RateLimiter
	store      internal.CredentialStore
	logger     *internal.SecureLogger

	mu    sync.RWMutex
	creds internal.Credentials

	root      context.Context
	stop      context.CancelFunc
	runMu     sync.Mutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// Option customizes a ClientContext
type Option func(*ClientContext)

// WithCredentialStore sets where LoadCredentials and SaveCredentials go
func WithCredentialStore(store internal.CredentialStore) Option {
	return func(cc *ClientContext) { cc.store = store }
}

// WithHTTPClient replaces the HTTP client built from the config
func WithHTTPClient(client *utils.HTTPClient) Option {
	return func(cc *ClientContext) { cc.http = client }
}

// WithRateLimiter replaces the bandwidth limiter built from the config
func WithRateLimiter(limiter internal.RateLimiter) Option {
	return func(cc *ClientContext) { cc.limiter = limiter }
}

// WithLogger replaces the global logger
func WithLogger(logger *internal.SecureLogger) Option {
	return func(cc *ClientContext) { cc.logger = logger }
}

// WithCredentials seeds the in-memory snapshot
func WithCredentials(creds internal.Credentials) Option {
	return func(cc *ClientContext) { cc.creds = creds }
}

// NewClientContext validates cfg and starts the dispatcher
func NewClientContext(cfg *internal.Config, opts ...Option) (*ClientContext, error) {
	if cfg == nil {
		cfg = internal.DefaultConfig()
	}
	config := *cfg
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	cc := &ClientContext{config: config}
	for _, opt := range opts {
		opt(cc)
	}

	if cc.http == nil {
		client, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
			Timeout:   config.RequestTimeout,
			ProxyURL:  config.ProxyURL,
			UserAgent: config.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		cc.http = client
	}
	if cc.limiter == nil && config.RateLimit > 0 {
		cc.limiter = utils.NewBandwidthLimiter(config.RateLimit)
	}
	if cc.store == nil && config.CredentialsFile != "" {
		cc.store = utils.NewCredentialFile(config.CredentialsFile)
	}
	if cc.logger == nil {
		cc.logger = internal.GetLogger()
	}

	cc.root, cc.stop = context.WithCancel(context.Background())
	cc.dispatcher = NewDispatcher(config.Concurrency)

	cc.logger.Debug("client context ready: base=%s lanes=%d rate=%d", config.BaseURL, config.Concurrency, config.RateLimit)
	return cc, nil
}

// Config returns a copy of the validated configuration
func (cc *ClientContext) Config() internal.Config {
	return cc.config
}

// Credentials returns the current credentials snapshot
func (cc *ClientContext) Credentials() internal.Credentials {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.creds
}

// SetCredentials replaces the in-memory snapshot. It does not persist.
func (cc *ClientContext) SetCredentials(creds internal.Credentials) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.creds = creds
}

// LoadCredentials replaces the snapshot with what the store holds
func (cc *ClientContext) LoadCredentials() error {
	if cc.store == nil {
		return nil
	}
	creds, err := cc.store.Load()
	if err != nil {
		return err
	}
	cc.SetCredentials(creds)
	if creds.IsAuthenticated() {
		cc.logger.Debug("loaded credentials for account %q", creds.Username)
	}
	return nil
}

// SaveCredentials writes the snapshot to the store
func (cc *ClientContext) SaveCredentials() error {
	if cc.store == nil {
		return nil
	}
	return cc.store.Save(cc.Credentials())
}

// HandleCallback parses an authorization redirect URL, installs the
// credentials it carries and persists them
func (cc *ClientContext) HandleCallback(callbackURL string) (internal.Credentials, error) {
	creds, err := utils.ParseCallback(callbackURL, time.Now())
	if err != nil {
		return internal.Credentials{}, err
	}
	cc.SetCredentials(creds)
	if err := cc.SaveCredentials(); err != nil {
		return creds, err
	}
	cc.logger.Info("signed in as %q", creds.Username)
	return creds, nil
}

// Logout clears the snapshot and the stored copy
func (cc *ClientContext) Logout() error {
	cc.SetCredentials(internal.Credentials{})
	return cc.SaveCredentials()
}

// acquire registers a task goroutine; it fails once Close has begun
func (cc *ClientContext) acquire() bool {
	cc.runMu.Lock()
	defer cc.runMu.Unlock()
	if cc.closed {
		return false
	}
	cc.inflight.Add(1)
	return true
}

func (cc *ClientContext) release() {
	cc.inflight.Done()
}

// Close cancels running tasks, waits for their goroutines and drains the
// dispatcher. It must not be called from a lane.
func (cc *ClientContext) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		cc.runMu.Lock()
		cc.closed = true
		cc.runMu.Unlock()

		cc.stop()
		cc.inflight.Wait()
		err = cc.dispatcher.Close()
		cc.http.CloseIdleConnections()
	})
	return err
}
