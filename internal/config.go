package internal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "imgurfetch"

// Config holds application configuration
type Config struct {
	BaseURL        string
	APIVersion     string
	ClientID       string
	ImagesPerPage  int
	RequestTimeout time.Duration
	Concurrency    int
	ThumbnailSize  int
	RateLimit      int64 // bytes per second, 0 disables throttling
	ProxyURL       string
	UserAgent      string

	CredentialsFile string

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://api.imgur.com/",
		APIVersion:      "3",
		ImagesPerPage:   100,
		RequestTimeout:  30 * time.Second,
		Concurrency:     1,
		ThumbnailSize:   150,
		UserAgent:       appName + "/1.0",
		CredentialsFile: filepath.Join(xdg.ConfigHome, appName, "credentials.yaml"),

		// Logging defaults
		LogLevel: "info",
		LogFile:  "", // Empty means stderr
	}
}

// DefaultConfigFile is where LoadFromFile looks when no path is given
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("IMGURFETCH_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("IMGURFETCH_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("IMGURFETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 32 {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("IMGURFETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.RequestTimeout = d
		} else if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RequestTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("IMGURFETCH_PROXY"); v != "" {
		c.ProxyURL = v
	}
	if v := os.Getenv("IMGURFETCH_CREDENTIALS"); v != "" {
		c.CredentialsFile = v
	}

	// Load logging configuration from environment
	if v := os.Getenv("IMGURFETCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("IMGURFETCH_DEBUG"); v != "" {
		c.EnableDebug = v == "true" || v == "1"
	}
	if v := os.Getenv("IMGURFETCH_QUIET"); v != "" {
		c.QuietMode = v == "true" || v == "1"
	}
	if v := os.Getenv("IMGURFETCH_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// fileConfig mirrors Config with string durations for YAML
type fileConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIVersion      string `yaml:"api_version"`
	ClientID        string `yaml:"client_id"`
	ImagesPerPage   int    `yaml:"images_per_page"`
	RequestTimeout  string `yaml:"request_timeout"`
	Concurrency     int    `yaml:"concurrency"`
	ThumbnailSize   int    `yaml:"thumbnail_size"`
	RateLimit       string `yaml:"rate_limit"`
	ProxyURL        string `yaml:"proxy"`
	UserAgent       string `yaml:"user_agent"`
	CredentialsFile string `yaml:"credentials_file"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
}

// LoadFromFile overlays values from a YAML file. A missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return NewValidationError("config_file", "failed to parse YAML").
			WithContext("file", path).
			WithContext("error", err.Error())
	}

	if fc.BaseURL != "" {
		c.BaseURL = fc.BaseURL
	}
	if fc.APIVersion != "" {
		c.APIVersion = fc.APIVersion
	}
	if fc.ClientID != "" {
		c.ClientID = fc.ClientID
	}
	if fc.ImagesPerPage > 0 {
		c.ImagesPerPage = fc.ImagesPerPage
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return NewValidationErrorWithValue("request_timeout", "invalid duration", fc.RequestTimeout)
		}
		c.RequestTimeout = d
	}
	if fc.Concurrency > 0 {
		c.Concurrency = fc.Concurrency
	}
	if fc.ThumbnailSize > 0 {
		c.ThumbnailSize = fc.ThumbnailSize
	}
	if fc.RateLimit != "" {
		n, err := ParseByteRate(fc.RateLimit)
		if err != nil {
			return NewValidationErrorWithValue("rate_limit", err.Error(), fc.RateLimit)
		}
		c.RateLimit = n
	}
	if fc.ProxyURL != "" {
		c.ProxyURL = fc.ProxyURL
	}
	if fc.UserAgent != "" {
		c.UserAgent = fc.UserAgent
	}
	if fc.CredentialsFile != "" {
		c.CredentialsFile = fc.CredentialsFile
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	return nil
}

// ParseByteRate parses a bandwidth such as 500K, 2M or 1024 into bytes per second
func ParseByteRate(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	return int64(n * float64(multiplier)), nil
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationErrorWithValue("base_url", "must be an absolute URL", c.BaseURL)
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}

	if c.APIVersion == "" {
		return NewValidationError("api_version", "cannot be empty")
	}

	if c.ImagesPerPage < 1 {
		return NewValidationErrorWithValue("images_per_page", "must be positive", c.ImagesPerPage)
	}

	if c.Concurrency < 1 || c.Concurrency > 32 {
		return NewValidationErrorWithValue("concurrency", "must be 1-32", c.Concurrency)
	}

	if c.RequestTimeout <= 0 {
		return NewValidationErrorWithValue("request_timeout", "must be > 0", c.RequestTimeout)
	}

	if c.ThumbnailSize < 1 {
		return NewValidationErrorWithValue("thumbnail_size", "must be positive", c.ThumbnailSize)
	}

	if c.RateLimit < 0 {
		return NewValidationErrorWithValue("rate_limit", "must be >= 0", c.RateLimit)
	}

	return nil
}
