package clients

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the transport configuration shared by submission, polling and retrieval.
// It is passed explicitly to NewForecastClient; nothing is read from process state.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000
	BaseURL string

	// Per-call timeouts, independent of the poll budget
	UploadTimeout   time.Duration
	StatusTimeout   time.Duration
	DownloadTimeout time.Duration

	// MaxArtifactBytes caps a downloaded artifact (0 = unlimited)
	MaxArtifactBytes int64

	// Retry applies to transient failures of status queries while polling
	Retry RetryPolicy
}

// DefaultConfig returns a config for baseURL with default timeouts and retry policy
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		UploadTimeout:    30 * time.Second,
		StatusTimeout:    10 * time.Second,
		DownloadTimeout:  5 * time.Minute,
		MaxArtifactBytes: 512 << 20,
		Retry:            DefaultRetryPolicy(),
	}
}

// Validate checks the config
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL %q has no host", c.BaseURL)
	}
	if c.UploadTimeout <= 0 || c.StatusTimeout <= 0 || c.DownloadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxArtifactBytes < 0 {
		return fmt.Errorf("max artifact bytes must not be negative")
	}
	return c.Retry.Validate()
}

func (c Config) endpoint(segments ...string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	for _, s := range segments {
		base += "/" + s
	}
	return base
}
