package ollama

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is where a local `ollama serve` listens.
const DefaultBaseURL = "http://127.0.0.1:11434"

// Config configures the Ollama HTTP client. Only BaseURL has no usable
// zero value, and WithDefaults fills that one too.
type Config struct {
	BaseURL string

	// UpstreamTimeout bounds one request including model load time, which
	// dominates the first call after Ollama unloads a model. Default 60s.
	UpstreamTimeout time.Duration

	DialTimeout         time.Duration // default 5s
	MaxIdleConnsPerHost int           // default 16; Ollama is a single host

	// HTTPClient replaces the pooled client, mainly in tests.
	HTTPClient *http.Client
}

// Validate checks the base URL scheme.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BaseURL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("BaseURL %q has no host", c.BaseURL)
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// Ollama's OpenAI-compatible routes live under /v1; accept either form.
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 60 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 16
	}

	return cfg
}

type client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an Ollama client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport(cfg)}
	}

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("ollama"),
	}, nil
}

func newTransport(cfg Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	t.MaxIdleConns = cfg.MaxIdleConnsPerHost
	return t
}

// Close releases idle upstream connections.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
