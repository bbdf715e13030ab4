// Package httputil provides tuned shared HTTP clients for provider traffic.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration

	KeepAliveInterval time.Duration
}

// DefaultClientConfig returns a general-purpose configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// GoogleClientConfig tunes the client for the Calendar API: a local daemon
// fetches small pages at a steady cadence, so a handful of warm connections
// is plenty.
func GoogleClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 45 * time.Second
	return cfg
}

// CalDAVClientConfig tunes the client for DAV servers, which are often
// self-hosted and slow to answer REPORT queries.
func CalDAVClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConnsPerHost = 4
	cfg.ResponseTimeout = 60 * time.Second
	return cfg
}

// NewClient creates an HTTP client with connection pooling. Standard proxy
// environment variables are honored via the transport.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}

var (
	defaultClient *http.Client
	googleClient  *http.Client
	caldavClient  *http.Client
)

func init() {
	defaultClient = NewClient(DefaultClientConfig())
	googleClient = NewClient(GoogleClientConfig())
	caldavClient = NewClient(CalDAVClientConfig())
}

// DefaultClient returns the shared general-purpose client.
func DefaultClient() *http.Client { return defaultClient }

// GoogleClient returns the shared client for Google APIs.
func GoogleClient() *http.Client { return googleClient }

// CalDAVClient returns the shared client for DAV servers.
func CalDAVClient() *http.Client { return caldavClient }
