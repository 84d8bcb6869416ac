// Package httputil provides pooled HTTP clients for the outbound APIs.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	// Connection settings
	MaxIdleConns        int           // 최대 유휴 연결 수
	MaxIdleConnsPerHost int           // 호스트당 최대 유휴 연결
	MaxConnsPerHost     int           // 호스트당 최대 연결
	IdleConnTimeout     time.Duration // 유휴 연결 타임아웃

	// Timeout settings
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration

	KeepAliveInterval time.Duration
}

// DefaultClientConfig returns the shared defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// GmailClientConfig allows the concurrency of the message fetch fan-out and
// longer responses for thread listings.
func GmailClientConfig(maxConcurrency int) *ClientConfig {
	cfg := DefaultClientConfig()
	if maxConcurrency > 0 {
		cfg.MaxIdleConnsPerHost = maxConcurrency
		cfg.MaxConnsPerHost = maxConcurrency * 2
	}
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 60 * time.Second
	return cfg
}

// LLMClientConfig uses few connections and a long response timeout for
// completions. A zero timeout keeps 120s.
func LLMClientConfig(timeout time.Duration) *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConns = 30
	cfg.MaxConnsPerHost = 30
	cfg.ResponseTimeout = 120 * time.Second
	if timeout > 0 {
		cfg.ResponseTimeout = timeout
	}
	return cfg
}

// NewClient creates an HTTP client with connection pooling.
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
		ForceAttemptHTTP2:     true, // HTTP/2 우선 시도
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}
