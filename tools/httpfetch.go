// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toolgate/platform/governor"
	"toolgate/platform/shared/logger"
)

const (
	// DefaultFetchTimeout bounds one outbound request
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxResponseSize caps the response body read (1MB)
	DefaultMaxResponseSize = 1 * 1024 * 1024
)

const httpFetchInputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"url": {"type": "string", "format": "uri", "maxLength": 2048},
		"method": {"type": "string", "enum": ["GET", "HEAD"]}
	},
	"required": ["url"],
	"additionalProperties": false
}`

const httpFetchOutputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"status": {"type": "integer"},
		"body": {"type": "string"}
	},
	"required": ["status", "body"]
}`

// HTTPFetchTool fetches a URL on behalf of a run. Hosts must be explicitly
// allowlisted, private and loopback addresses are refused, and the response
// body is truncated to a fixed cap before it enters the pipeline.
type HTTPFetchTool struct {
	client          *http.Client
	allowedHosts    map[string]bool
	maxResponseSize int64
	allowPrivateIPs bool
	log             *logger.Logger
}

// HTTPFetchOption configures an HTTPFetchTool
type HTTPFetchOption func(*HTTPFetchTool)

// WithFetchTimeout overrides the per-request timeout
func WithFetchTimeout(d time.Duration) HTTPFetchOption {
	return func(t *HTTPFetchTool) { t.client.Timeout = d }
}

// WithMaxResponseSize overrides the response body cap
func WithMaxResponseSize(n int64) HTTPFetchOption {
	return func(t *HTTPFetchTool) { t.maxResponseSize = n }
}

// WithAllowPrivateIPs disables the private address check. Intended for
// tests against httptest servers.
func WithAllowPrivateIPs() HTTPFetchOption {
	return func(t *HTTPFetchTool) { t.allowPrivateIPs = true }
}

// NewHTTPFetchTool creates the fetch tool restricted to the given hosts.
// An empty host list means every fetch is refused.
func NewHTTPFetchTool(allowedHosts []string, opts ...HTTPFetchOption) *HTTPFetchTool {
	hosts := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(h)] = true
	}

	t := &HTTPFetchTool{
		client: &http.Client{
			Timeout: DefaultFetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:    100,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Redirects could hop to a host that was never allowlisted
				return http.ErrUseLastResponse
			},
		},
		allowedHosts:    hosts,
		maxResponseSize: DefaultMaxResponseSize,
		log:             logger.New("tool-http-fetch"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Contract builds the http_fetch tool contract. Only status and body are
// allowlisted; response headers stay inside the gateway.
func (t *HTTPFetchTool) Contract() (*governor.ToolContract, error) {
	return governor.NewContract("http_fetch", httpFetchInputSchema, httpFetchOutputSchema,
		[]string{"status", "body"})
}

// Execute performs the fetch
func (t *HTTPFetchTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	rawURL, _ := args["url"].(string)
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("url must use http or https scheme")
	}

	host := strings.ToLower(parsed.Hostname())
	if !t.allowedHosts[host] {
		return nil, fmt.Errorf("host %q is not in the fetch allowlist", host)
	}
	if !t.allowPrivateIPs {
		if err := t.validateHost(host); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "toolgate-fetch/1.0")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.log.Debug("", "", "fetch completed", map[string]interface{}{
		"host":        host,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return map[string]interface{}{
		"status": resp.StatusCode,
		"body":   string(body),
		// Internal fields, stripped by redaction
		"headers":     flattenHeaders(resp.Header),
		"final_url":   resp.Request.URL.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil
}

// validateHost refuses hosts that resolve to private or reserved addresses
func (t *HTTPFetchTool) validateHost(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private address %s is not allowed (host: %s)", ip, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return false
}

func flattenHeaders(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for key, vals := range h {
		out[key] = strings.Join(vals, ", ")
	}
	return out
}
