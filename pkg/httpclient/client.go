// Package httpclient builds outbound HTTP clients for dependency services and
// translates their responses into the retry package's error vocabulary.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"OrderSaga/pkg/retry"

	"golang.org/x/net/proxy"
)

// maxErrorBody caps how much of a failed response body is retained.
const maxErrorBody = 4 << 10

// ErrEmptyBody is returned when a 2xx response carries no JSON document.
var ErrEmptyBody = errors.New("empty response body")

// New returns an http.Client, optionally routed through proxyURL.
// Supported proxy schemes are socks5, http and https. Per-call deadlines
// come from the request context, so the client itself has no timeout.
func New(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "socks5":
		return newSOCKS5Client(parsed)
	case "http", "https":
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(parsed)
		return &http.Client{Transport: transport}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
}

func newSOCKS5Client(proxyURL *url.URL) (*http.Client, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return &http.Client{Transport: transport}, nil
}

// DoJSON sends a JSON request and decodes a 2xx body into out (when non-nil).
//
// Failures are classified for the retry executor: a failure to reach the
// remote is a *retry.TransportError, a non-2xx status is a
// *retry.StatusError carrying the body, and an undecodable 2xx body is a
// plain error.
func DoJSON(ctx context.Context, client *http.Client, method, rawURL string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return &retry.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retry.TransportError{Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", rawURL, err)
	}
	return nil
}

// JoinURL appends path to base without doubling slashes.
func JoinURL(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(path) == 0 || path[0] != '/' {
		path = "/" + path
	}
	return base + path
}
