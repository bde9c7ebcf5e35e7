package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent identifies load traffic in target access logs.
const DefaultUserAgent = "rampfire/1.0"

// RequestBuilder produces identical GET requests for one target.
type RequestBuilder struct {
	target  string
	headers http.Header
}

// NewRequestBuilder validates target and merges headers over the defaults.
func NewRequestBuilder(target string, headers map[string]string) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	hdrs := http.Header{}
	hdrs.Set("Accept", "*/*")
	hdrs.Set("User-Agent", DefaultUserAgent)
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		hdrs.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		target:  target,
		headers: hdrs,
	}, nil
}

// Target returns the URL every built request is sent to.
func (b *RequestBuilder) Target() string {
	if b == nil {
		return ""
	}
	return b.target
}

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	return req, nil
}

// NewClient returns the single pooled client shared by every executor of a run.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   1024,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
