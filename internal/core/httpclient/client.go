package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/proxy"

	"go.uber.org/zap"
)

// LoggingRoundTripper captures outbound request details for debugging.
type LoggingRoundTripper struct {
	// Proxied is the underlying RoundTripper to execute the request.
	Proxied http.RoundTripper
	// Component names the caller in log lines (e.g. "ghn", "woocommerce").
	Component string
}

// RoundTrip executes the request and logs details.
func (lrt *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := logger.Named(lrt.Component)

	log.Debug("HTTP Request Started",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
	)

	resp, err := lrt.Proxied.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		log.Error("HTTP Request Failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	log.Debug("HTTP Request Completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// HeaderRoundTripper stamps fixed headers on every request, e.g. carrier API tokens.
type HeaderRoundTripper struct {
	Proxied http.RoundTripper
	Headers map[string]string
}

// RoundTrip clones the request before mutating headers.
func (hrt *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range hrt.Headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return hrt.Proxied.RoundTrip(r)
}

type options struct {
	component string
	headers   map[string]string
	proxy     proxy.Settings
	base      http.RoundTripper
}

// Option customizes a client built by NewClient.
type Option func(*options)

// WithComponent sets the logger name used for request logs.
func WithComponent(name string) Option {
	return func(o *options) { o.component = name }
}

// WithHeaders adds default headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

// WithProxy routes requests through the given upstream proxy when enabled.
func WithProxy(settings proxy.Settings) Option {
	return func(o *options) { o.proxy = settings }
}

// WithTransport replaces the base transport. Used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// NewClient returns an http.Client with logging middleware.
func NewClient(timeout time.Duration, opts ...Option) *http.Client {
	o := options{component: "http", base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.base
	if o.proxy.HasProxy() {
		if proxyURL, err := url.Parse(o.proxy.FullURL()); err == nil {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.Proxy = http.ProxyURL(proxyURL)
			base = tr
		} else {
			logger.Named(o.component).Warn("Ignoring invalid proxy settings", zap.Error(err))
		}
	}

	var rt http.RoundTripper = &LoggingRoundTripper{Proxied: base, Component: o.component}
	if len(o.headers) > 0 {
		rt = &HeaderRoundTripper{Proxied: rt, Headers: o.headers}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}
}
