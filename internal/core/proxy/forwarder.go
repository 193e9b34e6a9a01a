package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"returns-desk/internal/core/logger"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// ErrNoUpstream is returned when a forwarder is requested for disabled settings.
var ErrNoUpstream = errors.New("proxy: no upstream configured")

// ForwardingProxy is a local unauthenticated proxy that tunnels every connection
// through an authenticated upstream. Chromium cannot pass proxy credentials on
// the command line, so the browser-based tracking provider points at this instead.
type ForwardingProxy struct {
	upstream  *url.URL
	proxyAuth string
	dialTO    time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
	log      *zap.Logger
}

// NewForwardingProxy creates a forwarder for the given settings.
func NewForwardingProxy(settings Settings) (*ForwardingProxy, error) {
	if !settings.HasProxy() {
		return nil, ErrNoUpstream
	}

	parsed, err := url.Parse(settings.FullURL())
	if err != nil {
		return nil, fmt.Errorf("invalid upstream proxy URL: %w", err)
	}

	fp := &ForwardingProxy{
		upstream: parsed,
		dialTO:   30 * time.Second,
		log:      logger.Named("proxy"),
	}
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		creds := parsed.User.Username() + ":" + password
		fp.proxyAuth = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	}
	return fp, nil
}

// dial opens a CONNECT tunnel to addr through the upstream proxy.
func (fp *ForwardingProxy) dial(network, addr string) (net.Conn, error) {
	upstreamHost := fp.upstream.Host

	conn, err := net.DialTimeout("tcp", upstreamHost, fp.dialTO)
	if err != nil {
		fp.log.Error("Failed to dial upstream proxy", zap.String("upstream", upstreamHost), zap.Error(err))
		return nil, fmt.Errorf("failed to connect to upstream proxy %s: %w", upstreamHost, err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr, addr)
	if fp.proxyAuth != "" {
		req += "Proxy-Authorization: " + fp.proxyAuth + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		fp.log.Warn("Upstream proxy rejected CONNECT", zap.Int("status", resp.StatusCode), zap.String("target", addr))
		return nil, fmt.Errorf("upstream proxy CONNECT failed with status: %d", resp.StatusCode)
	}

	fp.log.Debug("CONNECT tunnel established", zap.String("network", network), zap.String("target", addr))
	return conn, nil
}

// Start launches the local proxy on a random loopback port and returns its URL.
func (fp *ForwardingProxy) Start(ctx context.Context) (string, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.running {
		return fp.localAddr(), nil
	}

	gp := goproxy.NewProxyHttpServer()
	gp.ConnectDial = fp.dial
	gp.Tr = &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return fp.dial(network, addr)
		},
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to find available port: %w", err)
	}
	fp.listener = listener
	fp.server = &http.Server{Handler: gp}

	go func() {
		if err := fp.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fp.log.Error("Local proxy server error", zap.Error(err))
		}
	}()

	fp.running = true
	fp.log.Debug("Local proxy forwarder started",
		zap.String("local_addr", fp.localAddr()),
		zap.String("upstream", fp.upstream.Host),
	)
	return fp.localAddr(), nil
}

// Stop gracefully shuts down the local proxy server.
func (fp *ForwardingProxy) Stop() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if !fp.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fp.running = false
	if err := fp.server.Shutdown(ctx); err != nil {
		fp.listener.Close()
		return err
	}
	return nil
}

// LocalAddr returns the local proxy URL, e.g. "http://127.0.0.1:18080".
func (fp *ForwardingProxy) LocalAddr() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.localAddr()
}

func (fp *ForwardingProxy) localAddr() string {
	if fp.listener == nil {
		return ""
	}
	return "http://" + fp.listener.Addr().String()
}

// IsRunning returns whether the proxy server is currently running.
func (fp *ForwardingProxy) IsRunning() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.running
}
