package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/proxy"
	"returns-desk/internal/features/tracking/domain"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// portalLogsPattern matches the XHR the public tracking page issues for the shipment logs.
const portalLogsPattern = "*/order-tracking/public-api/client/tracking-logs*"

// GHNPortalProvider implements ports.CarrierProvider by loading the public GHN
// tracking page in a headless browser and capturing its tracking-logs response.
// It needs no shop token.
type GHNPortalProvider struct {
	pageURL string
	proxy   proxy.Settings
	timeout time.Duration
	launch  func(ctx context.Context, proxyAddr string) (controlURL string, kill func(), err error)
	logger  *zap.Logger
}

// NewGHNPortalProvider creates a provider for the given page URL, where %s is the order code.
func NewGHNPortalProvider(pageURL string, proxySettings proxy.Settings) *GHNPortalProvider {
	return &GHNPortalProvider{
		pageURL: pageURL,
		proxy:   proxySettings,
		timeout: 60 * time.Second,
		launch:  launchChrome,
		logger:  logger.Named("ghn_portal"),
	}
}

// launchChrome starts a headless Chrome. kill must be called once the browser is done.
func launchChrome(ctx context.Context, proxyAddr string) (string, func(), error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)
	if proxyAddr != "" {
		l = l.Proxy(proxyAddr)
	}

	u, err := l.Launch()
	if err != nil {
		return "", nil, err
	}
	return u, l.Kill, nil
}

// Name implements ports.CarrierProvider.
func (p *GHNPortalProvider) Name() string { return "ghn_portal" }

// History implements ports.CarrierProvider.
func (p *GHNPortalProvider) History(ctx context.Context, code string) ([]domain.CarrierEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Chrome cannot authenticate to a proxy from flags, so credentials go through a local forwarder.
	var proxyAddr string
	if p.proxy.NeedsForwarder() {
		forwarder, err := proxy.NewForwardingProxy(p.proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy forwarder: %w", err)
		}
		proxyAddr, err = forwarder.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start proxy forwarder: %w", err)
		}
		defer forwarder.Stop()
	} else if p.proxy.HasProxy() {
		proxyAddr = p.proxy.HostPort()
	}

	p.logger.Debug("Launching browser",
		zap.String("order_code", code),
		zap.Bool("proxy_enabled", proxyAddr != ""),
	)

	u, kill, err := p.launch(ctx, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer kill()

	browser := rod.New().Context(ctx).ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	router := page.HijackRequests()
	defer router.Stop()

	client := http.DefaultClient
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			client = &http.Client{
				Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
				Timeout:   30 * time.Second,
			}
		}
	}

	done := make(chan []byte, 1)
	if err := router.Add(portalLogsPattern, "", func(h *rod.Hijack) {
		if err := h.LoadResponse(client, true); err != nil {
			p.logger.Error("Failed to load tracking logs", zap.Error(err))
			return
		}
		select {
		case done <- []byte(h.Response.Body()):
		default:
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to register hijack route: %w", err)
	}
	go router.Run()

	if err := page.Navigate(p.url(code)); err != nil {
		return nil, fmt.Errorf("failed to open tracking page: %w", err)
	}

	select {
	case body := <-done:
		return parsePortalResponse(code, body)
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for tracking logs: %w", ctx.Err())
	}
}

func (p *GHNPortalProvider) url(code string) string {
	if strings.Contains(p.pageURL, "%s") {
		return fmt.Sprintf(p.pageURL, url.QueryEscape(code))
	}
	return p.pageURL + url.QueryEscape(code)
}

// portalResponse is the tracking-logs payload of the public page.
type portalResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		OrderInfo struct {
			OrderCode   string `json:"order_code"`
			Status      string `json:"status"`
			UpdatedDate string `json:"updated_date"`
		} `json:"order_info"`
		TrackingLogs []struct {
			Status     string `json:"status"`
			StatusName string `json:"status_name"`
			ActionAt   string `json:"action_at"`
		} `json:"tracking_logs"`
	} `json:"data"`
}

func parsePortalResponse(code string, body []byte) ([]domain.CarrierEvent, error) {
	var resp portalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse tracking logs: %w", err)
	}
	if resp.Code != http.StatusOK || resp.Data == nil {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrShipmentNotFound, code, resp.Message)
	}

	tracking := &ghnTracking{
		OrderCode:   resp.Data.OrderInfo.OrderCode,
		Status:      resp.Data.OrderInfo.Status,
		UpdatedDate: resp.Data.OrderInfo.UpdatedDate,
	}
	for _, l := range resp.Data.TrackingLogs {
		tracking.Log = append(tracking.Log, ghnLogItem{
			Status:      l.Status,
			UpdatedDate: l.ActionAt,
			Description: l.StatusName,
		})
	}
	return tracking.events(code)
}
