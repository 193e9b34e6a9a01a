package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"returns-desk/internal/core/config"
	"returns-desk/internal/core/httpclient"
	"returns-desk/internal/core/proxy"
	"returns-desk/internal/features/tracking/domain"
)

const ghnDetailPath = "/v2/shipping-order/detail"

// GHNAPIProvider implements ports.CarrierProvider with the GHN shipping order API.
type GHNAPIProvider struct {
	client  *http.Client
	baseURL string
}

// NewGHNAPIProvider creates a provider authenticated with the shop token.
func NewGHNAPIProvider(cfg config.CarrierConfig, proxySettings proxy.Settings) *GHNAPIProvider {
	headers := map[string]string{"Token": cfg.Token}
	if cfg.ShopID != "" {
		headers["ShopId"] = cfg.ShopID
	}

	return &GHNAPIProvider{
		client: httpclient.NewClient(30*time.Second,
			httpclient.WithComponent("ghn"),
			httpclient.WithHeaders(headers),
			httpclient.WithProxy(proxySettings),
		),
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
	}
}

// Name implements ports.CarrierProvider.
func (p *GHNAPIProvider) Name() string { return "ghn_api" }

// History implements ports.CarrierProvider.
func (p *GHNAPIProvider) History(ctx context.Context, code string) ([]domain.CarrierEvent, error) {
	body, err := json.Marshal(map[string]string{"order_code": code})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ghnDetailPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	var envelope ghnEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode GHN response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Code != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound || envelope.notFound() {
			return nil, fmt.Errorf("%w: %s", domain.ErrShipmentNotFound, code)
		}
		return nil, fmt.Errorf("GHN API returned status %d: %s", resp.StatusCode, envelope.Message)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrShipmentNotFound, code)
	}

	return envelope.Data.events(code)
}

// ghnEnvelope is the response wrapper shared by the API and the public tracking page.
type ghnEnvelope struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    *ghnTracking `json:"data"`
}

func (e ghnEnvelope) notFound() bool {
	return strings.Contains(strings.ToLower(e.Message), "not found")
}

type ghnTracking struct {
	OrderCode   string       `json:"order_code"`
	Status      string       `json:"status"`
	UpdatedDate string       `json:"updated_date"`
	Log         []ghnLogItem `json:"log"`
}

type ghnLogItem struct {
	Status      string `json:"status"`
	UpdatedDate string `json:"updated_date"`
	Description string `json:"description"`
}

// events converts the carrier log. A tracking with no log yields its current status alone.
func (t *ghnTracking) events(code string) ([]domain.CarrierEvent, error) {
	if t.OrderCode != "" {
		code = t.OrderCode
	}

	if len(t.Log) == 0 {
		if t.Status == "" {
			return nil, nil
		}
		ts, err := parseGHNTime(t.UpdatedDate)
		if err != nil {
			return nil, err
		}
		return []domain.CarrierEvent{{OrderCode: code, RawStatus: t.Status, Timestamp: ts}}, nil
	}

	events := make([]domain.CarrierEvent, 0, len(t.Log))
	for _, item := range t.Log {
		ts, err := parseGHNTime(item.UpdatedDate)
		if err != nil {
			return nil, err
		}
		events = append(events, domain.CarrierEvent{
			OrderCode:   code,
			RawStatus:   item.Status,
			Timestamp:   ts,
			Description: item.Description,
		})
	}
	return events, nil
}

var ghnTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseGHNTime reads GHN timestamps. Values without a zone are Vietnam local time.
func parseGHNTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range ghnTimeLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, vietnam); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", domain.ErrInvalidEvent, raw)
}

var vietnam = time.FixedZone("ICT", 7*60*60)
