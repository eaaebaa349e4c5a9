package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"dex-radar/internal/config"
	"dex-radar/pkg/types"
)

// HTTPProvider is the production Provider backed by the public REST and SSE
// endpoints.
type HTTPProvider struct {
	listings *resty.Client
	metrics  *resty.Client
	sseURL   string
	chain    string
	fanOut   int
	limits   *Limits
	logger   *slog.Logger
}

// NewHTTP creates the production provider from config.
func NewHTTP(cfg config.Config, logger *slog.Logger) *HTTPProvider {
	listings := resty.New().
		SetBaseURL(cfg.API.ListingsURL).
		SetTimeout(cfg.API.ListingsTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	metrics := resty.New().
		SetBaseURL(cfg.API.MetricsURL).
		SetTimeout(cfg.API.MetricsTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &HTTPProvider{
		listings: listings,
		metrics:  metrics,
		sseURL:   cfg.API.SSEURL,
		chain:    cfg.Chain,
		fanOut:   cfg.Discovery.FanOut,
		limits: NewLimits(cfg.API.ListingsRPS, cfg.API.ListingsBurst,
			cfg.API.MetricsRPS, cfg.API.MetricsBurst),
		logger: logger.With("component", "provider"),
	}
}

// listingRecord tolerates the upstream's field-name variants: some deploys
// emit tokenAddress/chainId/imageUrl, others address/chain/icon.
type listingRecord struct {
	TokenAddress string `json:"tokenAddress"`
	Address      string `json:"address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	ChainID      string `json:"chainId"`
	Chain        string `json:"chain"`
	ImageURL     string `json:"imageUrl"`
	Icon         string `json:"icon"`
	Paid         bool   `json:"paid"`
}

func (r listingRecord) address() string {
	if r.TokenAddress != "" {
		return r.TokenAddress
	}
	return r.Address
}

func (r listingRecord) chain() string {
	if r.ChainID != "" {
		return r.ChainID
	}
	return r.Chain
}

func (r listingRecord) logo() string {
	if r.ImageURL != "" {
		return r.ImageURL
	}
	return r.Icon
}

// Listings polls the feed and returns entries for the target chain.
// The upstream answers either a bare array or {"tokens": [...]}.
func (p *HTTPProvider) Listings(ctx context.Context) ([]types.Listing, error) {
	if err := p.limits.WaitListings(ctx); err != nil {
		return nil, err
	}

	resp, err := p.listings.R().SetContext(ctx).Get("")
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch listings: status %d", resp.StatusCode())
	}

	records, err := decodeListings(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}

	out := make([]types.Listing, 0, len(records))
	for _, r := range records {
		if r.chain() != p.chain || r.address() == "" {
			continue
		}
		out = append(out, types.Listing{
			ContractAddress: r.address(),
			Name:            r.Name,
			Symbol:          r.Symbol,
			Chain:           r.chain(),
			LogoURL:         r.logo(),
			Paid:            r.Paid,
		})
	}
	return out, nil
}

func decodeListings(body []byte) ([]listingRecord, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var records []listingRecord
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Tokens []listingRecord `json:"tokens"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Tokens, nil
}
