// Package alert posts tier-3 crossing announcements to the outbound
// messaging channel. The sink is boolean-gated: without an API key and URL
// it is a no-op, but callers still latch the announced flag so a later
// enable never replays old crossings.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"dex-radar/internal/config"
	"dex-radar/pkg/types"
)

// Notifier is the outbound announcement client.
type Notifier struct {
	http    *resty.Client
	enabled bool
	logger  *slog.Logger
}

// New creates the notifier. With alerting unconfigured the returned notifier
// is disabled and Notify does nothing.
func New(cfg config.AlertConfig, logger *slog.Logger) *Notifier {
	n := &Notifier{
		enabled: cfg.Enabled(),
		logger:  logger.With("component", "alert"),
	}
	if n.enabled {
		n.http = resty.New().
			SetBaseURL(cfg.URL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Api-Key", cfg.APIKey)
	}
	return n
}

// Enabled reports whether announcements actually go out.
func (n *Notifier) Enabled() bool { return n.enabled }

type announcement struct {
	ContractAddress string  `json:"contract_address"`
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	Multiplier      float64 `json:"multiplier"`
	MarketCap       float64 `json:"market_cap"`
	Tier            float64 `json:"tier"`
}

// Notify announces a tier-3 crossing. Disabled notifiers return nil.
func (n *Notifier) Notify(ctx context.Context, tok *types.Token, tier float64) error {
	if !n.enabled {
		n.logger.Debug("alert sink disabled, skipping", "address", tok.ContractAddress)
		return nil
	}

	body := announcement{
		ContractAddress: tok.ContractAddress,
		Name:            tok.Name,
		Symbol:          tok.Symbol,
		Multiplier:      tok.PeakMultiplier,
		MarketCap:       types.FloatVal(tok.CurrentMC),
		Tier:            tier,
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/announce")
	if err != nil {
		return fmt.Errorf("announce %s: %w", tok.ContractAddress, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("announce %s: status %d", tok.ContractAddress, resp.StatusCode())
	}

	n.logger.Info("tier-3 announcement sent",
		"address", tok.ContractAddress,
		"symbol", tok.Symbol,
		"multiplier", tok.PeakMultiplier,
	)
	return nil
}
