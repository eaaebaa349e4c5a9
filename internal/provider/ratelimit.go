// ratelimit.go gates all outbound REST traffic to the upstream data providers.
//
// Each endpoint category gets its own token bucket; every code path that hits
// the listings or metrics endpoints must Wait() on the matching bucket before
// issuing the request. Buckets refill continuously.
package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// Limits groups rate limiters by upstream endpoint category.
type Limits struct {
	Listings *rate.Limiter // listings feed polls
	Metrics  *rate.Limiter // per-address metrics fetches
}

// NewLimits creates the per-category limiters from the configured rates.
func NewLimits(listingsRPS float64, listingsBurst int, metricsRPS float64, metricsBurst int) *Limits {
	return &Limits{
		Listings: rate.NewLimiter(rate.Limit(listingsRPS), listingsBurst),
		Metrics:  rate.NewLimiter(rate.Limit(metricsRPS), metricsBurst),
	}
}

// WaitListings blocks until a listings request may proceed or ctx is cancelled.
func (l *Limits) WaitListings(ctx context.Context) error {
	return l.Listings.Wait(ctx)
}

// WaitMetrics blocks until a metrics request may proceed or ctx is cancelled.
func (l *Limits) WaitMetrics(ctx context.Context) error {
	return l.Metrics.Wait(ctx)
}
