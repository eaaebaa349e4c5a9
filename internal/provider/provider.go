// Package provider implements the upstream data adapters for the radar:
//
//   - Listings:        periodic JSON poll of the public new-token feed
//   - BatchMetrics:    per-address market cap / volume / tx-window metrics,
//     fetched in parallel under a bounded fan-out
//   - OpenPriceStream: one SSE connection per address for sub-second prices
//
// Each adapter is a pure data accessor; the only state is connection
// bookkeeping inside an open PriceStream. All REST calls go through the
// package's rate limiters.
package provider

import (
	"context"

	"dex-radar/pkg/types"
)

// Provider is the pluggable upstream surface. Concrete implementations can be
// swapped for tests and for web vs. embedded modes.
type Provider interface {
	// Listings returns the latest feed entries, already filtered to the
	// target chain. A missing or empty upstream response is not an error.
	Listings(ctx context.Context) ([]types.Listing, error)

	// BatchMetrics fetches metrics for up to 30 addresses. The result map
	// has one entry per requested address; a nil value means no usable data
	// (not found, no pool, or rejected by the sanity check).
	BatchMetrics(ctx context.Context, addrs []string) (map[string]*types.TokenMetrics, error)

	// OpenPriceStream opens the SSE price stream for one address.
	OpenPriceStream(ctx context.Context, addr string) (PriceStream, error)
}

// PriceStream is one live SSE connection. Recv blocks for the next decoded
// frame; Close tears the connection down and unblocks Recv with an error.
type PriceStream interface {
	Recv() (types.PriceFrame, error)
	Close() error
}
