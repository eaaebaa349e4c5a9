package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dex-radar/pkg/types"
)

// OpenPriceStream opens one SSE connection for the given address. The stream
// is line-oriented: lines beginning "data:" carry a JSON frame, everything
// else (comments, keep-alives, blank lines) is skipped.
func (p *HTTPProvider) OpenPriceStream(ctx context.Context, addr string) (PriceStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	url := fmt.Sprintf("%s/%s", strings.TrimRight(p.sseURL, "/"), addr)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No client timeout: the response body is a long-lived stream, cancelled
	// via the request context.
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse connect %s: %w", addr, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse connect %s: status %d", addr, resp.StatusCode)
	}

	return &sseStream{
		addr:    addr,
		resp:    resp,
		scanner: bufio.NewScanner(resp.Body),
		cancel:  cancel,
	}, nil
}

type sseStream struct {
	addr    string
	resp    *http.Response
	scanner *bufio.Scanner
	cancel  context.CancelFunc
}

// Recv blocks until the next decodable frame. Lines that fail JSON parse are
// silently skipped per the wire contract.
func (s *sseStream) Recv() (types.PriceFrame, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var frame types.PriceFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		if frame.Address == "" {
			frame.Address = s.addr
		}
		return frame, nil
	}

	if err := s.scanner.Err(); err != nil {
		return types.PriceFrame{}, fmt.Errorf("sse read %s: %w", s.addr, err)
	}
	return types.PriceFrame{}, fmt.Errorf("sse stream %s closed", s.addr)
}

// Close destroys the request and the underlying connection; a blocked Recv
// returns with an error.
func (s *sseStream) Close() error {
	s.cancel()
	return s.resp.Body.Close()
}
