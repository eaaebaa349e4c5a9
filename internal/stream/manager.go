// Package stream owns the pool of live SSE price connections.
//
// The manager keeps at most K connections, one per leader address. Leaders
// are reconciled against the latest ordered top list: addresses that dropped
// out are disconnected, new ones are connected with a stagger to avoid
// upstream rate spikes. Failures back off exponentially per address
// (2s doubling to 60s); any successful frame clears the failure record.
// Decoded frames fan out to registered subscribers in socket arrival order.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dex-radar/internal/provider"
	"dex-radar/pkg/types"
)

const (
	defaultMaxConns   = 10
	defaultStagger    = 500 * time.Millisecond
	defaultMaxBackoff = 60 * time.Second
)

// PricePoint is the latest observed price for one address.
type PricePoint struct {
	Price          float64   `json:"price"`
	UpdatedAt      time.Time `json:"updated_at"`
	PriceTimestamp int64     `json:"price_timestamp"`
}

// Stats is a snapshot of the manager's connection table.
type Stats struct {
	Active     int `json:"active"`
	BackingOff int `json:"backing_off"`
	Frames     int `json:"frames"`
}

type failureRecord struct {
	failures     int
	backoffUntil time.Time
}

type connection struct {
	addr   string
	cancel context.CancelFunc
	stream provider.PriceStream
}

// Manager maintains the bounded SSE connection pool.
type Manager struct {
	opener   provider.Provider
	maxConns int
	stagger  time.Duration
	maxWait  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	conns    map[string]*connection
	leaders  map[string]bool // desired set, first K of the last reconcile
	prices   map[string]PricePoint
	failures map[string]*failureRecord
	frames   int

	cbMu      sync.RWMutex
	callbacks []func(types.PriceFrame)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a stream manager. Zero-valued limits fall back to the
// defaults (10 connections, 500ms stagger, 60s max backoff).
func NewManager(opener provider.Provider, maxConns int, stagger, maxBackoff time.Duration, logger *slog.Logger) *Manager {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if stagger <= 0 {
		stagger = defaultStagger
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opener:   opener,
		maxConns: maxConns,
		stagger:  stagger,
		maxWait:  maxBackoff,
		logger:   logger.With("component", "stream"),
		conns:    make(map[string]*connection),
		leaders:  make(map[string]bool),
		prices:   make(map[string]PricePoint),
		failures: make(map[string]*failureRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnPriceUpdate registers a fan-out sink called for every decoded frame.
// Register before the first UpdateLeaders; callbacks run on the read loop
// goroutine of the originating connection.
func (m *Manager) OnPriceUpdate(cb func(types.PriceFrame)) {
	m.cbMu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.cbMu.Unlock()
}

// UpdateLeaders reconciles the connection pool with the first K addresses of
// the ordered list: drops connections no longer present, then connects the
// missing ones with the configured stagger. Calling twice with the same list
// produces no churn.
func (m *Manager) UpdateLeaders(ordered []string) {
	if len(ordered) > m.maxConns {
		ordered = ordered[:m.maxConns]
	}

	desired := make(map[string]bool, len(ordered))
	for _, addr := range ordered {
		desired[addr] = true
	}

	m.mu.Lock()
	m.leaders = desired

	var toClose []*connection
	for addr, c := range m.conns {
		if !desired[addr] {
			toClose = append(toClose, c)
			delete(m.conns, addr)
		}
	}

	var missing []string
	for _, addr := range ordered {
		if _, ok := m.conns[addr]; !ok {
			missing = append(missing, addr)
		}
	}
	m.mu.Unlock()

	for _, c := range toClose {
		c.cancel()
		// The stream is nil while the slot-reserving dial is still in flight;
		// the cancel above aborts that dial.
		if c.stream != nil {
			c.stream.Close()
		}
		m.logger.Debug("leader disconnected", "address", c.addr)
	}

	if len(missing) == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for i, addr := range missing {
			if i > 0 {
				select {
				case <-m.ctx.Done():
					return
				case <-time.After(m.stagger):
				}
			}
			m.Connect(addr)
		}
	}()
}

// Connect opens a stream for addr. Returns false when the address is already
// connected, no longer a leader, at capacity, or inside its backoff window.
func (m *Manager) Connect(addr string) bool {
	m.mu.Lock()
	if _, ok := m.conns[addr]; ok {
		m.mu.Unlock()
		return false
	}
	if !m.leaders[addr] {
		m.mu.Unlock()
		return false
	}
	if len(m.conns) >= m.maxConns {
		m.mu.Unlock()
		return false
	}
	if f, ok := m.failures[addr]; ok && time.Now().Before(f.backoffUntil) {
		m.mu.Unlock()
		m.logger.Debug("connect skipped, backing off", "address", addr)
		return false
	}
	// Reserve the slot before the blocking dial.
	connCtx, cancel := context.WithCancel(m.ctx)
	c := &connection{addr: addr, cancel: cancel}
	m.conns[addr] = c
	m.mu.Unlock()

	stream, err := m.opener.OpenPriceStream(connCtx, addr)
	if err != nil {
		cancel()
		m.mu.Lock()
		delete(m.conns, addr)
		m.mu.Unlock()
		m.recordFailure(addr, err)
		return false
	}

	m.mu.Lock()
	if m.conns[addr] != c {
		// Reconciled away while the dial was in flight.
		m.mu.Unlock()
		cancel()
		stream.Close()
		return false
	}
	c.stream = stream
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readLoop(c)
	}()

	m.logger.Debug("leader connected", "address", addr)
	return true
}

// Disconnect tears down the stream for addr and removes its state.
func (m *Manager) Disconnect(addr string) {
	m.mu.Lock()
	c, ok := m.conns[addr]
	if ok {
		delete(m.conns, addr)
	}
	delete(m.leaders, addr)
	m.mu.Unlock()

	if ok {
		c.cancel()
		if c.stream != nil {
			c.stream.Close()
		}
	}
}

// DisconnectAll closes every connection and waits for the read loops.
func (m *Manager) DisconnectAll() {
	m.cancel()

	m.mu.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*connection)
	m.leaders = make(map[string]bool)
	m.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		if c.stream != nil {
			c.stream.Close()
		}
	}
	m.wg.Wait()
}

// GetPrice returns the latest price point for addr, if any frame arrived.
func (m *Manager) GetPrice(addr string) (PricePoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[addr]
	return p, ok
}

// AllPrices returns a copy of the full price table.
func (m *Manager) AllPrices() map[string]PricePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]PricePoint, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

// ActiveAddresses returns the currently connected leader addresses.
func (m *Manager) ActiveAddresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.conns))
	for addr := range m.conns {
		out = append(out, addr)
	}
	return out
}

// GetStats snapshots connection counts.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	backing := 0
	for _, f := range m.failures {
		if now.Before(f.backoffUntil) {
			backing++
		}
	}
	return Stats{Active: len(m.conns), BackingOff: backing, Frames: m.frames}
}

func (m *Manager) readLoop(c *connection) {
	for {
		frame, err := c.stream.Recv()
		if err != nil {
			m.mu.Lock()
			stillOurs := m.conns[c.addr] == c
			if stillOurs {
				delete(m.conns, c.addr)
			}
			m.mu.Unlock()

			c.cancel()
			if m.ctx.Err() == nil && stillOurs {
				m.recordFailure(c.addr, err)
			}
			return
		}

		m.mu.Lock()
		delete(m.failures, c.addr)
		m.prices[c.addr] = PricePoint{
			Price:          frame.Price,
			UpdatedAt:      time.Now(),
			PriceTimestamp: frame.PriceTimestamp,
		}
		m.frames++
		m.mu.Unlock()

		m.cbMu.RLock()
		cbs := m.callbacks
		m.cbMu.RUnlock()
		for _, cb := range cbs {
			cb(frame)
		}
	}
}

// recordFailure bumps the per-address failure count, sets the backoff window
// (min(2^failures seconds, max)), and schedules a retry once it elapses if
// the address is still a leader.
func (m *Manager) recordFailure(addr string, err error) {
	m.mu.Lock()
	f, ok := m.failures[addr]
	if !ok {
		f = &failureRecord{}
		m.failures[addr] = f
	}
	f.failures++
	wait := m.maxWait
	if f.failures < 10 {
		if d := time.Duration(1<<uint(f.failures)) * time.Second; d < wait {
			wait = d
		}
	}
	f.backoffUntil = time.Now().Add(wait)
	failures := f.failures
	m.mu.Unlock()

	m.logger.Warn("stream failure", "address", addr, "failures", failures, "backoff", wait, "error", err)

	time.AfterFunc(wait, func() {
		if m.ctx.Err() != nil {
			return
		}
		m.Connect(addr)
	})
}
