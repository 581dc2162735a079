/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock provides the current time. It can be replaced in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type clientEntry struct {
	count          int
	windowStart    time.Time
	windowEnd      time.Time
	firstRequestAt time.Time
	lastRequestAt  time.Time
	blockedCount   int64
}

type limitGrant struct {
	extra     int
	expiresAt time.Time
}

// Limiter is a per-identity fixed-window rate limiter.
// All operations are in-memory, non-blocking and safe for concurrent use.
type Limiter struct {
	maxRequests int
	windowSize  time.Duration
	maxKeys     int

	mu          sync.RWMutex
	clients     map[string]*clientEntry
	grants      map[string]limitGrant
	totalCount  int64
	blockedCnt  int64
	peakClients int

	clock            Clock
	metricsCollector MetricsCollector
}

// Opts represents options for the Limiter.
type Opts struct {
	// Clock is a time source used for window accounting.
	// The system clock is used if nil.
	Clock Clock
}

// New creates a new Limiter with the provided configuration and metrics collector.
// Metrics collector may be nil, in this case metrics will be disabled.
func New(cfg *Config, metricsCollector MetricsCollector) (*Limiter, error) {
	return NewWithOpts(cfg, metricsCollector, Opts{})
}

// NewWithOpts creates a new Limiter with the provided configuration, metrics collector, and options.
func NewWithOpts(cfg *Config, metricsCollector MetricsCollector, opts Opts) (*Limiter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("maxRequests must be greater than 0")
	}
	windowSize := time.Duration(cfg.WindowSize)
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	if windowSize < 0 {
		return nil, fmt.Errorf("windowSize must be greater than 0")
	}
	maxKeys := cfg.MaxKeys
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	if maxKeys < 0 {
		return nil, fmt.Errorf("maxKeys must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Limiter{
		maxRequests:      cfg.MaxRequests,
		windowSize:       windowSize,
		maxKeys:          maxKeys,
		clients:          make(map[string]*clientEntry),
		grants:           make(map[string]limitGrant),
		clock:            clock,
		metricsCollector: metricsCollector,
	}, nil
}

// MaxRequests returns the configured per-window request ceiling.
func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}

// WindowSize returns the configured window length.
func (l *Limiter) WindowSize() time.Duration {
	return l.windowSize
}

// Allow is the single gating call: it atomically tests the identity's window
// counter against the effective ceiling and increments it. A missing or expired
// window is replaced by a fresh one with count 1. The call reports whether the
// request should be served.
func (l *Limiter) Allow(identity string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalCount++

	entry, ok := l.clients[identity]
	if !ok || !now.Before(entry.windowEnd) {
		if !ok {
			l.ensureCapacity(now)
			entry = &clientEntry{firstRequestAt: now}
			l.clients[identity] = entry
			if len(l.clients) > l.peakClients {
				l.peakClients = len(l.clients)
			}
			l.metricsCollector.SetActiveClients(len(l.clients))
		}
		entry.count = 1
		entry.windowStart = now
		entry.windowEnd = now.Add(l.windowSize)
		entry.lastRequestAt = now
		l.metricsCollector.IncAllowed()
		return true
	}

	if entry.count < l.effectiveLimit(identity, now) {
		entry.count++
		entry.lastRequestAt = now
		l.metricsCollector.IncAllowed()
		return true
	}

	entry.blockedCount++
	l.blockedCnt++
	l.metricsCollector.IncBlocked()
	return false
}

// RemainingRequests returns how many requests the identity may still issue
// within its current window. Identities without a live window get the full
// allowance. The call never mutates any counters.
func (l *Limiter) RemainingRequests(identity string) int {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := l.effectiveLimit(identity, now)
	entry, ok := l.clients[identity]
	if !ok || !now.Before(entry.windowEnd) {
		return limit
	}
	if remaining := limit - entry.count; remaining > 0 {
		return remaining
	}
	return 0
}

// ResetTime returns when the identity's current window resets.
// For identities without a live window, it is one window size from now.
func (l *Limiter) ResetTime(identity string) time.Time {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.clients[identity]
	if !ok || !now.Before(entry.windowEnd) {
		return now.Add(l.windowSize)
	}
	return entry.windowEnd
}

// ClientInfo is a diagnostic snapshot of a single identity's state.
type ClientInfo struct {
	Remaining   int       `json:"remaining"`
	ResetTime   time.Time `json:"resetTime"`
	WindowStart time.Time `json:"windowStart"`
	Requests    int       `json:"requests"`
	Blocked     int64     `json:"blocked"`
	RequestRate float64   `json:"requestRate"`
}

// ClientInfo returns a diagnostic snapshot for the identity.
// RequestRate is the number of requests in the current window divided by
// the elapsed window duration in seconds.
func (l *Limiter) ClientInfo(identity string) ClientInfo {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := l.effectiveLimit(identity, now)
	entry, ok := l.clients[identity]
	if !ok || !now.Before(entry.windowEnd) {
		return ClientInfo{
			Remaining: limit,
			ResetTime: now.Add(l.windowSize),
		}
	}
	info := ClientInfo{
		ResetTime:   entry.windowEnd,
		WindowStart: entry.windowStart,
		Requests:    entry.count,
		Blocked:     entry.blockedCount,
	}
	if remaining := limit - entry.count; remaining > 0 {
		info.Remaining = remaining
	}
	if elapsed := now.Sub(entry.windowStart).Seconds(); elapsed > 0 {
		info.RequestRate = float64(entry.count) / elapsed
	}
	return info
}

// Stats is an aggregate view of the limiter state.
type Stats struct {
	ActiveClients        int           `json:"activeClients"`
	TotalRequests        int64         `json:"totalRequests"`
	TotalBlocked         int64         `json:"totalBlocked"`
	BlockRatePercent     float64       `json:"blockRatePercent"`
	MaxRequests          int           `json:"maxRequests"`
	WindowSize           time.Duration `json:"windowSize"`
	AvgRequestsPerClient float64       `json:"avgRequestsPerClient"`
	PeakActiveClients    int           `json:"peakActiveClients"`
}

// Stats returns an aggregate snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		ActiveClients:     len(l.clients),
		TotalRequests:     l.totalCount,
		TotalBlocked:      l.blockedCnt,
		MaxRequests:       l.maxRequests,
		WindowSize:        l.windowSize,
		PeakActiveClients: l.peakClients,
	}
	if l.totalCount > 0 {
		s.BlockRatePercent = float64(l.blockedCnt) / float64(l.totalCount) * 100
	}
	if len(l.clients) > 0 {
		total := 0
		for _, entry := range l.clients {
			total += entry.count
		}
		s.AvgRequestsPerClient = float64(total) / float64(len(l.clients))
	}
	return s
}

// ResetClient forgets the identity's window, immediately restoring its full quota.
// It reports whether the identity was known.
func (l *Limiter) ResetClient(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[identity]; !ok {
		return false
	}
	delete(l.clients, identity)
	l.metricsCollector.SetActiveClients(len(l.clients))
	return true
}

// IncreaseLimit grants the identity extra requests on top of the configured ceiling
// until the grant expires. Non-positive duration defaults to one window size.
// A later grant replaces an earlier one.
func (l *Limiter) IncreaseLimit(identity string, extra int, duration time.Duration) {
	if extra <= 0 {
		return
	}
	if duration <= 0 {
		duration = l.windowSize
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.grants[identity] = limitGrant{extra: extra, expiresAt: now.Add(duration)}
}

// RunPeriodicSweep runs a cycle of periodic removal of expired windows and grants.
// It blocks until the context is canceled and is supposed to be run
// as a background worker (see service.PeriodicWorker).
func (l *Limiter) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Sweep removes all expired windows and grants and returns the number of removed windows.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, entry := range l.clients {
		if !now.Before(entry.windowEnd) {
			delete(l.clients, identity)
			removed++
		}
	}
	for identity, grant := range l.grants {
		if !now.Before(grant.expiresAt) {
			delete(l.grants, identity)
		}
	}
	if removed > 0 {
		l.metricsCollector.SetActiveClients(len(l.clients))
	}
	return removed
}

// effectiveLimit must be called with the lock held (read or write).
func (l *Limiter) effectiveLimit(identity string, now time.Time) int {
	limit := l.maxRequests
	if grant, ok := l.grants[identity]; ok && now.Before(grant.expiresAt) {
		limit += grant.extra
	}
	return limit
}

// ensureCapacity makes room for one more identity, first discarding expired
// windows and then, if the limiter is still full, the window closest to expiry.
// Must be called with the lock held.
func (l *Limiter) ensureCapacity(now time.Time) {
	if len(l.clients) < l.maxKeys {
		return
	}
	for identity, entry := range l.clients {
		if !now.Before(entry.windowEnd) {
			delete(l.clients, identity)
		}
	}
	for len(l.clients) >= l.maxKeys {
		var oldestIdentity string
		var oldestEnd time.Time
		for identity, entry := range l.clients {
			if oldestEnd.IsZero() || entry.windowEnd.Before(oldestEnd) {
				oldestIdentity = identity
				oldestEnd = entry.windowEnd
			}
		}
		delete(l.clients, oldestIdentity)
	}
}
