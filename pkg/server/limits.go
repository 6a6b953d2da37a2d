package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/danl5/govotifier/pkg/config"
)

const (
	// limiterCleanupInterval is how often idle per address rate limiters are dropped
	limiterCleanupInterval = 5 * time.Minute
	// limiterIdleTime is how long a rate limiter is kept without connections
	limiterIdleTime = 10 * time.Minute
)

// LimitReason describes why a connection was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits caps concurrent connections globally and per address and
// rate limits new connections per address. A zero setting disables that limit.
type ConnectionLimits struct {
	maxTotal int64
	current  atomic.Int64

	maxPerIP int
	rate     rate.Limit
	burst    int

	mu        sync.Mutex
	perIP     map[string]int
	limiters  map[string]*rateLimiterEntry
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewConnectionLimits returns nil when every limit is disabled.
func NewConnectionLimits(cfg config.LimitsConfig) *ConnectionLimits {
	if cfg.MaxConnections == 0 && cfg.MaxConnectionsPerIP == 0 && cfg.ConnectionRate == 0 {
		return nil
	}
	return &ConnectionLimits{
		maxTotal:  cfg.MaxConnections,
		maxPerIP:  cfg.MaxConnectionsPerIP,
		rate:      rate.Limit(cfg.ConnectionRate),
		burst:     cfg.ConnectionBurst,
		perIP:     make(map[string]int),
		limiters:  make(map[string]*rateLimiterEntry),
		cleanupAt: time.Now().Add(limiterCleanupInterval),
	}
}

// Acquire takes a connection slot for ip. On success Release must be called
// once the connection is done.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if l.rate > 0 && !l.allow(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	if l.maxPerIP > 0 {
		l.mu.Lock()
		if l.perIP[ip] >= l.maxPerIP {
			l.mu.Unlock()
			l.releaseGlobal()
			return false, LimitReasonPerIP
		}
		l.perIP[ip]++
		l.mu.Unlock()
	}
	return true, ""
}

// Release gives back the slot taken by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	if l.maxPerIP > 0 {
		l.mu.Lock()
		if count := l.perIP[ip]; count > 1 {
			l.perIP[ip] = count - 1
		} else {
			delete(l.perIP, ip)
		}
		l.mu.Unlock()
	}
	l.releaseGlobal()
}

// Current returns the number of connections holding a slot.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if l.maxTotal > 0 && current >= l.maxTotal {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) releaseGlobal() {
	l.current.Add(-1)
}

func (l *ConnectionLimits) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-limiterIdleTime)
		for addr, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, addr)
			}
		}
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// remoteIP returns the host part of a remote address.
func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
