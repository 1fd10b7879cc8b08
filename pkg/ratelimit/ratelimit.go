// Package ratelimit is an in-memory sliding-window rate limiter, keyed by
// agent and by service.
package ratelimit

import (
	"sync"
	"time"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// Policy is a requests-per-window limit.
type Policy struct {
	Requests int
	Window   time.Duration
}

const (
	agentPrefix   = "agent:"
	servicePrefix = "service:"
)

// defaultAgentPolicy applies to every agent; an agent's own RateLimit field
// is not consulted.
var defaultAgentPolicy = Policy{Requests: 200, Window: 60 * time.Second}

// defaultServicePolicy applies to any service with no specific policy.
var defaultServicePolicy = Policy{Requests: 100, Window: 60 * time.Second}

// servicePolicies are the per-service overrides the core ships with. They
// are fixed package-level values; a Limiter has no option to replace them.
var servicePolicies = map[string]Policy{
	"payment": {Requests: 100, Window: 60 * time.Second},
	"bank":    {Requests: 50, Window: 60 * time.Second},
}

// Limiter is a sliding-window counter: a map from key to an ordered list of
// request timestamps, guarded by a single mutex.
type Limiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{hits: make(map[string][]time.Time)}
}

// CheckAgent applies the default agent policy to agentID.
func (l *Limiter) CheckAgent(agentID string) error {
	return l.Check(agentPrefix+agentID, defaultAgentPolicy)
}

// CheckService applies serviceID's configured policy, falling back to the
// default service policy if none is configured.
func (l *Limiter) CheckService(serviceID string) error {
	policy, ok := servicePolicies[serviceID]
	if !ok {
		policy = defaultServicePolicy
	}
	return l.Check(servicePrefix+serviceID, policy)
}

// Check admits or rejects one request against key under policy:
//  1. compute window_start = now - policy.Window
//  2. acquire the lock
//  3. drop timestamps at or before window_start
//  4. if the remaining count >= policy.Requests, reject
//  5. otherwise append now and admit
func (l *Limiter) Check(key string, policy Policy) error {
	now := time.Now()
	windowStart := now.Add(-policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := dropExpired(l.hits[key], windowStart)

	if len(kept) >= policy.Requests {
		l.hits[key] = kept
		return gatewayerr.RateLimitExceeded()
	}

	l.hits[key] = append(kept, now)
	return nil
}

// Remaining is a read-side snapshot of the available budget for key under
// policy, without mutating state.
func (l *Limiter) Remaining(key string, policy Policy) int {
	now := time.Now()
	windowStart := now.Add(-policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := dropExpired(l.hits[key], windowStart)

	remaining := policy.Requests - len(kept)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// dropExpired returns the suffix of timestamps strictly after windowStart.
// Timestamps are appended in increasing order, so the survivors are a
// contiguous suffix.
func dropExpired(timestamps []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(windowStart) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]time.Time{}, timestamps[i:]...)
}
