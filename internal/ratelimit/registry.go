package ratelimit

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/keystone-cm/filedesk/internal/constants"
)

// Scope identifies a group of endpoints that share one token bucket.
type Scope string

const (
	// ScopeRead covers listings, permission lists and download URLs.
	ScopeRead Scope = "read"

	// ScopeWrite covers create, rename, move, delete, star and permission changes.
	ScopeWrite Scope = "write"
)

// ScopeConfig holds the rate limit configuration for a single scope.
type ScopeConfig struct {
	Scope         Scope
	RatePerSec    float64
	BurstCapacity float64
}

// EndpointRule maps an API endpoint pattern to its scope.
// Rules are matched in order of specificity: longer patterns and method-specific
// rules take precedence over shorter/wildcard ones.
type EndpointRule struct {
	// Pattern is a path fragment matched with strings.Contains.
	Pattern string

	// Method is the HTTP method to match, or "" for any method.
	Method string

	Scope Scope
}

// specificity returns a score for rule precedence. Higher = more specific.
func (r EndpointRule) specificity() int {
	score := len(r.Pattern)
	if r.Method != "" {
		score += 1000
	}
	return score
}

// Registry maps endpoints to scopes and owns one limiter per scope.
type Registry struct {
	rules        []EndpointRule
	scopeConfigs map[Scope]ScopeConfig
	limiters     map[Scope]*RateLimiter
	defaultScope Scope
}

// NewRegistry creates a registry with the given sustained rates.
// Non-positive values fall back to the defaults in the constants package.
func NewRegistry(readRate, writeRate float64) *Registry {
	if readRate <= 0 {
		readRate = constants.ReadRatePerSecond
	}
	if writeRate <= 0 {
		writeRate = constants.WriteRatePerSecond
	}

	r := &Registry{
		defaultScope: ScopeWrite,
		scopeConfigs: map[Scope]ScopeConfig{
			ScopeRead:  {Scope: ScopeRead, RatePerSec: readRate, BurstCapacity: constants.ReadBurst},
			ScopeWrite: {Scope: ScopeWrite, RatePerSec: writeRate, BurstCapacity: constants.WriteBurst},
		},
		limiters: make(map[Scope]*RateLimiter),
	}

	// The permission endpoints live under /files/ too, so their rules must
	// outrank the generic GET rule.
	r.rules = []EndpointRule{
		{Pattern: "/files", Method: http.MethodGet, Scope: ScopeRead},
		{Pattern: "/files", Method: http.MethodHead, Scope: ScopeRead},
		{Pattern: "/files/permissions/list/", Method: "", Scope: ScopeRead},
		{Pattern: "/files/permissions/assign", Method: "", Scope: ScopeWrite},
		{Pattern: "/files/permissions/remove", Method: "", Scope: ScopeWrite},
	}

	sort.Slice(r.rules, func(i, j int) bool {
		return r.rules[i].specificity() > r.rules[j].specificity()
	})

	for scope, cfg := range r.scopeConfigs {
		rl := NewRateLimiter(cfg.RatePerSec, cfg.BurstCapacity)
		rl.name = string(scope)
		r.limiters[scope] = rl
	}

	return r
}

// ResolveScope determines the scope for a given HTTP method and path.
// Anything unmatched is treated as a write.
func (r *Registry) ResolveScope(method, path string) Scope {
	for _, rule := range r.rules {
		if !strings.Contains(path, rule.Pattern) {
			continue
		}
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		return rule.Scope
	}
	return r.defaultScope
}

// Limiter returns the limiter for a scope.
func (r *Registry) Limiter(scope Scope) *RateLimiter {
	if rl, ok := r.limiters[scope]; ok {
		return rl
	}
	return r.limiters[r.defaultScope]
}

// LimiterFor resolves the scope for a request and returns its limiter.
func (r *Registry) LimiterFor(method, path string) (*RateLimiter, Scope) {
	scope := r.ResolveScope(method, path)
	return r.Limiter(scope), scope
}

// GetScopeConfig returns the rate limit configuration for a scope.
func (r *Registry) GetScopeConfig(scope Scope) ScopeConfig {
	if cfg, ok := r.scopeConfigs[scope]; ok {
		return cfg
	}
	return r.scopeConfigs[r.defaultScope]
}

// ScopeDisplayString returns a human-readable description of the scope for logging.
func (r *Registry) ScopeDisplayString(scope Scope) string {
	cfg, ok := r.scopeConfigs[scope]
	if !ok {
		return string(scope) + " (unknown scope)"
	}
	return fmt.Sprintf("%s (%.1f/sec, burst %.0f)", scope, cfg.RatePerSec, cfg.BurstCapacity)
}
