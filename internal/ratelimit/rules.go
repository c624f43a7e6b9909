package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/workout-ledger/pkg/config"
)

// Scope selects which configured rule applies.
type Scope string

const (
	// ScopeClient limits all requests of one web client address.
	ScopeClient Scope = "client"
	// ScopeUser limits all requests of one ledger user.
	ScopeUser Scope = "user"
	// ScopeMutation limits workout, skip and rename calls of one ledger user.
	ScopeMutation Scope = "mutation"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config    config.RateLimitConfig
	whitelist map[string]struct{}
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, subject := range cfg.Whitelist {
		whitelist[subject] = struct{}{}
	}

	return &Rules{config: cfg, whitelist: whitelist}
}

// Enabled reports whether limits are enforced at all.
func (r *Rules) Enabled() bool {
	return r.config.Enabled
}

// IsWhitelisted returns true if the subject (client address, user id or Telegram id) bypasses rate limits.
func (r *Rules) IsWhitelisted(subject string) bool {
	_, ok := r.whitelist[subject]
	return ok
}

// Limit returns the limit and window configured for scope.
func (r *Rules) Limit(scope Scope) (int, time.Duration, error) {
	switch scope {
	case ScopeClient:
		return parseRule(r.config.PerClient)
	case ScopeUser:
		return parseRule(r.config.PerUser)
	case ScopeMutation:
		return parseRule(r.config.Mutations)
	default:
		return 0, 0, fmt.Errorf("unsupported rate limit scope %q", scope)
	}
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Limit == 0 {
		return 0, 0, nil
	}
	if rule.Window == "" {
		return rule.Limit, 0, fmt.Errorf("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, fmt.Errorf("parse window %q: %w", rule.Window, err)
	}
	return rule.Limit, window, nil
}
