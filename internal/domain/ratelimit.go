package domain

import "time"

// Warning is one strike against a user. Warnings age out of the active count
// after the configured reset window.
type Warning struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Ban is a temporary command lockout. Expired bans are evicted lazily on the
// next observation rather than by a timer.
type Ban struct {
	Reason       string    `json:"reason"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	WarningCount int       `json:"warning_count"`
}

// Expired reports whether the ban is no longer in force at the given time.
func (b *Ban) Expired(now time.Time) bool {
	return b == nil || now.After(b.ExpiresAt)
}

// RateLimitState is the persisted per-user spam bookkeeping. The global
// timestamp and the per-command timestamps are separate fields so a command
// name can never collide with internal bookkeeping.
type RateLimitState struct {
	LastCommandAt time.Time            `json:"last_command_at"`
	PerCommand    map[string]time.Time `json:"per_command,omitempty"`
	Warnings      []Warning            `json:"warnings,omitempty"`
	Ban           *Ban                 `json:"ban,omitempty"`
}

// SpamStats is the read model returned to admin surfaces.
type SpamStats struct {
	LastCommandAt time.Time `json:"last_command_at"`
	Warnings      int       `json:"warnings"`
	MaxWarnings   int       `json:"max_warnings"`
	Banned        bool      `json:"banned"`
	Ban           *Ban      `json:"ban,omitempty"`
}
