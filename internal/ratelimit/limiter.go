package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Config holds the two-tier cooldown table and the warn/ban policy. No token
// buckets: commands are human-paced, so last-timestamp comparison is enough.
type Config struct {
	GlobalCooldown  time.Duration
	DefaultCooldown time.Duration
	PerCommand      map[string]time.Duration
	MaxWarnings     int
	BanDuration     time.Duration
	WarnResetWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		GlobalCooldown:  time.Second,
		DefaultCooldown: 500 * time.Millisecond,
		PerCommand: map[string]time.Duration{
			"hunt":   5 * time.Second,
			"fish":   5 * time.Second,
			"battle": 10 * time.Second,
			"ttt":    time.Second,
			"subbot": 3 * time.Second,
		},
		MaxWarnings:     3,
		BanDuration:     time.Hour,
		WarnResetWindow: 24 * time.Hour,
	}
}

func (c Config) cooldownFor(cmd string) time.Duration {
	if d, ok := c.PerCommand[cmd]; ok {
		return d
	}
	return c.DefaultCooldown
}

// Decision is the outcome of the spam gate for one (user, command) pair.
type Decision struct {
	Allowed bool
	// Wait is the remaining cooldown when the decline is a rate limit.
	Wait time.Duration
	// Ban is set when the decline is an active ban.
	Ban *domain.Ban
}

// Limiter enforces the per-user global cooldown, per-command cooldowns and
// the warn-then-ban escalation. State is persisted synchronously so a restart
// does not reset cooldowns.
type Limiter struct {
	rdb    *redis.Client
	cfg    Config
	clk    Clock
	logger *zap.Logger
}

func New(rdb *redis.Client, cfg Config, clk Clock, logger *zap.Logger) *Limiter {
	if clk == nil {
		clk = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = 3
	}
	return &Limiter{rdb: rdb, cfg: cfg, clk: clk, logger: logger}
}

func spamKey(user string) string { return "spam:user:" + strings.TrimSpace(user) }

// Check decides whether the (user, command) pair may execute right now.
// Expired bans are evicted as a side effect of being observed.
func (l *Limiter) Check(ctx context.Context, user, cmd string) (Decision, error) {
	now := l.clk.Now()
	st, err := l.getState(ctx, user)
	if err != nil {
		return Decision{}, err
	}

	if st.Ban != nil {
		if !st.Ban.Expired(now) {
			return Decision{Ban: st.Ban}, nil
		}
		if err := l.updateState(ctx, user, func(cur *domain.RateLimitState) error {
			if cur.Ban.Expired(now) {
				cur.Ban = nil
			}
			return nil
		}); err != nil {
			return Decision{}, err
		}
	}

	if wait := l.cfg.GlobalCooldown - now.Sub(st.LastCommandAt); wait > 0 {
		return Decision{Wait: wait}, nil
	}
	last := st.PerCommand[cmd]
	if wait := l.cfg.cooldownFor(cmd) - now.Sub(last); wait > 0 {
		return Decision{Wait: wait}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordCommand marks an accepted execution, updating both the global and the
// per-command timestamps. Must be called exactly once per accepted execution.
func (l *Limiter) RecordCommand(ctx context.Context, user, cmd string) error {
	now := l.clk.Now()
	return l.updateState(ctx, user, func(st *domain.RateLimitState) error {
		st.LastCommandAt = now
		if st.PerCommand == nil {
			st.PerCommand = map[string]time.Time{}
		}
		st.PerCommand[cmd] = now
		return nil
	})
}

// WarnResult reports the warning count after an AddWarning call and whether
// it tipped the user into a ban.
type WarnResult struct {
	Warnings    int
	MaxWarnings int
	Banned      bool
	BanExpires  time.Time
}

// AddWarning issues a strike. Warnings older than the reset window are
// dropped from the active count first; reaching the maximum issues a ban
// without clearing the list.
func (l *Limiter) AddWarning(ctx context.Context, user, reason string) (WarnResult, error) {
	now := l.clk.Now()
	var res WarnResult
	err := l.updateState(ctx, user, func(st *domain.RateLimitState) error {
		active := st.Warnings[:0]
		for _, w := range st.Warnings {
			if now.Sub(w.At) <= l.cfg.WarnResetWindow {
				active = append(active, w)
			}
		}
		active = append(active, domain.Warning{Reason: reason, At: now})
		st.Warnings = active

		res = WarnResult{Warnings: len(active), MaxWarnings: l.cfg.MaxWarnings}
		if len(active) >= l.cfg.MaxWarnings {
			st.Ban = &domain.Ban{
				Reason:       "too many warnings: " + reason,
				IssuedAt:     now,
				ExpiresAt:    now.Add(l.cfg.BanDuration),
				WarningCount: len(active),
			}
			res.Banned = true
			res.BanExpires = st.Ban.ExpiresAt
		}
		return nil
	})
	if err != nil {
		return WarnResult{}, err
	}
	if res.Banned {
		l.logger.Info("user banned",
			zap.String("user_id", user),
			zap.String("reason", reason),
			zap.Time("expires_at", res.BanExpires),
		)
	}
	return res, nil
}

// RemoveWarnings clears the warning list (admin action).
func (l *Limiter) RemoveWarnings(ctx context.Context, user string) error {
	return l.updateState(ctx, user, func(st *domain.RateLimitState) error {
		st.Warnings = nil
		return nil
	})
}

// Unban lifts an active ban, reporting whether one existed.
func (l *Limiter) Unban(ctx context.Context, user string) (bool, error) {
	had := false
	err := l.updateState(ctx, user, func(st *domain.RateLimitState) error {
		had = st.Ban != nil && !st.Ban.Expired(l.clk.Now())
		st.Ban = nil
		return nil
	})
	return had, err
}

// Reset drops all spam bookkeeping for a user (admin action).
func (l *Limiter) Reset(ctx context.Context, user string) error {
	if err := l.rdb.Del(ctx, spamKey(user)).Err(); err != nil {
		return &domain.StorageError{Op: "reset spam state", Err: err}
	}
	return nil
}

// Stats returns the admin read model for a user.
func (l *Limiter) Stats(ctx context.Context, user string) (domain.SpamStats, error) {
	now := l.clk.Now()
	st, err := l.getState(ctx, user)
	if err != nil {
		return domain.SpamStats{}, err
	}
	active := 0
	for _, w := range st.Warnings {
		if now.Sub(w.At) <= l.cfg.WarnResetWindow {
			active++
		}
	}
	out := domain.SpamStats{
		LastCommandAt: st.LastCommandAt,
		Warnings:      active,
		MaxWarnings:   l.cfg.MaxWarnings,
	}
	if st.Ban != nil && !st.Ban.Expired(now) {
		out.Banned = true
		out.Ban = st.Ban
	}
	return out, nil
}

func (l *Limiter) getState(ctx context.Context, user string) (*domain.RateLimitState, error) {
	raw, err := l.rdb.Get(ctx, spamKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &domain.RateLimitState{}, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get spam state", Err: err}
	}
	var st domain.RateLimitState
	if err := json.Unmarshal(raw, &st); err != nil {
		l.logger.Warn("corrupt spam state, starting fresh", zap.String("user_id", user), zap.Error(err))
		return &domain.RateLimitState{}, nil
	}
	return &st, nil
}

func (l *Limiter) updateState(ctx context.Context, user string, fn func(*domain.RateLimitState) error) error {
	key := spamKey(user)
	for attempt := 0; attempt < 5; attempt++ {
		err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var st domain.RateLimitState
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return &domain.StorageError{Op: "get spam state", Err: err}
			}
			if err == nil {
				if jerr := json.Unmarshal(raw, &st); jerr != nil {
					l.logger.Warn("corrupt spam state, starting fresh",
						zap.String("user_id", user), zap.Error(jerr))
					st = domain.RateLimitState{}
				}
			}
			if err := fn(&st); err != nil {
				return err
			}
			out, err := json.Marshal(&st)
			if err != nil {
				return &domain.StorageError{Op: "encode spam state", Err: err}
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, out, 0)
			if _, err := pipe.Exec(ctx); err != nil {
				if errors.Is(err, redis.TxFailedErr) {
					return err
				}
				return &domain.StorageError{Op: "save spam state", Err: err}
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return &domain.StorageError{Op: "save spam state", Err: redis.TxFailedErr}
}
