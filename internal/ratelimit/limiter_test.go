package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(rdb, cfg, clk, nil), clk
}

func mustAllow(t *testing.T, l *Limiter, user, cmd string) {
	t.Helper()
	dec, err := l.Check(context.Background(), user, cmd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow, got wait=%v ban=%v", dec.Wait, dec.Ban)
	}
	if err := l.RecordCommand(context.Background(), user, cmd); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestGlobalCooldown(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	mustAllow(t, l, "alice", "profile")

	clk.advance(500 * time.Millisecond)
	dec, err := l.Check(ctx, "alice", "stats")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatal("500ms after a command should be rejected by the 1s global cooldown")
	}
	if dec.Wait <= 0 || dec.Wait > 500*time.Millisecond {
		t.Fatalf("wait = %v", dec.Wait)
	}

	clk.advance(500 * time.Millisecond)
	dec, err = l.Check(ctx, "alice", "stats")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("1000ms after a command should pass, wait=%v", dec.Wait)
	}
}

func TestPerCommandCooldown(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	mustAllow(t, l, "alice", "hunt")

	// global cooldown has passed but hunt's own 5s window has not
	clk.advance(2 * time.Second)
	dec, err := l.Check(ctx, "alice", "hunt")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatal("hunt should still be cooling down")
	}

	// a different command is fine
	dec, err = l.Check(ctx, "alice", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("profile should pass, wait=%v", dec.Wait)
	}

	clk.advance(3 * time.Second)
	dec, err = l.Check(ctx, "alice", "hunt")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("hunt cooldown should be over, wait=%v", dec.Wait)
	}
}

func TestCooldownsAreIndependentPerUser(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())

	mustAllow(t, l, "alice", "profile")

	dec, err := l.Check(context.Background(), "bob", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatal("one user's cooldown must not affect another")
	}
}

func TestWarningsEscalateToBan(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.AddWarning(ctx, "spammer", "flood")
		if err != nil {
			t.Fatalf("warn: %v", err)
		}
		if res.Banned {
			t.Fatalf("banned after %d warnings", i+1)
		}
	}
	res, err := l.AddWarning(ctx, "spammer", "flood")
	if err != nil {
		t.Fatalf("warn: %v", err)
	}
	if !res.Banned || res.Warnings != 3 {
		t.Fatalf("expected ban at 3 warnings, got %+v", res)
	}
	if got, want := res.BanExpires, clk.now.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("ban expiry = %v, want %v", got, want)
	}

	dec, err := l.Check(ctx, "spammer", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed || dec.Ban == nil {
		t.Fatalf("banned user passed the gate: %+v", dec)
	}
}

func TestExpiredWarningsDoNotCompound(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	if _, err := l.AddWarning(ctx, "alice", "old"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if _, err := l.AddWarning(ctx, "alice", "old"); err != nil {
		t.Fatalf("warn: %v", err)
	}

	// past the 24h reset window the old strikes stop counting
	clk.advance(25 * time.Hour)
	res, err := l.AddWarning(ctx, "alice", "new")
	if err != nil {
		t.Fatalf("warn: %v", err)
	}
	if res.Banned || res.Warnings != 1 {
		t.Fatalf("expired warnings compounded: %+v", res)
	}
}

func TestBanExpiresLazily(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.AddWarning(ctx, "alice", "flood"); err != nil {
			t.Fatalf("warn: %v", err)
		}
	}
	dec, err := l.Check(ctx, "alice", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatal("expected active ban")
	}

	clk.advance(61 * time.Minute)
	dec, err = l.Check(ctx, "alice", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("ban should have expired, got %+v", dec)
	}

	st, err := l.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Banned {
		t.Fatal("expired ban still reported")
	}
}

func TestUnban(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	had, err := l.Unban(ctx, "alice")
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if had {
		t.Fatal("unban reported a ban that never existed")
	}

	for i := 0; i < 3; i++ {
		if _, err := l.AddWarning(ctx, "alice", "flood"); err != nil {
			t.Fatalf("warn: %v", err)
		}
	}
	had, err = l.Unban(ctx, "alice")
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if !had {
		t.Fatal("unban missed the active ban")
	}

	dec, err := l.Check(ctx, "alice", "profile")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("unbanned user still gated: %+v", dec)
	}
}

func TestRemoveWarnings(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	if _, err := l.AddWarning(ctx, "alice", "x"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if err := l.RemoveWarnings(ctx, "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	st, err := l.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Warnings != 0 {
		t.Fatalf("warnings = %d after removal", st.Warnings)
	}
}

func TestStatePersistsAcrossLimiters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	l1 := New(rdb, DefaultConfig(), clk, nil)
	mustAllow(t, l1, "alice", "profile")

	// a fresh limiter over the same backend sees the same cooldown
	l2 := New(rdb, DefaultConfig(), clk, nil)
	clk.advance(200 * time.Millisecond)
	dec, err := l2.Check(context.Background(), "alice", "stats")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.Allowed {
		t.Fatal("cooldown state did not survive a restart")
	}
}
