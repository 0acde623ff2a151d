package tictactoe

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewWithClient(rdb, nil)
	return NewManager(st, nil), st
}

func seedUser(t *testing.T, st *store.Store, id string, gold int64) {
	t.Helper()
	u := domain.NewUserRecord(id)
	u.Gold = gold
	if err := st.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func startGame(t *testing.T, m *Manager, st *store.Store, wager int64) *domain.TTTGame {
	t.Helper()
	ctx := context.Background()
	seedUser(t, st, "alice", 500)
	seedUser(t, st, "bob", 500)
	g, err := m.Create(ctx, "alice", "bob", wager)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	g, err = m.Join(ctx, g.ID, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return g
}

func TestCreateRejectsSelfPlay(t *testing.T) {
	m, st := newTestManager(t)
	seedUser(t, st, "alice", 500)
	if _, err := m.Create(context.Background(), "alice", "alice", 0); !errors.Is(err, domain.ErrSelfPlay) {
		t.Fatalf("want ErrSelfPlay, got %v", err)
	}
}

func TestCreateRejectsUnderfundedWager(t *testing.T) {
	m, st := newTestManager(t)
	seedUser(t, st, "alice", 500)
	seedUser(t, st, "bob", 50)
	_, err := m.Create(context.Background(), "alice", "bob", 100)
	if !domain.IsInsufficientFunds(err) {
		t.Fatalf("want insufficient funds, got %v", err)
	}
}

func TestJoinOnlyParticipants(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	seedUser(t, st, "alice", 500)
	seedUser(t, st, "bob", 500)
	g, err := m.Create(ctx, "alice", "bob", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Join(ctx, g.ID, "mallory"); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
}

func TestMoveEnforcesTurnAndOccupancy(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	g := startGame(t, m, st, 0)

	if _, err := m.Move(ctx, g.ID, "bob", 1); !errors.Is(err, domain.ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
	if _, err := m.Move(ctx, g.ID, "alice", 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := m.Move(ctx, g.ID, "bob", 1); !errors.Is(err, domain.ErrPositionTaken) {
		t.Fatalf("want ErrPositionTaken, got %v", err)
	}
	if _, err := m.Move(ctx, g.ID, "bob", 10); !errors.Is(err, domain.ErrPositionRange) {
		t.Fatalf("want ErrPositionRange, got %v", err)
	}
}

func TestWinTransfersWager(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	g := startGame(t, m, st, 100)

	// X takes the top row.
	moves := []struct {
		actor string
		pos   int
	}{
		{"alice", 1}, {"bob", 4},
		{"alice", 2}, {"bob", 5},
	}
	for _, mv := range moves {
		if _, err := m.Move(ctx, g.ID, mv.actor, mv.pos); err != nil {
			t.Fatalf("move %s %d: %v", mv.actor, mv.pos, err)
		}
	}
	res, err := m.Move(ctx, g.ID, "alice", 3)
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}
	if !res.Finished || res.Game.Winner != "alice" || res.Game.Outcome != "x" {
		t.Fatalf("unexpected result: %+v", res.Game)
	}
	if !res.Transferred {
		t.Fatalf("expected wager transfer")
	}

	alice, _ := st.GetUser(ctx, "alice")
	bob, _ := st.GetUser(ctx, "bob")
	if alice.Gold != 600 || bob.Gold != 400 {
		t.Fatalf("gold after win: alice=%d bob=%d", alice.Gold, bob.Gold)
	}
}

func TestDrawTransfersNothing(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	g := startGame(t, m, st, 100)

	// X X O / O O X / X O X leaves no line for either side.
	moves := []struct {
		actor string
		pos   int
	}{
		{"alice", 1}, {"bob", 3},
		{"alice", 2}, {"bob", 4},
		{"alice", 6}, {"bob", 5},
		{"alice", 7}, {"bob", 8},
	}
	for _, mv := range moves {
		if _, err := m.Move(ctx, g.ID, mv.actor, mv.pos); err != nil {
			t.Fatalf("move %s %d: %v", mv.actor, mv.pos, err)
		}
	}
	res, err := m.Move(ctx, g.ID, "alice", 9)
	if err != nil {
		t.Fatalf("final move: %v", err)
	}
	if !res.Draw || res.Game.Outcome != "draw" {
		t.Fatalf("expected draw, got %+v", res.Game)
	}
	if res.Transferred {
		t.Fatalf("draw must not transfer the wager")
	}

	alice, _ := st.GetUser(ctx, "alice")
	bob, _ := st.GetUser(ctx, "bob")
	if alice.Gold != 500 || bob.Gold != 500 {
		t.Fatalf("gold after draw: alice=%d bob=%d", alice.Gold, bob.Gold)
	}
}

func TestPoorLoserKeepsGold(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	g := startGame(t, m, st, 100)

	// Bob spends his gold mid-game; no escrow exists, so the win pays nothing.
	if _, err := st.UpdateUser(ctx, "bob", func(u *domain.UserRecord) error {
		u.Gold = 30
		return nil
	}); err != nil {
		t.Fatalf("drain bob: %v", err)
	}

	moves := []struct {
		actor string
		pos   int
	}{
		{"alice", 1}, {"bob", 4},
		{"alice", 2}, {"bob", 5},
	}
	for _, mv := range moves {
		if _, err := m.Move(ctx, g.ID, mv.actor, mv.pos); err != nil {
			t.Fatalf("move: %v", err)
		}
	}
	res, err := m.Move(ctx, g.ID, "alice", 3)
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}
	if res.Transferred {
		t.Fatalf("transfer should be skipped for an underfunded loser")
	}
	bob, _ := st.GetUser(ctx, "bob")
	if bob.Gold != 30 {
		t.Fatalf("bob gold changed: %d", bob.Gold)
	}
}

func TestForfeitAwardsOpponent(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	g := startGame(t, m, st, 50)

	res, err := m.Forfeit(ctx, g.ID, "alice")
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if res.Game.Winner != "bob" || res.Game.Outcome != "forfeit" {
		t.Fatalf("unexpected forfeit result: %+v", res.Game)
	}
	if !res.Transferred {
		t.Fatalf("expected wager transfer on forfeit")
	}
	if _, err := m.Forfeit(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrInvalidGameState) {
		t.Fatalf("want ErrInvalidGameState on ended game, got %v", err)
	}
}

func TestMoveOnWaitingGame(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	seedUser(t, st, "alice", 500)
	seedUser(t, st, "bob", 500)
	g, err := m.Create(ctx, "alice", "bob", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Move(ctx, g.ID, "alice", 1); !errors.Is(err, domain.ErrInvalidGameState) {
		t.Fatalf("want ErrInvalidGameState, got %v", err)
	}
}

func TestGetMissingGame(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("want ErrGameNotFound, got %v", err)
	}
}

func TestRenderBoard(t *testing.T) {
	var b [9]domain.Mark
	b[0] = domain.MarkX
	b[4] = domain.MarkO
	out := RenderBoard(b)
	if out == "" {
		t.Fatal("empty render")
	}
	lines := 1
	for _, r := range out {
		if r == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Fatalf("want 3 rows, got %d", lines)
	}
}
