package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, nil), mr
}

func TestGetUserReturnsStarterForUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	u, err := s.GetUser(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.ID != "fresh" || u.Level != 1 || u.Gold != 100 || u.HP != 100 {
		t.Fatalf("unexpected starter: %+v", u)
	}
	if u.Inventory == nil {
		t.Fatal("starter inventory is nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u := domain.NewUserRecord("alice")
	u.Name = "Alice"
	u.Level = 7
	u.Exp = 42
	u.NextLevelExp = 1852
	u.HP = 80
	u.MaxHP = 160
	u.Attack = 22
	u.Defense = 11
	u.Gold = 12345
	u.Potions = 3
	u.Bait = 9
	u.Inventory = map[string]int{"iron_sword": 1, "beef": 4}
	u.TotalHunts = 100
	u.TotalFishes = 50
	u.TotalBattles = 25
	u.CreatedAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	u.LastActiveAt = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(u, got) {
		t.Fatalf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", u, got)
	}
}

func TestUpdateUserPersistsMutation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	out, err := s.UpdateUser(ctx, "alice", func(u *domain.UserRecord) error {
		u.Gold += 400
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Gold != 500 {
		t.Fatalf("gold = %d", out.Gold)
	}

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Gold != 500 {
		t.Fatalf("persisted gold = %d", got.Gold)
	}
	if got.LastActiveAt.IsZero() {
		t.Fatal("LastActiveAt not bumped")
	}
}

func TestUpdateUserDeclineLeavesStateUntouched(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpdateUser(ctx, "alice", func(u *domain.UserRecord) error {
		u.Gold = 999
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	decline := errors.New("rule decline")
	_, err := s.UpdateUser(ctx, "alice", func(u *domain.UserRecord) error {
		u.Gold = 0
		return decline
	})
	if !errors.Is(err, decline) {
		t.Fatalf("decline not passed through: %v", err)
	}

	got, _ := s.GetUser(ctx, "alice")
	if got.Gold != 999 {
		t.Fatalf("decline mutated persisted state: gold=%d", got.Gold)
	}
}

func TestCorruptRecordFallsBackToStarter(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Set("rpg:user:broken", "{not json")

	u, err := s.GetUser(context.Background(), "broken")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Level != 1 || u.Gold != 100 {
		t.Fatalf("expected starter fallback, got %+v", u)
	}
}

func TestUpdateUsersTransfersAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seed := func(id string, gold int64) {
		u := domain.NewUserRecord(id)
		u.Gold = gold
		if err := s.SaveUser(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed("winner", 100)
	seed("loser", 300)

	err := s.UpdateUsers(ctx, "winner", "loser", func(w, l *domain.UserRecord) error {
		l.Gold -= 100
		w.Gold += 100
		return nil
	})
	if err != nil {
		t.Fatalf("update users: %v", err)
	}

	w, _ := s.GetUser(ctx, "winner")
	l, _ := s.GetUser(ctx, "loser")
	if w.Gold != 200 || l.Gold != 200 {
		t.Fatalf("transfer wrong: winner=%d loser=%d", w.Gold, l.Gold)
	}
}

func TestUpdateUsersRejectsSameKey(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateUsers(context.Background(), "alice", "alice", func(a, b *domain.UserRecord) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error for identical keys")
	}
}

func TestAllUsersSkipsCorrupt(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveUser(ctx, domain.NewUserRecord("good")); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.Set("rpg:user:bad", "oops")
	if _, err := mr.SAdd("rpg:index:users", "bad"); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	users, err := s.AllUsers(ctx)
	if err != nil {
		t.Fatalf("all users: %v", err)
	}
	if len(users) != 1 || users[0].ID != "good" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestDeleteUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u := domain.NewUserRecord("alice")
	u.Gold = 777
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Gold != 100 {
		t.Fatalf("delete left data behind: %+v", got)
	}
	users, err := s.AllUsers(ctx)
	if err != nil {
		t.Fatalf("all users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("index not cleaned: %+v", users)
	}
}

func TestCatalogSeedsOnFirstLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	c, err := s.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if c.Item("potion") == nil {
		t.Fatal("default catalog missing potion")
	}
	if c.EnemyByID("slime") == nil {
		t.Fatal("default catalog missing slime")
	}

	// second load reads the seeded value
	again, err := s.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog reload: %v", err)
	}
	if len(again.Items) != len(c.Items) {
		t.Fatalf("reload mismatch: %d vs %d items", len(again.Items), len(c.Items))
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected opts: %+v", opts)
	}

	if _, err := ParseRedisURL("://bad"); err == nil {
		t.Fatal("expected parse error")
	}
}
