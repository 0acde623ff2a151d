package dispatcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/msgcat"
	"github.com/vinzz/vinzz-rpg-bot/internal/ratelimit"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
	"github.com/vinzz/vinzz-rpg-bot/internal/subbot"
	"github.com/vinzz/vinzz-rpg-bot/internal/tictactoe"
	"github.com/vinzz/vinzz-rpg-bot/internal/wagate"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID, text, quotedID string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *fakeSender, *store.Store, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.NewWithClient(rdb, nil)
	catalog, err := store.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	engine := rpg.NewEngine(rpg.DefaultConfig(), catalog)
	clk := &fakeClock{now: time.Now()}
	limiter := ratelimit.New(rdb, ratelimit.DefaultConfig(), clk, nil)
	games := tictactoe.NewManager(st, nil)
	bots := subbot.NewManager(st, engine, subbot.Config{}, nil)
	messages, err := msgcat.New("")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	sender := &fakeSender{}
	d := New(opts, st, engine, limiter, games, bots, messages, sender, nil)
	return d, sender, st, clk
}

func msgFrom(user, text string) *wagate.Message {
	return &wagate.Message{ChatID: "room1", SenderID: user, SenderName: user, Text: text}
}

func TestUnprefixedAndUnknownAreSilent(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{})
	ctx := context.Background()

	d.HandleMessage(ctx, msgFrom("alice", "hello everyone"))
	d.HandleMessage(ctx, msgFrom("alice", "!nosuchcommand"))
	if len(sender.sent) != 0 {
		t.Fatalf("expected silence, got %v", sender.sent)
	}
}

func TestCommandMatchingIsCaseInsensitive(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{})
	d.HandleMessage(context.Background(), msgFrom("alice", "!PROFILE"))
	if len(sender.sent) != 1 {
		t.Fatalf("expected a profile reply, got %v", sender.sent)
	}
}

func TestAliasRoutesToSameCommand(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{})
	d.HandleMessage(context.Background(), msgFrom("alice", "!inv"))
	if len(sender.sent) != 1 {
		t.Fatalf("expected inventory reply, got %v", sender.sent)
	}
}

func TestGlobalCooldownBlocksSecondCommand(t *testing.T) {
	d, sender, _, clk := newTestDispatcher(t, Options{})
	ctx := context.Background()

	d.HandleMessage(ctx, msgFrom("alice", "!profile"))
	clk.now = clk.now.Add(500 * time.Millisecond)
	d.HandleMessage(ctx, msgFrom("alice", "!stats"))

	if len(sender.sent) != 2 {
		t.Fatalf("expected two replies, got %v", sender.sent)
	}
	if !strings.Contains(sender.last(), "Slow down") {
		t.Fatalf("expected cooldown reply, got %q", sender.last())
	}

	clk.now = clk.now.Add(time.Second)
	d.HandleMessage(ctx, msgFrom("alice", "!stats"))
	if strings.Contains(sender.last(), "Slow down") {
		t.Fatalf("cooldown should have elapsed, got %q", sender.last())
	}
}

func TestHuntMutatesUser(t *testing.T) {
	d, sender, st, _ := newTestDispatcher(t, Options{})
	ctx := context.Background()

	d.HandleMessage(ctx, msgFrom("alice", "!hunt"))
	if len(sender.sent) != 1 {
		t.Fatalf("expected hunt reply, got %v", sender.sent)
	}
	u, err := st.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.TotalHunts != 1 {
		t.Fatalf("total hunts = %d", u.TotalHunts)
	}
	if u.Gold <= 100 {
		t.Fatalf("hunt paid no gold: %d", u.Gold)
	}
}

func TestGameRuleDeclineStillReplies(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{})
	// fresh users start with zero bait
	d.HandleMessage(context.Background(), msgFrom("alice", "!fish"))
	if !strings.Contains(sender.last(), "bait") {
		t.Fatalf("expected bait decline, got %q", sender.last())
	}
}

func TestAdminCommandDenied(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{Admins: []string{"root"}})
	ctx := context.Background()

	d.HandleMessage(ctx, msgFrom("alice", "!warn @bob"))
	if !strings.Contains(sender.last(), "not allowed") {
		t.Fatalf("expected denial, got %q", sender.last())
	}

	d.HandleMessage(ctx, msgFrom("root", "!warn @bob spamming"))
	if !strings.Contains(sender.last(), "warned") {
		t.Fatalf("expected warn confirmation, got %q", sender.last())
	}
}

func TestAllowedChatsFilter(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{AllowedChats: []string{"other"}})
	d.HandleMessage(context.Background(), msgFrom("alice", "!profile"))
	if len(sender.sent) != 0 {
		t.Fatalf("expected silence outside allowed chats, got %v", sender.sent)
	}
}

func TestCustomPrefix(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{Prefixes: []string{"."}})
	ctx := context.Background()
	d.HandleMessage(ctx, msgFrom("alice", "!profile"))
	if len(sender.sent) != 0 {
		t.Fatalf("default prefix should not match, got %v", sender.sent)
	}
	d.HandleMessage(ctx, msgFrom("alice", ".profile"))
	if len(sender.sent) != 1 {
		t.Fatalf("expected reply for configured prefix")
	}
}

func TestTTTFlowThroughCommands(t *testing.T) {
	d, sender, st, clk := newTestDispatcher(t, Options{})
	ctx := context.Background()

	seed := func(id string) {
		u := domain.NewUserRecord(id)
		u.Gold = 500
		if err := st.SaveUser(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed("alice")
	seed("bob")

	step := func(user, text string) {
		clk.now = clk.now.Add(5 * time.Second)
		d.HandleMessage(ctx, msgFrom(user, text))
	}

	step("alice", "!ttt @bob 100")
	created := sender.last()
	if !strings.Contains(created, "created") {
		t.Fatalf("expected creation reply, got %q", created)
	}
	// pull the game id out of the reply
	fields := strings.Fields(created)
	var id string
	for i, f := range fields {
		if f == "game" && i+1 < len(fields) {
			id = fields[i+1]
		}
	}
	if id == "" {
		t.Fatalf("no game id in reply %q", created)
	}

	step("bob", "!ttt join "+id)
	if !strings.Contains(sender.last(), "Game on") {
		t.Fatalf("expected join reply, got %q", sender.last())
	}

	step("bob", "!ttt move "+id+" 5")
	if !strings.Contains(sender.last(), "not your turn") {
		t.Fatalf("expected turn decline, got %q", sender.last())
	}

	step("alice", "!ttt move "+id+" 1")
	step("bob", "!ttt move "+id+" 4")
	step("alice", "!ttt move "+id+" 2")
	step("bob", "!ttt move "+id+" 5")
	step("alice", "!ttt move "+id+" 3")
	if !strings.Contains(sender.last(), "wins") {
		t.Fatalf("expected win reply, got %q", sender.last())
	}

	alice, _ := st.GetUser(ctx, "alice")
	if alice.Gold != 600 {
		t.Fatalf("wager not settled: %d", alice.Gold)
	}
}

func TestSellMoreThanHeldExplainsQuantity(t *testing.T) {
	d, sender, _, _ := newTestDispatcher(t, Options{})
	d.HandleMessage(context.Background(), msgFrom("alice", "!sell beef 2"))

	if !strings.Contains(sender.last(), "that many") {
		t.Fatalf("expected quantity decline, got %q", sender.last())
	}
	if strings.Contains(sender.last(), "does not exist") {
		t.Fatalf("quantity decline rendered as unknown item: %q", sender.last())
	}
}

func TestUsePotionAtFullHealthKeepsPotion(t *testing.T) {
	d, sender, st, clk := newTestDispatcher(t, Options{})
	ctx := context.Background()

	_, err := st.UpdateUser(ctx, "alice", func(u *domain.UserRecord) error {
		u.Potions = 2
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	d.HandleMessage(ctx, msgFrom("alice", "!use potion"))
	if !strings.Contains(sender.last(), "full health") {
		t.Fatalf("expected full-health reply, got %q", sender.last())
	}
	alice, _ := st.GetUser(ctx, "alice")
	if alice.Potions != 2 {
		t.Fatalf("potion consumed at full health: %d", alice.Potions)
	}

	_, err = st.UpdateUser(ctx, "alice", func(u *domain.UserRecord) error {
		u.HP = 40
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	clk.now = clk.now.Add(5 * time.Second)

	d.HandleMessage(ctx, msgFrom("alice", "!use potion"))
	if !strings.Contains(sender.last(), "recover") {
		t.Fatalf("expected heal reply, got %q", sender.last())
	}
	alice, _ = st.GetUser(ctx, "alice")
	if alice.Potions != 1 || alice.HP != 90 {
		t.Fatalf("heal wrong: potions=%d hp=%d", alice.Potions, alice.HP)
	}
}
