// Package dispatcher owns the one authoritative command table. It parses
// prefixed commands from inbound chat messages, runs them through the spam
// gate, invokes the matching handler and sends the reply.
package dispatcher

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/msgcat"
	"github.com/vinzz/vinzz-rpg-bot/internal/ratelimit"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
	"github.com/vinzz/vinzz-rpg-bot/internal/subbot"
	"github.com/vinzz/vinzz-rpg-bot/internal/tictactoe"
	"github.com/vinzz/vinzz-rpg-bot/internal/wagate"
)

// Sender delivers replies back to the chat. Delivery is fire-and-forget;
// failures are logged and not retried here.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text, quotedID string) error
}

// handler runs one command. A returned reply is sent to the chat; an empty
// reply sends nothing. Game-rule declines come back as domain errors and are
// turned into user-facing messages by the dispatcher.
type handler func(ctx context.Context, msg *wagate.Message, args []string) (string, error)

type command struct {
	name    string
	aliases []string
	admin   bool
	run     handler
}

type Options struct {
	// Prefixes are the accepted command prefixes. The empty string acts as
	// a catch-all and is honored only when explicitly listed.
	Prefixes []string
	// Admins may run warn/unban/spamstat.
	Admins []string
	// AllowedChats restricts the bot to listed chats when non-empty.
	AllowedChats []string
}

type Dispatcher struct {
	prefixes     []string
	admins       map[string]bool
	allowedChats map[string]bool

	users    *store.Store
	engine   *rpg.Engine
	limiter  *ratelimit.Limiter
	games    *tictactoe.Manager
	bots     *subbot.Manager
	messages *msgcat.Catalog
	sender   Sender
	logger   *zap.Logger

	table   map[string]*command
	ordered []*command
}

func New(
	opts Options,
	users *store.Store,
	engine *rpg.Engine,
	limiter *ratelimit.Limiter,
	games *tictactoe.Manager,
	bots *subbot.Manager,
	messages *msgcat.Catalog,
	sender Sender,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		prefixes:     normalizePrefixes(opts.Prefixes),
		admins:       toSet(opts.Admins),
		allowedChats: toSet(opts.AllowedChats),
		users:        users,
		engine:       engine,
		limiter:      limiter,
		games:        games,
		bots:         bots,
		messages:     messages,
		sender:       sender,
		logger:       logger,
	}
	d.buildTable()
	return d
}

// normalizePrefixes sorts longest first so "!!" wins over "!" on match, and
// drops the empty catch-all unless it was explicitly configured.
func normalizePrefixes(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range in {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		out = []string{"!"}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func toSet(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			m[s] = true
		}
	}
	return m
}

func (d *Dispatcher) register(c *command) {
	d.table[c.name] = c
	for _, a := range c.aliases {
		d.table[a] = c
	}
	d.ordered = append(d.ordered, c)
}

// HandleMessage is the entry point for one inbound chat message. Unknown
// commands and unprefixed text are silently ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *wagate.Message) {
	if msg == nil || msg.SenderID == "" {
		return
	}
	if len(d.allowedChats) > 0 && !d.allowedChats[msg.ChatID] {
		return
	}

	name, args, ok := d.parse(msg.Text)
	if !ok {
		return
	}
	cmd, ok := d.table[name]
	if !ok {
		return
	}

	if cmd.admin && !d.admins[msg.SenderID] {
		d.reply(ctx, msg, d.messages.MustRender("admin.denied", nil))
		return
	}

	dec, err := d.limiter.Check(ctx, msg.SenderID, cmd.name)
	if err != nil {
		d.logger.Error("gate_check_error", zap.String("user", msg.SenderID), zap.Error(err))
		d.reply(ctx, msg, d.messages.MustRender("errors.generic", nil))
		return
	}
	if !dec.Allowed {
		d.reply(ctx, msg, d.gateReply(dec))
		return
	}

	out, err := cmd.run(ctx, msg, args)
	if err != nil {
		if domain.IsStorageError(err) {
			d.logger.Error("command_storage_error",
				zap.String("command", cmd.name),
				zap.String("user", msg.SenderID),
				zap.Error(err),
			)
			d.reply(ctx, msg, d.messages.MustRender("errors.generic", nil))
			return
		}
		// game-rule decline: the command still ran, so it still counts
		// against the cooldown
		out = d.declineReply(err)
	}

	if err := d.limiter.RecordCommand(ctx, msg.SenderID, cmd.name); err != nil {
		d.logger.Error("record_command_error", zap.String("user", msg.SenderID), zap.Error(err))
	}
	if out != "" {
		d.reply(ctx, msg, out)
	}
}

// parse splits "{prefix}{command} {args...}". Prefixes are tried longest
// first; command names match case-insensitively.
func (d *Dispatcher) parse(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, false
	}
	for _, p := range d.prefixes {
		if !strings.HasPrefix(text, p) {
			continue
		}
		rest := strings.TrimSpace(text[len(p):])
		if rest == "" {
			return "", nil, false
		}
		fields := strings.Fields(rest)
		return strings.ToLower(fields[0]), fields[1:], true
	}
	return "", nil, false
}

func (d *Dispatcher) gateReply(dec ratelimit.Decision) string {
	if dec.Ban != nil {
		return d.messages.MustRender("ban.active", map[string]any{
			"Until":  dec.Ban.ExpiresAt.Format(time.RFC1123),
			"Reason": dec.Ban.Reason,
		})
	}
	return d.messages.MustRender("cooldown.wait", map[string]any{
		"Wait": dec.Wait.Round(100 * time.Millisecond).String(),
	})
}

// declineReply maps a game-rule decline to its user-facing message.
func (d *Dispatcher) declineReply(err error) string {
	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		return d.messages.MustRender("errors.insufficient_gold", map[string]any{
			"Need": funds.Need, "Have": funds.Have,
		})
	}
	switch {
	case errors.Is(err, domain.ErrUnknownItem), errors.Is(err, domain.ErrUnknownEnemy):
		return d.messages.MustRender("errors.unknown_item", nil)
	case errors.Is(err, domain.ErrNoPotion):
		return d.messages.MustRender("errors.no_potion", nil)
	case errors.Is(err, domain.ErrNoBait):
		return d.messages.MustRender("errors.no_bait", nil)
	case errors.Is(err, domain.ErrInsufficientItems):
		return d.messages.MustRender("errors.insufficient_items", nil)
	case errors.Is(err, domain.ErrStackLimit):
		return d.messages.MustRender("errors.stack_limit", nil)
	case errors.Is(err, domain.ErrGameNotFound):
		return d.messages.MustRender("ttt.not_found", nil)
	case errors.Is(err, domain.ErrNotYourTurn):
		return d.messages.MustRender("ttt.not_your_turn", nil)
	case errors.Is(err, domain.ErrPositionTaken):
		return d.messages.MustRender("ttt.position_taken", nil)
	case errors.Is(err, domain.ErrPositionRange):
		return d.messages.MustRender("ttt.position_range", nil)
	case errors.Is(err, domain.ErrSelfPlay):
		return d.messages.MustRender("ttt.self_play", nil)
	case errors.Is(err, domain.ErrNotParticipant), errors.Is(err, domain.ErrInvalidGameState):
		return d.messages.MustRender("ttt.not_found", nil)
	case errors.Is(err, domain.ErrBotLimit):
		return d.messages.MustRender("subbot.limit", nil)
	case errors.Is(err, domain.ErrBotNotFound):
		return d.messages.MustRender("subbot.not_found", nil)
	default:
		return d.messages.MustRender("errors.generic", nil)
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg *wagate.Message, text string) {
	if text == "" {
		return
	}
	if err := d.sender.SendMessage(ctx, msg.ChatID, text, msg.QuotedID); err != nil {
		d.logger.Error("send_reply_error", zap.String("chat", msg.ChatID), zap.Error(err))
	}
}
