// Package subbot manages user-provisioned helper bots. The actual messaging
// session for a helper bot is handled by the gateway; this package tracks
// ownership, the creation fee, and the lifecycle state machine.
package subbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
)

// Status is the lifecycle state of a provisioned bot.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
)

// transitions lists the legal next states for each state. Stopped and failed
// bots can be restarted through connecting.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConnecting, StatusFailed},
	StatusConnecting: {StatusActive, StatusFailed},
	StatusActive:     {StatusStopped, StatusFailed},
	StatusStopped:    {StatusConnecting},
	StatusFailed:     {StatusConnecting},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Bot is a provisioned helper bot record.
type Bot struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	Prefix       string    `json:"prefix"`
	Phone        string    `json:"phone"`
	Status       Status    `json:"status"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Config holds provisioning limits.
type Config struct {
	// CreationCost is debited from the owner when provisioning.
	CreationCost int64
	// MaxPerUser caps concurrently owned bots. Zero means one.
	MaxPerUser int
}

func (c Config) maxPerUser() int {
	if c.MaxPerUser <= 0 {
		return 1
	}
	return c.MaxPerUser
}

// Manager provisions helper bots and tracks their state in Redis.
type Manager struct {
	rdb    *redis.Client
	users  *store.Store
	engine *rpg.Engine
	cfg    Config
	logger *zap.Logger
}

func NewManager(users *store.Store, engine *rpg.Engine, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		rdb:    users.Client(),
		users:  users,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

func botKey(id string) string      { return "subbot:bot:" + id }
func ownerKey(owner string) string { return "subbot:owner:" + owner }

// Create provisions a new bot in the pending state. The creation fee is
// debited up front; a user at their bot limit is refused before any debit.
func (m *Manager) Create(ctx context.Context, owner, name, prefix, phone string) (*Bot, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner required")
	}
	phone = digits(phone)
	if len(phone) < 10 {
		return nil, fmt.Errorf("invalid phone number")
	}

	owned, err := m.rdb.SCard(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, &domain.StorageError{Op: "count bots", Err: err}
	}
	if int(owned) >= m.cfg.maxPerUser() {
		return nil, domain.ErrBotLimit
	}

	if m.cfg.CreationCost > 0 {
		if _, err := m.users.UpdateUser(ctx, owner, func(u *domain.UserRecord) error {
			return m.engine.SpendGold(u, m.cfg.CreationCost)
		}); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(name) == "" {
		name = "Bot-" + phone
	}
	if prefix == "" {
		prefix = "!"
	}
	now := time.Now()
	b := &Bot{
		ID:           uuid.NewString(),
		Owner:        owner,
		Name:         name,
		Prefix:       prefix,
		Phone:        phone,
		Status:       StatusPending,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := m.save(ctx, b, true); err != nil {
		// Creation fee was already taken; put it back.
		m.refund(ctx, owner)
		return nil, err
	}

	m.logger.Info("subbot_create",
		zap.String("bot_id", b.ID),
		zap.String("owner", owner),
		zap.Int64("cost", m.cfg.CreationCost),
	)
	return b, nil
}

// Get returns the bot by id.
func (m *Manager) Get(ctx context.Context, id string) (*Bot, error) {
	raw, err := m.rdb.Get(ctx, botKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrBotNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get bot", Err: err}
	}
	var b Bot
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, &domain.StorageError{Op: "decode bot", Err: err}
	}
	return &b, nil
}

// ByOwner lists the bots a user owns.
func (m *Manager) ByOwner(ctx context.Context, owner string) ([]*Bot, error) {
	ids, err := m.rdb.SMembers(ctx, ownerKey(strings.TrimSpace(owner))).Result()
	if err != nil {
		return nil, &domain.StorageError{Op: "list bots", Err: err}
	}
	bots := make([]*Bot, 0, len(ids))
	for _, id := range ids {
		b, err := m.Get(ctx, id)
		if errors.Is(err, domain.ErrBotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, nil
}

// Transition moves the bot to the target state, rejecting jumps the state
// machine does not allow.
func (m *Manager) Transition(ctx context.Context, id string, to Status) (*Bot, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(b.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, b.Status, to)
	}
	from := b.Status
	b.Status = to
	b.LastActiveAt = time.Now()
	if err := m.save(ctx, b, false); err != nil {
		return nil, err
	}
	m.logger.Info("subbot_transition",
		zap.String("bot_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return b, nil
}

// Start requests a connection for a pending, stopped or failed bot.
func (m *Manager) Start(ctx context.Context, id string) (*Bot, error) {
	return m.Transition(ctx, id, StatusConnecting)
}

// Stop halts an active bot.
func (m *Manager) Stop(ctx context.Context, id string) (*Bot, error) {
	return m.Transition(ctx, id, StatusStopped)
}

// Touch bumps the activity counters when the gateway relays a message
// handled by the bot.
func (m *Manager) Touch(ctx context.Context, id string) error {
	b, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	b.MessageCount++
	b.LastActiveAt = time.Now()
	return m.save(ctx, b, false)
}

// Delete removes the bot record and frees the owner's slot. No refund.
func (m *Manager) Delete(ctx context.Context, id string) error {
	b, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, botKey(id))
	pipe.SRem(ctx, ownerKey(b.Owner), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.StorageError{Op: "delete bot", Err: err}
	}
	m.logger.Info("subbot_delete", zap.String("bot_id", id), zap.String("owner", b.Owner))
	return nil
}

func (m *Manager) save(ctx context.Context, b *Bot, indexOwner bool) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return &domain.StorageError{Op: "encode bot", Err: err}
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, botKey(b.ID), raw, 0)
	if indexOwner {
		pipe.SAdd(ctx, ownerKey(b.Owner), b.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.StorageError{Op: "save bot", Err: err}
	}
	return nil
}

func (m *Manager) refund(ctx context.Context, owner string) {
	if m.cfg.CreationCost <= 0 {
		return
	}
	if _, err := m.users.UpdateUser(ctx, owner, func(u *domain.UserRecord) error {
		u.Gold += m.cfg.CreationCost
		return nil
	}); err != nil {
		m.logger.Error("subbot_refund_error", zap.String("owner", owner), zap.Error(err))
	}
}

func digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
