package tictactoe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
)

const gameTTL = 24 * time.Hour

// winLines indexes the eight three-in-a-row lines of the board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Manager runs wagered tic-tac-toe sessions. Games live in Redis under their
// own key namespace; every state change goes through a WATCH transaction so a
// game sees at most one in-flight mutation. Wager settlement is best-effort:
// funds are checked at create and join but never reserved, so a loser who
// spent their gold mid-game keeps it and the winner receives nothing extra.
type Manager struct {
	rdb    *redis.Client
	users  *store.Store
	repo   *Repository
	logger *zap.Logger
}

func NewManager(users *store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{rdb: users.Client(), users: users, logger: logger}
}

// AttachRepository wires a database repository for archiving finished games.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

func gameKey(id string) string { return "ttt:game:" + strings.TrimSpace(id) }

// Create opens a new session with the creator as X, awaiting the invited
// opponent. Both parties must currently hold the wager, though nothing is
// reserved.
func (m *Manager) Create(ctx context.Context, creator, opponent string, wager int64) (*domain.TTTGame, error) {
	creator = strings.TrimSpace(creator)
	opponent = strings.TrimSpace(opponent)
	if creator == "" || opponent == "" {
		return nil, fmt.Errorf("invalid participants")
	}
	if creator == opponent {
		return nil, domain.ErrSelfPlay
	}
	if wager < 0 {
		wager = 0
	}
	if wager > 0 {
		if err := m.checkFunds(ctx, creator, wager); err != nil {
			return nil, err
		}
		if err := m.checkFunds(ctx, opponent, wager); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	g := &domain.TTTGame{
		Creator:   creator,
		PlayerX:   creator,
		PlayerO:   opponent,
		Wager:     wager,
		Turn:      domain.MarkX,
		Status:    domain.TTTWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Time-based short token; re-roll on the negligible chance of collision
	// with a stored game.
	for attempt := 0; attempt < 5; attempt++ {
		g.ID = makeID()
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, &domain.StorageError{Op: "encode game", Err: err}
		}
		ok, err := m.rdb.SetNX(ctx, gameKey(g.ID), raw, gameTTL).Result()
		if err != nil {
			return nil, &domain.StorageError{Op: "create game", Err: err}
		}
		if ok {
			m.logger.Info("ttt_game_create",
				zap.String("game_id", g.ID),
				zap.String("player_x", g.PlayerX),
				zap.String("player_o", g.PlayerO),
				zap.Int64("wager", g.Wager),
			)
			return g, nil
		}
	}
	return nil, &domain.StorageError{Op: "create game", Err: fmt.Errorf("id collision")}
}

// Join moves a waiting game to playing. Only the invited opponent or the
// creator may act, and both parties' funds are re-checked.
func (m *Manager) Join(ctx context.Context, id, joiner string) (*domain.TTTGame, error) {
	joiner = strings.TrimSpace(joiner)
	var out *domain.TTTGame
	err := m.update(ctx, id, func(g *domain.TTTGame) error {
		if g.Status != domain.TTTWaiting {
			return domain.ErrInvalidGameState
		}
		if !g.Participant(joiner) {
			return domain.ErrNotParticipant
		}
		if g.Wager > 0 {
			if err := m.checkFunds(ctx, g.PlayerX, g.Wager); err != nil {
				return err
			}
			if err := m.checkFunds(ctx, g.PlayerO, g.Wager); err != nil {
				return err
			}
		}
		g.Status = domain.TTTPlaying
		g.Turn = domain.MarkX
		g.StartedAt = time.Now()
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("ttt_game_start", zap.String("game_id", out.ID))
	return out, nil
}

// MoveResult carries the state after a move plus settlement info.
type MoveResult struct {
	Game *domain.TTTGame
	// Finished is true when the move ended the game.
	Finished bool
	// Draw is true when the board filled with no winner.
	Draw bool
	// Transferred is true when the wager actually moved to the winner.
	Transferred bool
}

// Move places the actor's mark at position 1..9, evaluates the eight lines
// and the draw condition, and settles the wager on a decisive result.
func (m *Manager) Move(ctx context.Context, id, actor string, position int) (*MoveResult, error) {
	actor = strings.TrimSpace(actor)
	var out *domain.TTTGame
	err := m.update(ctx, id, func(g *domain.TTTGame) error {
		if g.Status != domain.TTTPlaying {
			return domain.ErrInvalidGameState
		}
		mark := g.MarkOf(actor)
		if mark == "" {
			return domain.ErrNotParticipant
		}
		if g.Turn != mark {
			return domain.ErrNotYourTurn
		}
		if position < 1 || position > 9 {
			return domain.ErrPositionRange
		}
		if g.Board[position-1] != "" {
			return domain.ErrPositionTaken
		}
		g.Board[position-1] = mark

		if winner := winnerMark(g.Board); winner != "" {
			g.Status = domain.TTTEnded
			g.Winner = winnerID(g, winner)
			g.Outcome = strings.ToLower(string(winner))
			g.EndedAt = time.Now()
		} else if boardFull(g.Board) {
			g.Status = domain.TTTEnded
			g.Outcome = "draw"
			g.EndedAt = time.Now()
		} else {
			g.Turn = g.Turn.Other()
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &MoveResult{Game: out}
	if out.Status == domain.TTTEnded {
		res.Finished = true
		if out.Outcome == "draw" {
			res.Draw = true
		} else {
			res.Transferred = m.settle(ctx, out)
		}
		m.archive(ctx, out, "board")
	}
	m.logger.Info("ttt_move",
		zap.String("game_id", out.ID),
		zap.String("actor", actor),
		zap.Int("position", position),
		zap.String("status", string(out.Status)),
		zap.String("outcome", out.Outcome),
	)
	return res, nil
}

// Forfeit ends a not-yet-ended game in the opponent's favor. Settlement
// follows the same best-effort transfer rule as a decisive win.
func (m *Manager) Forfeit(ctx context.Context, id, actor string) (*MoveResult, error) {
	actor = strings.TrimSpace(actor)
	var out *domain.TTTGame
	err := m.update(ctx, id, func(g *domain.TTTGame) error {
		if g.Status == domain.TTTEnded {
			return domain.ErrInvalidGameState
		}
		if !g.Participant(actor) {
			return domain.ErrNotParticipant
		}
		g.Status = domain.TTTEnded
		g.Winner = g.Opponent(actor)
		g.Outcome = "forfeit"
		g.EndedAt = time.Now()
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &MoveResult{Game: out, Finished: true}
	res.Transferred = m.settle(ctx, out)
	m.archive(ctx, out, "forfeit")
	m.logger.Info("ttt_forfeit",
		zap.String("game_id", out.ID),
		zap.String("actor", actor),
		zap.String("winner", out.Winner),
	)
	return res, nil
}

// Get returns the game by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.TTTGame, error) {
	raw, err := m.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get game", Err: err}
	}
	var g domain.TTTGame
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, &domain.StorageError{Op: "decode game", Err: err}
	}
	return &g, nil
}

// settle transfers the wager from loser to winner when the loser still holds
// it. No escrow exists, so an underfunded loser simply keeps their gold.
func (m *Manager) settle(ctx context.Context, g *domain.TTTGame) bool {
	if g.Wager <= 0 || g.Winner == "" {
		return false
	}
	loser := g.Opponent(g.Winner)
	transferred := false
	err := m.users.UpdateUsers(ctx, g.Winner, loser, func(w, l *domain.UserRecord) error {
		if l.Gold < g.Wager {
			return nil
		}
		l.Gold -= g.Wager
		w.Gold += g.Wager
		transferred = true
		return nil
	})
	if err != nil {
		m.logger.Error("ttt_settlement_error", zap.String("game_id", g.ID), zap.Error(err))
		return false
	}
	if !transferred {
		m.logger.Info("ttt_settlement_skipped",
			zap.String("game_id", g.ID),
			zap.String("loser", loser),
			zap.Int64("wager", g.Wager),
		)
	}
	return transferred
}

func (m *Manager) archive(ctx context.Context, g *domain.TTTGame, method string) {
	if m.repo == nil || g.Status != domain.TTTEnded {
		return
	}
	if err := m.repo.SaveResult(ctx, g, method); err != nil {
		m.logger.Error("ttt_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	m.logger.Info("ttt_archived", zap.String("game_id", g.ID), zap.String("outcome", g.Outcome))
}

func (m *Manager) checkFunds(ctx context.Context, user string, wager int64) error {
	u, err := m.users.GetUser(ctx, user)
	if err != nil {
		return err
	}
	if u.Gold < wager {
		return &domain.InsufficientFundsError{Need: wager, Have: u.Gold}
	}
	return nil
}

func (m *Manager) update(ctx context.Context, id string, fn func(*domain.TTTGame) error) error {
	key := gameKey(id)
	for attempt := 0; attempt < 5; attempt++ {
		err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrGameNotFound
			}
			if err != nil {
				return &domain.StorageError{Op: "get game", Err: err}
			}
			var g domain.TTTGame
			if err := json.Unmarshal(raw, &g); err != nil {
				return &domain.StorageError{Op: "decode game", Err: err}
			}
			if err := fn(&g); err != nil {
				return err
			}
			g.UpdatedAt = time.Now()

			out, err := json.Marshal(&g)
			if err != nil {
				return &domain.StorageError{Op: "encode game", Err: err}
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, out, gameTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				if errors.Is(err, redis.TxFailedErr) {
					return err
				}
				return &domain.StorageError{Op: "save game", Err: err}
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return &domain.StorageError{Op: "save game", Err: redis.TxFailedErr}
}

func winnerMark(b [9]domain.Mark) domain.Mark {
	for _, line := range winLines {
		if b[line[0]] != "" && b[line[0]] == b[line[1]] && b[line[0]] == b[line[2]] {
			return b[line[0]]
		}
	}
	return ""
}

func winnerID(g *domain.TTTGame, mark domain.Mark) string {
	if mark == domain.MarkX {
		return g.PlayerX
	}
	return g.PlayerO
}

func boardFull(b [9]domain.Mark) bool {
	for _, c := range b {
		if c == "" {
			return false
		}
	}
	return true
}

func makeID() string {
	s := strconv.FormatInt(time.Now().UnixNano(), 36)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return s
}
