package tictactoe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// Repository archives finished games to Postgres. It is optional; when no
// DATABASE_URL is configured the bot runs without an archive.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a final game result into the archive.
func (r *Repository) SaveResult(ctx context.Context, g *domain.TTTGame, method string) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}

	duration := g.EndedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO ttt_games (
        game_id, player_x, player_o, wager,
        board, winner, outcome, end_method,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
      ) ON CONFLICT (game_id) DO UPDATE SET
        player_x=EXCLUDED.player_x,
        player_o=EXCLUDED.player_o,
        wager=EXCLUDED.wager,
        board=EXCLUDED.board,
        winner=EXCLUDED.winner,
        outcome=EXCLUDED.outcome,
        end_method=EXCLUDED.end_method,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID,
		g.PlayerX, g.PlayerO, g.Wager,
		flattenBoard(g.Board), g.Winner, g.Outcome, strings.TrimSpace(method),
		g.StartedAt, g.EndedAt, duration,
	)
	return err
}

// flattenBoard renders the board as a 9-char string, "." for empty cells.
func flattenBoard(b [9]domain.Mark) string {
	var sb strings.Builder
	for _, c := range b {
		if c == "" {
			sb.WriteString(".")
		} else {
			sb.WriteString(string(c))
		}
	}
	return sb.String()
}
