package domain

import "time"

// Mark is a board cell owner. The empty string means the cell is free.
type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

// Other returns the opposing mark.
func (m Mark) Other() Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

// TTTStatus is the lifecycle state of a tic-tac-toe session.
type TTTStatus string

const (
	TTTWaiting TTTStatus = "waiting"
	TTTPlaying TTTStatus = "playing"
	TTTEnded   TTTStatus = "ended"
)

// TTTGame is a persisted wagered tic-tac-toe session. The creator always
// plays X; the invited opponent plays O once they join.
type TTTGame struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	PlayerX   string    `json:"player_x"`
	PlayerO   string    `json:"player_o"`
	Wager     int64     `json:"wager"`
	Board     [9]Mark   `json:"board"`
	Turn      Mark      `json:"turn"`
	Status    TTTStatus `json:"status"`
	Winner    string    `json:"winner,omitempty"`
	Outcome   string    `json:"outcome,omitempty"` // x | o | draw | forfeit
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant reports whether the identity plays in this game.
func (g *TTTGame) Participant(id string) bool {
	return id != "" && (id == g.PlayerX || id == g.PlayerO)
}

// MarkOf returns the mark the identity plays, or "" for outsiders.
func (g *TTTGame) MarkOf(id string) Mark {
	switch id {
	case g.PlayerX:
		return MarkX
	case g.PlayerO:
		return MarkO
	default:
		return ""
	}
}

// Opponent returns the other participant's identity.
func (g *TTTGame) Opponent(id string) string {
	switch id {
	case g.PlayerX:
		return g.PlayerO
	case g.PlayerO:
		return g.PlayerX
	default:
		return ""
	}
}
