package tictactoe

import (
	"strconv"
	"strings"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// RenderBoard draws the board as a three-line emoji grid. Empty cells show
// their position number so players can pick a move without counting.
func RenderBoard(b [9]domain.Mark) string {
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteString("\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				sb.WriteString(" ")
			}
			i := row*3 + col
			switch b[i] {
			case domain.MarkX:
				sb.WriteString("❌")
			case domain.MarkO:
				sb.WriteString("⭕")
			default:
				sb.WriteString(cellDigit(i + 1))
			}
		}
	}
	return sb.String()
}

// cellDigit maps 1..9 to keycap emoji so empty cells line up with the marks.
func cellDigit(n int) string {
	if n < 1 || n > 9 {
		return strconv.Itoa(n)
	}
	return string(rune('0'+n)) + "️⃣"
}
