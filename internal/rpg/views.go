package rpg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// Read-only text views over a user record. These never mutate state; every
// value shown is reproducible from the persisted fields.

func (e *Engine) ProfileText(u *domain.UserRecord) string {
	name := u.Name
	if name == "" {
		name = "Player"
	}
	lines := []string{
		fmt.Sprintf("👤 Profile %s", name),
		fmt.Sprintf("Level: %d", u.Level),
		fmt.Sprintf("Exp: %d/%d", u.Exp, XPToLevel(u.Level)),
		fmt.Sprintf("HP: %d/%d", u.HP, u.MaxHP),
		fmt.Sprintf("Gold: %d", u.Gold),
		fmt.Sprintf("Bait: %d", u.Bait),
		fmt.Sprintf("Potions: %d", u.Potions),
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) StatsText(u *domain.UserRecord) string {
	lines := []string{
		"📊 Stats",
		fmt.Sprintf("Attack: %d", u.Attack),
		fmt.Sprintf("Defense: %d", u.Defense),
		fmt.Sprintf("Hunts: %d", u.TotalHunts),
		fmt.Sprintf("Fishes: %d", u.TotalFishes),
		fmt.Sprintf("Battles: %d", u.TotalBattles),
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) InventoryText(u *domain.UserRecord) string {
	lines := []string{"🎒 Inventory"}
	if u.Potions > 0 {
		lines = append(lines, fmt.Sprintf("- potion x%d", u.Potions))
	}
	if u.Bait > 0 {
		lines = append(lines, fmt.Sprintf("- bait x%d", u.Bait))
	}
	ids := make([]string, 0, len(u.Inventory))
	for id := range u.Inventory {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		name := id
		if def := e.catalog.Item(id); def != nil {
			name = def.Name
		}
		lines = append(lines, fmt.Sprintf("- %s x%d", name, u.Inventory[id]))
	}
	if len(lines) == 1 {
		lines = append(lines, "(empty)")
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) ShopText() string {
	lines := []string{"🏪 Shop"}
	for _, entry := range e.catalog.Shop {
		def := e.catalog.Item(entry.ItemID)
		if def == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %d Gold / %d", entry.ItemID, def.Name, def.Price, entry.Qty))
	}
	return strings.Join(lines, "\n")
}

// LeaderboardTypes are the orderings supported by TopUsers.
var LeaderboardTypes = []string{"level", "gold", "hunt", "fish", "battle"}

// TopUsers sorts a copy of users by the requested metric, descending,
// truncated to limit. Unknown types fall back to level.
func TopUsers(users []*domain.UserRecord, by string, limit int) []*domain.UserRecord {
	ranked := make([]*domain.UserRecord, len(users))
	copy(ranked, users)

	metric := func(u *domain.UserRecord) int64 {
		switch by {
		case "gold":
			return u.Gold
		case "hunt":
			return int64(u.TotalHunts)
		case "fish":
			return int64(u.TotalFishes)
		case "battle":
			return int64(u.TotalBattles)
		default:
			return int64(u.Level)*1_000_000 + u.Exp
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return metric(ranked[i]) > metric(ranked[j]) })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func LeaderboardText(users []*domain.UserRecord, by string, limit int) string {
	top := TopUsers(users, by, limit)
	lines := []string{fmt.Sprintf("🏆 Leaderboard (%s)", by)}
	for i, u := range top {
		name := u.Name
		if name == "" {
			name = shortID(u.ID)
		}
		switch by {
		case "gold":
			lines = append(lines, fmt.Sprintf("%d. %s — %d Gold", i+1, name, u.Gold))
		case "hunt":
			lines = append(lines, fmt.Sprintf("%d. %s — %d hunts", i+1, name, u.TotalHunts))
		case "fish":
			lines = append(lines, fmt.Sprintf("%d. %s — %d fishes", i+1, name, u.TotalFishes))
		case "battle":
			lines = append(lines, fmt.Sprintf("%d. %s — %d battles", i+1, name, u.TotalBattles))
		default:
			lines = append(lines, fmt.Sprintf("%d. %s — level %d", i+1, name, u.Level))
		}
	}
	if len(lines) == 1 {
		lines = append(lines, "(no players yet)")
	}
	return strings.Join(lines, "\n")
}

func shortID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
