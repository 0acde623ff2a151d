package domain

import "time"

// UserRecord is the persisted state of one player, keyed by their chat identity.
type UserRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Level        int       `json:"level"`
	Exp          int64     `json:"exp"`
	NextLevelExp int64     `json:"next_level_exp"`
	HP           int       `json:"hp"`
	MaxHP        int       `json:"max_hp"`
	Attack       int       `json:"attack"`
	Defense      int       `json:"defense"`
	Gold         int64     `json:"gold"`
	Potions      int       `json:"potions"`
	Bait         int       `json:"bait"`
	// Inventory maps item id to quantity. Zero-quantity entries are removed
	// rather than kept; potions and bait live on their own counters above.
	Inventory    map[string]int `json:"inventory"`
	TotalHunts   int            `json:"total_hunts"`
	TotalFishes  int            `json:"total_fishes"`
	TotalBattles int            `json:"total_battles"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// NewUserRecord returns the starter character every player begins with.
// A record is created implicitly the first time an identity is referenced,
// so no operation ever observes a missing user.
func NewUserRecord(id string) *UserRecord {
	now := time.Now()
	return &UserRecord{
		ID:           id,
		Level:        1,
		Exp:          0,
		NextLevelExp: 100,
		HP:           100,
		MaxHP:        100,
		Attack:       10,
		Defense:      5,
		Gold:         100,
		Inventory:    map[string]int{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// ItemCount returns how many of the given item the user holds, including the
// dedicated consumable counters.
func (u *UserRecord) ItemCount(itemID string) int {
	switch itemID {
	case "potion":
		return u.Potions
	case "bait":
		return u.Bait
	default:
		return u.Inventory[itemID]
	}
}
