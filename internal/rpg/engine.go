package rpg

import (
	"math"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// Growth is the per-level stat increase applied on level-up.
type Growth struct {
	HPPerLevel      int
	AttackPerLevel  int
	DefensePerLevel int
}

// RewardRange bounds the exp/gold roll of one gathering action.
type RewardRange struct {
	MinExp, MaxExp   int64
	MinGold, MaxGold int64
	Drops            []string
	DropChance       float64
}

// Config is the explicit gameplay configuration handed to the engine at
// construction. Nothing here is global state.
type Config struct {
	Growth       Growth
	HuntReward   RewardRange
	FishReward   RewardRange
	Difficulties map[string]float64
}

func DefaultConfig() Config {
	return Config{
		Growth: Growth{HPPerLevel: 10, AttackPerLevel: 2, DefensePerLevel: 1},
		HuntReward: RewardRange{
			MinExp: 8, MaxExp: 20, MinGold: 20, MaxGold: 80,
			Drops: []string{"beef", "wild_meat"}, DropChance: 0.25,
		},
		FishReward: RewardRange{
			MinExp: 5, MaxExp: 15, MinGold: 10, MaxGold: 60,
			Drops: []string{"fish", "rare_fish"}, DropChance: 0.25,
		},
		Difficulties: map[string]float64{
			"easy":   1,
			"normal": 1.5,
			"hard":   2.5,
			"hell":   4,
		},
	}
}

// Engine mutates user records according to the game rules. All operations are
// pure with respect to everything but the record passed in; persistence is the
// caller's concern.
type Engine struct {
	cfg     Config
	catalog *domain.Catalog
	randInt func(min, max int64) int64
	randFlt func() float64
}

func NewEngine(cfg Config, catalog *domain.Catalog) *Engine {
	return &Engine{
		cfg:     cfg,
		catalog: catalog,
		randInt: randBetween,
		randFlt: randFloat,
	}
}

// Catalog exposes the static item table for read-only consumers.
func (e *Engine) Catalog() *domain.Catalog { return e.catalog }

// XPToLevel is the experience threshold to leave the given level.
func XPToLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(100 * math.Pow(float64(level), 1.5)))
}

// LevelResult reports whether a grant crossed one or more level boundaries.
type LevelResult struct {
	Leveled  bool
	Levels   int
	NewLevel int
}

// GrantExperience adds experience and resolves every level boundary crossed.
// Negative amounts are clamped to zero. Each level applies the configured stat
// growth and heals the gained health capacity, never beyond the new maximum.
func (e *Engine) GrantExperience(u *domain.UserRecord, amount int64) LevelResult {
	if amount < 0 {
		amount = 0
	}
	u.Exp += amount

	res := LevelResult{NewLevel: u.Level}
	for u.Exp >= XPToLevel(u.Level) {
		u.Exp -= XPToLevel(u.Level)
		u.Level++
		u.MaxHP += e.cfg.Growth.HPPerLevel
		u.Attack += e.cfg.Growth.AttackPerLevel
		u.Defense += e.cfg.Growth.DefensePerLevel
		u.HP = min(u.MaxHP, u.HP+e.cfg.Growth.HPPerLevel)
		res.Leveled = true
		res.Levels++
	}
	res.NewLevel = u.Level
	u.NextLevelExp = XPToLevel(u.Level)
	return res
}

// AddGold credits gold. Negative amounts are ignored.
func (e *Engine) AddGold(u *domain.UserRecord, amount int64) {
	if amount > 0 {
		u.Gold += amount
	}
}

// SpendGold debits gold, declining without mutation when the balance is
// insufficient. The balance can never go negative.
func (e *Engine) SpendGold(u *domain.UserRecord, amount int64) error {
	if amount < 0 {
		amount = 0
	}
	if u.Gold < amount {
		return &domain.InsufficientFundsError{Need: amount, Have: u.Gold}
	}
	u.Gold -= amount
	return nil
}

// AddItem credits qty of an item. Potions and bait use their dedicated
// counters; everything else lands in the inventory map. Ids the catalog does
// not know are declined, and the stack limit is enforced when the item
// defines one.
func (e *Engine) AddItem(u *domain.UserRecord, itemID string, qty int) error {
	if qty <= 0 {
		qty = 1
	}
	def := e.catalog.Item(itemID)
	if def == nil && itemID != "potion" && itemID != "bait" {
		return domain.ErrUnknownItem
	}
	if def != nil && def.MaxStack > 0 {
		if u.ItemCount(itemID)+qty > def.MaxStack {
			return domain.ErrStackLimit
		}
	}
	switch itemID {
	case "potion":
		u.Potions += qty
	case "bait":
		u.Bait += qty
	default:
		if u.Inventory == nil {
			u.Inventory = map[string]int{}
		}
		u.Inventory[itemID] += qty
	}
	return nil
}

// RemoveItem debits qty of an item, declining without mutation when fewer are
// held. Inventory entries that reach zero are deleted.
func (e *Engine) RemoveItem(u *domain.UserRecord, itemID string, qty int) error {
	if qty <= 0 {
		qty = 1
	}
	if u.ItemCount(itemID) < qty {
		return domain.ErrInsufficientItems
	}
	switch itemID {
	case "potion":
		u.Potions -= qty
	case "bait":
		u.Bait -= qty
	default:
		u.Inventory[itemID] -= qty
		if u.Inventory[itemID] <= 0 {
			delete(u.Inventory, itemID)
		}
	}
	return nil
}

// UsePotion consumes one potion and heals by the catalog heal amount, clamped
// to the health capacity. Returns the amount actually healed.
func (e *Engine) UsePotion(u *domain.UserRecord) (int, error) {
	if u.Potions <= 0 {
		return 0, domain.ErrNoPotion
	}
	heal := 50
	if def := e.catalog.Item("potion"); def != nil && def.Heal > 0 {
		heal = def.Heal
	}
	u.Potions--
	before := u.HP
	u.HP = min(u.MaxHP, u.HP+heal)
	return u.HP - before, nil
}

// BuyItem debits gold and credits the item atomically: every precondition is
// checked before the first mutation, so a decline changes nothing.
func (e *Engine) BuyItem(u *domain.UserRecord, itemID string, qty int) (*domain.ItemDefinition, error) {
	if qty <= 0 {
		qty = 1
	}
	def := e.catalog.Item(itemID)
	if def == nil {
		return nil, domain.ErrUnknownItem
	}
	total := def.Price * int64(qty)
	if u.Gold < total {
		return nil, &domain.InsufficientFundsError{Need: total, Have: u.Gold}
	}
	if def.MaxStack > 0 && u.ItemCount(itemID)+qty > def.MaxStack {
		return nil, domain.ErrStackLimit
	}
	u.Gold -= total
	if err := e.AddItem(u, itemID, qty); err != nil {
		// not reachable: the stack limit was checked above
		u.Gold += total
		return nil, err
	}
	return def, nil
}

// SellItem removes qty of an item and credits its catalog sell price.
func (e *Engine) SellItem(u *domain.UserRecord, itemID string, qty int) (int64, error) {
	if qty <= 0 {
		qty = 1
	}
	def := e.catalog.Item(itemID)
	if def == nil {
		return 0, domain.ErrUnknownItem
	}
	if err := e.RemoveItem(u, itemID, qty); err != nil {
		return 0, err
	}
	earned := def.SellPrice * int64(qty)
	u.Gold += earned
	return earned, nil
}
