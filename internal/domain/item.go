package domain

// ItemCategory classifies catalog entries.
type ItemCategory string

const (
	CategoryConsumable ItemCategory = "consumable"
	CategoryMaterial   ItemCategory = "material"
	CategoryWeapon     ItemCategory = "weapon"
	CategoryArmor      ItemCategory = "armor"
	CategoryAccessory  ItemCategory = "accessory"
)

// ItemDefinition is a static catalog entry. The catalog is read-only at
// runtime; gameplay consults it but never mutates it.
type ItemDefinition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Category    ItemCategory `json:"category" yaml:"category"`
	Rarity      string       `json:"rarity,omitempty" yaml:"rarity"`
	Price       int64        `json:"price" yaml:"price"`
	SellPrice   int64        `json:"sell_price" yaml:"sell_price"`
	// MaxStack of 0 means the item does not stack.
	MaxStack     int            `json:"max_stack,omitempty" yaml:"max_stack"`
	Heal         int            `json:"heal,omitempty" yaml:"heal"`
	AttackBonus  int            `json:"attack_bonus,omitempty" yaml:"attack_bonus"`
	DefenseBonus int            `json:"defense_bonus,omitempty" yaml:"defense_bonus"`
	StatBonus    map[string]int `json:"stat_bonus,omitempty" yaml:"stat_bonus"`
}

// Stackable reports whether more than one copy may share an inventory slot.
func (d *ItemDefinition) Stackable() bool { return d.MaxStack > 0 }

// ShopEntry is one line of the shop listing.
type ShopEntry struct {
	ItemID string `json:"item_id" yaml:"item_id"`
	Qty    int    `json:"qty" yaml:"qty"`
}

// Enemy describes an opponent for the battle command.
type Enemy struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Level      int    `json:"level" yaml:"level"`
	HP         int    `json:"hp" yaml:"hp"`
	Attack     int    `json:"attack" yaml:"attack"`
	Defense    int    `json:"defense" yaml:"defense"`
	ExpReward  int64  `json:"exp_reward" yaml:"exp_reward"`
	GoldReward int64  `json:"gold_reward" yaml:"gold_reward"`
}

// Catalog bundles the static game data seeded into the store at startup.
type Catalog struct {
	Items   map[string]*ItemDefinition `json:"items" yaml:"items"`
	Shop    []ShopEntry                `json:"shop" yaml:"shop"`
	Enemies map[string]*Enemy          `json:"enemies" yaml:"enemies"`
}

// Item looks up a definition, nil when the id is unknown.
func (c *Catalog) Item(id string) *ItemDefinition {
	if c == nil {
		return nil
	}
	return c.Items[id]
}

// Enemy looks up an enemy definition, nil when the id is unknown.
func (c *Catalog) EnemyByID(id string) *Enemy {
	if c == nil {
		return nil
	}
	return c.Enemies[id]
}
