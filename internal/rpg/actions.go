package rpg

import (
	"math"
	"math/rand"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

// ActionOutcome is the result of a gathering action (hunt or fish).
type ActionOutcome struct {
	ExpGained  int64
	GoldGained int64
	Drop       string
	BaitLeft   int
	Level      LevelResult
}

// Hunt rolls a reward in the configured hunt range, with a chance of a
// material drop, and advances the hunt counter.
func (e *Engine) Hunt(u *domain.UserRecord) *ActionOutcome {
	out := e.gather(u, e.cfg.HuntReward)
	u.TotalHunts++
	return out
}

// Fish consumes one bait, then rolls a reward in the configured fish range.
func (e *Engine) Fish(u *domain.UserRecord) (*ActionOutcome, error) {
	if u.Bait <= 0 {
		return nil, domain.ErrNoBait
	}
	u.Bait--
	out := e.gather(u, e.cfg.FishReward)
	out.BaitLeft = u.Bait
	u.TotalFishes++
	return out, nil
}

func (e *Engine) gather(u *domain.UserRecord, r RewardRange) *ActionOutcome {
	out := &ActionOutcome{
		ExpGained:  e.randInt(r.MinExp, r.MaxExp),
		GoldGained: e.randInt(r.MinGold, r.MaxGold),
	}
	u.Gold += out.GoldGained
	if len(r.Drops) > 0 && e.randFlt() < r.DropChance {
		drop := r.Drops[e.randInt(0, int64(len(r.Drops)-1))]
		if err := e.AddItem(u, drop, 1); err == nil {
			out.Drop = drop
		}
	}
	out.Level = e.GrantExperience(u, out.ExpGained)
	return out
}

// BattleResult summarizes one battle simulation.
type BattleResult struct {
	Won         bool
	Enemy       *domain.Enemy
	Difficulty  string
	ExpGained   int64
	GoldGained  int64
	DamageTaken int
	Level       LevelResult
}

// Battle simulates a fight against a catalog enemy. Both sides trade blows of
// `attack - defense` (minimum 1) per round; whoever would fall first loses.
// Rewards scale with the chosen difficulty. A defeat costs health down to 1
// but never kills; no rewards are paid on a loss.
func (e *Engine) Battle(u *domain.UserRecord, enemyID, difficulty string) (*BattleResult, error) {
	enemy := e.catalog.EnemyByID(enemyID)
	if enemy == nil {
		return nil, domain.ErrUnknownEnemy
	}
	mult, ok := e.cfg.Difficulties[difficulty]
	if !ok {
		difficulty = "easy"
		mult = e.cfg.Difficulties["easy"]
		if mult == 0 {
			mult = 1
		}
	}

	playerHit := max(1, u.Attack-enemy.Defense)
	enemyHit := max(1, enemy.Attack-u.Defense)
	roundsToWin := ceilDiv(enemy.HP, playerHit)
	roundsToLose := ceilDiv(u.HP, enemyHit)

	res := &BattleResult{Enemy: enemy, Difficulty: difficulty}
	u.TotalBattles++

	if roundsToWin <= roundsToLose {
		res.Won = true
		// The enemy lands one hit fewer than the rounds it survives.
		res.DamageTaken = (roundsToWin - 1) * enemyHit
		if res.DamageTaken >= u.HP {
			res.DamageTaken = u.HP - 1
		}
		u.HP -= res.DamageTaken
		res.ExpGained = int64(math.Floor(float64(enemy.ExpReward) * mult))
		res.GoldGained = int64(math.Floor(float64(enemy.GoldReward) * mult))
		u.Gold += res.GoldGained
		res.Level = e.GrantExperience(u, res.ExpGained)
		return res, nil
	}

	res.DamageTaken = u.HP - 1
	u.HP = 1
	return res, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func randBetween(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + rand.Int63n(max-min+1)
}

func randFloat() float64 { return rand.Float64() }
