package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/tictactoe"
	"github.com/vinzz/vinzz-rpg-bot/internal/wagate"
)

func (d *Dispatcher) buildTable() {
	d.table = make(map[string]*command)

	d.register(&command{name: "help", aliases: []string{"menu"}, run: d.cmdHelp})
	d.register(&command{name: "profile", aliases: []string{"me"}, run: d.cmdProfile})
	d.register(&command{name: "stats", run: d.cmdStats})
	d.register(&command{name: "inventory", aliases: []string{"inv"}, run: d.cmdInventory})
	d.register(&command{name: "shop", run: d.cmdShop})
	d.register(&command{name: "buy", run: d.cmdBuy})
	d.register(&command{name: "sell", run: d.cmdSell})
	d.register(&command{name: "use", run: d.cmdUse})
	d.register(&command{name: "hunt", run: d.cmdHunt})
	d.register(&command{name: "fish", aliases: []string{"fishing"}, run: d.cmdFish})
	d.register(&command{name: "battle", run: d.cmdBattle})
	d.register(&command{name: "leaderboard", aliases: []string{"top"}, run: d.cmdLeaderboard})
	d.register(&command{name: "ttt", aliases: []string{"tictactoe"}, run: d.cmdTTT})
	d.register(&command{name: "subbot", aliases: []string{"jadibot"}, run: d.cmdSubbot})

	d.register(&command{name: "warn", admin: true, run: d.cmdWarn})
	d.register(&command{name: "unban", admin: true, run: d.cmdUnban})
	d.register(&command{name: "spamstat", admin: true, run: d.cmdSpamstat})
}

func (d *Dispatcher) cmdHelp(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range d.ordered {
		if c.admin {
			continue
		}
		b.WriteString("  !")
		b.WriteString(c.name)
		if len(c.aliases) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(c.aliases, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d *Dispatcher) cmdProfile(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	u, err := d.users.GetUser(ctx, msg.SenderID)
	if err != nil {
		return "", err
	}
	if u.Name != msg.SenderName && msg.SenderName != "" {
		u, err = d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
			u.Name = msg.SenderName
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	return d.engine.ProfileText(u), nil
}

func (d *Dispatcher) cmdStats(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	u, err := d.users.GetUser(ctx, msg.SenderID)
	if err != nil {
		return "", err
	}
	return d.engine.StatsText(u), nil
}

func (d *Dispatcher) cmdInventory(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	u, err := d.users.GetUser(ctx, msg.SenderID)
	if err != nil {
		return "", err
	}
	return d.engine.InventoryText(u), nil
}

func (d *Dispatcher) cmdShop(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	return d.engine.ShopText(), nil
}

func (d *Dispatcher) cmdBuy(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !buy <item> [qty]", nil
	}
	itemID := strings.ToLower(args[0])
	qty := 1
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			qty = n
		}
	}
	var def *domain.ItemDefinition
	_, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		var err error
		def, err = d.engine.BuyItem(u, itemID, qty)
		return err
	})
	if err != nil {
		return "", err
	}
	return d.messages.MustRender("rpg.bought", map[string]any{
		"Qty": qty, "Item": def.Name, "Gold": def.Price * int64(qty),
	}), nil
}

func (d *Dispatcher) cmdSell(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !sell <item> [qty]", nil
	}
	itemID := strings.ToLower(args[0])
	qty := 1
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			qty = n
		}
	}
	var earned int64
	_, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		var err error
		earned, err = d.engine.SellItem(u, itemID, qty)
		return err
	})
	if err != nil {
		return "", err
	}
	name := itemID
	if def := d.engine.Catalog().Item(itemID); def != nil {
		name = def.Name
	}
	return d.messages.MustRender("rpg.sold", map[string]any{
		"Qty": qty, "Item": name, "Gold": earned,
	}), nil
}

func (d *Dispatcher) cmdUse(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 || strings.ToLower(args[0]) != "potion" {
		return "Usage: !use potion", nil
	}
	var healed int
	full := false
	u, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		// holding a potion at full health keeps it
		if u.Potions > 0 && u.HP >= u.MaxHP {
			full = true
			return nil
		}
		var err error
		healed, err = d.engine.UsePotion(u)
		return err
	})
	if err != nil {
		return "", err
	}
	if full {
		return d.messages.MustRender("rpg.potion_full", nil), nil
	}
	return d.messages.MustRender("rpg.potion_used", map[string]any{
		"Healed": healed, "HP": u.HP, "MaxHP": u.MaxHP,
	}), nil
}

func (d *Dispatcher) cmdHunt(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	var out *rpg.ActionOutcome
	u, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		out = d.engine.Hunt(u)
		return nil
	})
	if err != nil {
		return "", err
	}
	reply := d.messages.MustRender("rpg.hunt", map[string]any{
		"Exp": out.ExpGained, "Gold": out.GoldGained, "Drop": d.dropName(out.Drop),
	})
	return d.withLevelUp(reply, u, out.Level), nil
}

func (d *Dispatcher) cmdFish(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	var out *rpg.ActionOutcome
	u, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		var err error
		out, err = d.engine.Fish(u)
		return err
	})
	if err != nil {
		return "", err
	}
	reply := d.messages.MustRender("rpg.fish", map[string]any{
		"Exp": out.ExpGained, "Gold": out.GoldGained, "Drop": d.dropName(out.Drop), "Bait": out.BaitLeft,
	})
	return d.withLevelUp(reply, u, out.Level), nil
}

func (d *Dispatcher) cmdBattle(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		var names []string
		for _, e := range d.engine.Catalog().Enemies {
			names = append(names, e.ID)
		}
		return "Usage: !battle <enemy> [difficulty]\nEnemies: " + strings.Join(names, ", "), nil
	}
	enemyID := strings.ToLower(args[0])
	difficulty := "easy"
	if len(args) > 1 {
		difficulty = strings.ToLower(args[1])
	}
	var res *rpg.BattleResult
	u, err := d.users.UpdateUser(ctx, msg.SenderID, func(u *domain.UserRecord) error {
		var err error
		res, err = d.engine.Battle(u, enemyID, difficulty)
		return err
	})
	if err != nil {
		return "", err
	}
	if !res.Won {
		return d.messages.MustRender("rpg.battle_loss", map[string]any{
			"Enemy": res.Enemy.Name, "Difficulty": res.Difficulty,
		}), nil
	}
	reply := d.messages.MustRender("rpg.battle_win", map[string]any{
		"Enemy": res.Enemy.Name, "Difficulty": res.Difficulty,
		"Exp": res.ExpGained, "Gold": res.GoldGained, "Damage": res.DamageTaken,
	})
	return d.withLevelUp(reply, u, res.Level), nil
}

func (d *Dispatcher) cmdLeaderboard(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	by := "level"
	if len(args) > 0 {
		by = strings.ToLower(args[0])
	}
	users, err := d.users.AllUsers(ctx)
	if err != nil {
		return "", err
	}
	return rpg.LeaderboardText(users, by, 10), nil
}

func (d *Dispatcher) cmdTTT(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return d.messages.MustRender("ttt.usage", nil), nil
	}
	switch strings.ToLower(args[0]) {
	case "join":
		if len(args) < 2 {
			return d.messages.MustRender("ttt.usage", nil), nil
		}
		g, err := d.games.Join(ctx, args[1], msg.SenderID)
		if err != nil {
			return "", err
		}
		return d.messages.MustRender("ttt.joined", map[string]any{
			"PlayerX": g.PlayerX, "Board": tictactoe.RenderBoard(g.Board),
		}), nil
	case "move":
		if len(args) < 3 {
			return d.messages.MustRender("ttt.usage", nil), nil
		}
		pos, err := strconv.Atoi(args[2])
		if err != nil {
			return d.messages.MustRender("ttt.position_range", nil), nil
		}
		res, err := d.games.Move(ctx, args[1], msg.SenderID, pos)
		if err != nil {
			return "", err
		}
		return d.moveReply(res), nil
	case "board":
		if len(args) < 2 {
			return d.messages.MustRender("ttt.usage", nil), nil
		}
		g, err := d.games.Get(ctx, args[1])
		if err != nil {
			return "", err
		}
		return d.messages.MustRender("ttt.board", map[string]any{
			"ID": g.ID, "Turn": string(g.Turn), "Board": tictactoe.RenderBoard(g.Board),
		}), nil
	case "quit", "forfeit":
		if len(args) < 2 {
			return d.messages.MustRender("ttt.usage", nil), nil
		}
		res, err := d.games.Forfeit(ctx, args[1], msg.SenderID)
		if err != nil {
			return "", err
		}
		return d.messages.MustRender("ttt.forfeit", map[string]any{
			"Loser": res.Game.Opponent(res.Game.Winner), "Winner": res.Game.Winner,
			"Transferred": res.Transferred, "Wager": res.Game.Wager,
		}), nil
	default:
		opponent := d.mentionTarget(msg, args[0])
		if opponent == "" {
			return d.messages.MustRender("ttt.usage", nil), nil
		}
		var wager int64
		if len(args) > 1 {
			if n, err := strconv.ParseInt(args[1], 10, 64); err == nil && n > 0 {
				wager = n
			}
		}
		g, err := d.games.Create(ctx, msg.SenderID, opponent, wager)
		if err != nil {
			return "", err
		}
		return d.messages.MustRender("ttt.created", map[string]any{
			"ID": g.ID, "Wager": g.Wager,
		}), nil
	}
}

func (d *Dispatcher) moveReply(res *tictactoe.MoveResult) string {
	g := res.Game
	board := tictactoe.RenderBoard(g.Board)
	switch {
	case res.Draw:
		return d.messages.MustRender("ttt.draw", map[string]any{"Board": board})
	case res.Finished:
		return d.messages.MustRender("ttt.win", map[string]any{
			"Winner": g.Winner, "Transferred": res.Transferred,
			"Wager": g.Wager, "Board": board,
		})
	default:
		return d.messages.MustRender("ttt.moved", map[string]any{
			"Board": board, "Turn": string(g.Turn),
		})
	}
}

func (d *Dispatcher) cmdSubbot(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return d.messages.MustRender("subbot.usage", nil), nil
	}
	switch strings.ToLower(args[0]) {
	case "create":
		if len(args) < 2 {
			return d.messages.MustRender("subbot.usage", nil), nil
		}
		name := ""
		if len(args) > 2 {
			name = args[2]
		}
		b, err := d.bots.Create(ctx, msg.SenderID, name, "!", args[1])
		if err != nil {
			return "", err
		}
		if _, err := d.bots.Start(ctx, b.ID); err != nil {
			return "", err
		}
		return d.messages.MustRender("subbot.created", map[string]any{
			"Name": b.Name, "ID": b.ID,
		}), nil
	case "list":
		bots, err := d.bots.ByOwner(ctx, msg.SenderID)
		if err != nil {
			return "", err
		}
		if len(bots) == 0 {
			return "You own no bots.", nil
		}
		var b strings.Builder
		for _, bot := range bots {
			fmt.Fprintf(&b, "%s  %s  [%s]\n", bot.ID, bot.Name, bot.Status)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case "stop":
		if len(args) < 2 {
			return d.messages.MustRender("subbot.usage", nil), nil
		}
		b, err := d.bots.Get(ctx, args[1])
		if err != nil {
			return "", err
		}
		if b.Owner != msg.SenderID && !d.admins[msg.SenderID] {
			return d.messages.MustRender("admin.denied", nil), nil
		}
		if _, err := d.bots.Stop(ctx, args[1]); err != nil {
			return "", err
		}
		return d.messages.MustRender("subbot.stopped", map[string]any{"ID": args[1]}), nil
	default:
		return d.messages.MustRender("subbot.usage", nil), nil
	}
}

func (d *Dispatcher) cmdWarn(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !warn @user [reason]", nil
	}
	target := d.mentionTarget(msg, args[0])
	if target == "" {
		return "Usage: !warn @user [reason]", nil
	}
	reason := "spam"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	res, err := d.limiter.AddWarning(ctx, target, reason)
	if err != nil {
		return "", err
	}
	if res.Banned {
		return d.messages.MustRender("admin.banned", map[string]any{
			"User": target, "Until": res.BanExpires.Format(time.RFC1123),
		}), nil
	}
	return d.messages.MustRender("admin.warned", map[string]any{
		"User": target, "Count": res.Warnings, "Max": res.MaxWarnings,
	}), nil
}

func (d *Dispatcher) cmdUnban(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !unban @user", nil
	}
	target := d.mentionTarget(msg, args[0])
	if target == "" {
		return "Usage: !unban @user", nil
	}
	had, err := d.limiter.Unban(ctx, target)
	if err != nil {
		return "", err
	}
	if !had {
		return d.messages.MustRender("admin.not_banned", map[string]any{"User": target}), nil
	}
	return d.messages.MustRender("admin.unbanned", map[string]any{"User": target}), nil
}

func (d *Dispatcher) cmdSpamstat(ctx context.Context, msg *wagate.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !spamstat @user", nil
	}
	target := d.mentionTarget(msg, args[0])
	if target == "" {
		return "Usage: !spamstat @user", nil
	}
	st, err := d.limiter.Stats(ctx, target)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: warnings %d/%d", target, st.Warnings, st.MaxWarnings)
	if st.Banned && st.Ban != nil {
		fmt.Fprintf(&b, ", banned until %s", st.Ban.ExpiresAt.Format(time.RFC1123))
	}
	return b.String(), nil
}

// mentionTarget resolves a command target from the mention list when the
// transport provides one, falling back to the raw argument.
func (d *Dispatcher) mentionTarget(msg *wagate.Message, arg string) string {
	if len(msg.Mentions) > 0 {
		return msg.Mentions[0]
	}
	return strings.TrimPrefix(strings.TrimSpace(arg), "@")
}

func (d *Dispatcher) dropName(id string) string {
	if id == "" {
		return ""
	}
	if def := d.engine.Catalog().Item(id); def != nil {
		return def.Name
	}
	return id
}

func (d *Dispatcher) withLevelUp(reply string, u *domain.UserRecord, lv rpg.LevelResult) string {
	if !lv.Leveled {
		return reply
	}
	name := u.Name
	if name == "" {
		name = u.ID
	}
	return reply + "\n" + d.messages.MustRender("rpg.levelup", map[string]any{
		"Name": name, "Level": lv.NewLevel,
	})
}
