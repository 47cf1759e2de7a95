package server

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/crystal-mush/nightchat/pkg/archive"
	"github.com/crystal-mush/nightchat/pkg/chat"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/dustin/go-humanize"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errPlayerOnly     = errors.New("command needs a player")
)

// Actor is whoever issued a command: a connected player or the console.
type Actor struct {
	Player  chatdb.Player
	Console bool
}

// ConsoleActor returns the actor used for server-side commands.
func ConsoleActor() Actor {
	return Actor{Player: chatdb.Player{Name: "CONSOLE", Elevated: true}, Console: true}
}

// CommandHandler is the signature for command implementations.
type CommandHandler func(h *Host, a Actor, args string)

// Command represents a registered command.
type Command struct {
	Name       string
	Usage      string
	Handler    CommandHandler
	Node       func(c *ChatConf) string // Permission node; nil for everyone
	PlayerOnly bool
}

func adminNode(c *ChatConf) string { return c.Nodes.Admin }
func spyNode(c *ChatConf) string   { return c.Nodes.Spy }

// InitCommands registers all available commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(c *Command, aliases ...string) {
		cmds[c.Name] = c
		for _, a := range aliases {
			cmds[a] = c
		}
	}

	register(&Command{Name: "help", Usage: "/help", Handler: cmdHelp})
	register(&Command{Name: "tell", Usage: "/tell <player> <message>", Handler: cmdTell, PlayerOnly: true}, "msg", "w")
	register(&Command{Name: "mute", Usage: "/mute <channel>", Handler: cmdMute, PlayerOnly: true})
	register(&Command{Name: "muteall", Usage: "/muteall <player>", Handler: cmdMuteAll, PlayerOnly: true})
	register(&Command{Name: "ignore", Usage: "/ignore <player>", Handler: cmdIgnore, PlayerOnly: true})
	register(&Command{Name: "spy", Usage: "/spy <channel>", Handler: cmdSpy, Node: spyNode, PlayerOnly: true})
	register(&Command{Name: "channels", Usage: "/channels", Handler: cmdChannels})
	register(&Command{Name: "balance", Usage: "/balance [currency|history]", Handler: cmdBalance, PlayerOnly: true}, "bal")
	register(&Command{Name: "move", Usage: "/move <x> <y> <z> [world]", Handler: cmdMove, PlayerOnly: true})
	register(&Command{Name: "who", Usage: "/who", Handler: cmdWho})
	register(&Command{Name: "nightchat", Usage: "/nightchat reload|pay|backup|backups|verify|flush|debug", Handler: cmdNightchat}, "nc")
	register(&Command{Name: "kick", Usage: "/kick <player> [reason]", Handler: cmdKick, Node: adminNode})

	return cmds
}

// Dispatch runs one line of input. Players' plain text is chat; for the
// console, plain text is a command.
func (h *Host) Dispatch(a Actor, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if !strings.HasPrefix(input, "/") {
		if !a.Console {
			if err := h.Chat.OnChatSubmitted(a.Player, input); err != nil && !chat.IsUserError(err) {
				log.Printf("server: chat from %s: %v", a.Player.Name, err)
			}
			return nil
		}
		input = "/" + input
	}

	name, args := splitArg(input[1:])
	key := strings.ToLower(name)
	if cmd, ok := h.commands[key]; ok {
		if cmd.PlayerOnly && a.Console {
			h.reply(a, "&cThat command needs a player.")
			return errPlayerOnly
		}
		if cmd.Node != nil && !h.hasNode(a, cmd.Node(h.Conf())) {
			h.reply(a, "&cYou do not have permission to use that command.")
			return chatdb.ErrPermissionDenied
		}
		h.Metrics.command(cmd.Name)
		DebugLog("command %s by %s: %s", cmd.Name, a.Player.Name, args)
		cmd.Handler(h, a, args)
		return nil
	}

	if !a.Console && len(h.Registry.Snapshot().ByAlias(key)) > 0 {
		h.Metrics.command("alias")
		if err := h.Chat.SendToAlias(a.Player, key, args); err != nil && !chat.IsUserError(err) {
			log.Printf("server: chat from %s: %v", a.Player.Name, err)
		}
		return nil
	}

	h.reply(a, "&cUnknown command. Type /help for a list.")
	return fmt.Errorf("%w: %s", errUnknownCommand, name)
}

// reply sends feedback text with color codes to the actor.
func (h *Host) reply(a Actor, text string) {
	if a.Console {
		log.Printf("console: %s", render.StripCodes(text))
		return
	}
	h.Bus.EmitToPlayer(a.Player.ID, systemEvent(text))
}

func (h *Host) hasNode(a Actor, node string) bool {
	if a.Console {
		return true
	}
	return h.Chat.Policy().HasPermission(a.Player, node)
}

// resolvePlayer finds an online player, or an offline one seen before.
func (h *Host) resolvePlayer(name string) (chatdb.Player, bool) {
	if p, ok := h.World.Lookup(name); ok {
		return p, true
	}
	if id, ok := h.Store.LookupPlayer(name); ok {
		return chatdb.Player{ID: id, Name: name}, true
	}
	return chatdb.Player{}, false
}

// splitArg splits off the first whitespace-separated word.
func splitArg(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func cmdHelp(h *Host, a Actor, args string) {
	seen := make(map[string]bool)
	var lines []string
	for _, cmd := range h.commands {
		if seen[cmd.Name] {
			continue
		}
		seen[cmd.Name] = true
		if cmd.Node != nil && !h.hasNode(a, cmd.Node(h.Conf())) {
			continue
		}
		lines = append(lines, "&e"+cmd.Usage)
	}
	sort.Strings(lines)
	h.reply(a, "&6Commands:")
	for _, l := range lines {
		h.reply(a, "  "+l)
	}
	h.reply(a, "&7Channel aliases: &e/"+strings.Join(h.Registry.Snapshot().Aliases(), " /"))
}

func cmdTell(h *Host, a Actor, args string) {
	target, msg := splitArg(args)
	if target == "" {
		h.reply(a, "&cUsage: /tell <player> <message>")
		return
	}
	h.Chat.Tell(a.Player, target, msg)
}

func cmdMute(h *Host, a Actor, args string) {
	id, _ := splitArg(args)
	if id == "" {
		h.reply(a, "&cUsage: /mute <channel>")
		return
	}
	on, err := h.Chat.ToggleMuteChannel(a.Player, id)
	if err != nil {
		h.reply(a, chatdb.UserMessage(err, nil))
		return
	}
	name := h.Registry.Resolve(id).DisplayName()
	if on {
		h.reply(a, fmt.Sprintf("&7You muted &e%s&7.", name))
	} else {
		h.reply(a, fmt.Sprintf("&7You unmuted &e%s&7.", name))
	}
}

func cmdSpy(h *Host, a Actor, args string) {
	id, _ := splitArg(args)
	if id == "" {
		h.reply(a, "&cUsage: /spy <channel>")
		return
	}
	on, err := h.Chat.ToggleSpyChannel(a.Player, id)
	if err != nil {
		h.reply(a, chatdb.UserMessage(err, nil))
		return
	}
	name := h.Registry.Resolve(id).DisplayName()
	if on {
		h.reply(a, fmt.Sprintf("&7You are now spying on &e%s&7.", name))
	} else {
		h.reply(a, fmt.Sprintf("&7You stopped spying on &e%s&7.", name))
	}
}

// playerToggle resolves the target of /muteall and /ignore.
func (h *Host) playerToggle(a Actor, args, usage string) (chatdb.Player, bool) {
	name, _ := splitArg(args)
	if name == "" {
		h.reply(a, "&cUsage: "+usage)
		return chatdb.Player{}, false
	}
	target, ok := h.resolvePlayer(name)
	if !ok {
		h.reply(a, chatdb.UserMessage(chatdb.ErrPlayerNotFound, nil))
		return chatdb.Player{}, false
	}
	if target.ID == a.Player.ID {
		h.reply(a, "&cYou cannot do that to yourself.")
		return chatdb.Player{}, false
	}
	return target, true
}

func cmdMuteAll(h *Host, a Actor, args string) {
	target, ok := h.playerToggle(a, args, "/muteall <player>")
	if !ok {
		return
	}
	if h.Chat.ToggleMutePlayer(a.Player, target.ID) {
		h.reply(a, fmt.Sprintf("&7You muted &e%s&7 on every channel.", target.Name))
	} else {
		h.reply(a, fmt.Sprintf("&7You unmuted &e%s&7.", target.Name))
	}
}

func cmdIgnore(h *Host, a Actor, args string) {
	target, ok := h.playerToggle(a, args, "/ignore <player>")
	if !ok {
		return
	}
	if h.Chat.ToggleIgnore(a.Player, target.ID) {
		h.reply(a, fmt.Sprintf("&7You are now ignoring &e%s&7.", target.Name))
	} else {
		h.reply(a, fmt.Sprintf("&7You are no longer ignoring &e%s&7.", target.Name))
	}
}

func cmdChannels(h *Host, a Actor, args string) {
	pol := h.Chat.Policy()
	st := h.Chat.State(a.Player.ID)
	h.reply(a, "&6Channels:")
	for _, ch := range h.Registry.All() {
		spying := st.SpyChannels[ch.ID]
		if !a.Console && !pol.CanUse(a.Player, ch) && !spying {
			continue
		}
		line := fmt.Sprintf("  &e%s &8(%s)", ch.DisplayName(), strings.ToLower(ch.Type.String()))
		if len(ch.Aliases) > 0 {
			line += " &7/" + strings.Join(ch.Aliases, " /")
		}
		if ch.Type == chatdb.TypeLocal {
			line += fmt.Sprintf(" &7%.0f blocks", ch.EffectiveRadius())
		}
		if ch.Currency.Applies() && ch.Currency.Cost > 0 {
			line += fmt.Sprintf(" &7cost %s %s", render.FormatCompact(ch.Currency.Cost), ch.Currency.CurrencyID)
		}
		if st.MutedChannels[ch.ID] {
			line += " &c[muted]"
		}
		if spying {
			line += " &d[spy]"
		}
		h.reply(a, line)
	}
}

func cmdBalance(h *Host, a Actor, args string) {
	if h.Economy == nil || !h.Economy.Ready() {
		h.reply(a, "&cThe economy is not available.")
		return
	}
	cur, _ := splitArg(args)
	if strings.EqualFold(cur, "history") {
		balanceHistory(h, a)
		return
	}
	if cur == "" {
		cur = h.Conf().Economy.DefaultCurrency
	}
	bal, err := h.Economy.Balance(a.Player, cur)
	if err != nil {
		log.Printf("server: %v", err)
		h.reply(a, "&cYour balance is unavailable right now.")
		return
	}
	h.reply(a, fmt.Sprintf("&7Balance: &e%s &7%s", render.FormatCompact(bal), cur))
	if top, err := h.Economy.TopHolderName(cur); err == nil && top != "" {
		h.reply(a, fmt.Sprintf("&7Top holder: &e%s", top))
	}
}

const historyLimit = 10

func balanceHistory(h *Host, a Actor) {
	entries, err := h.Economy.History(a.Player, historyLimit)
	if err != nil {
		log.Printf("server: %v", err)
		h.reply(a, "&cYour history is unavailable right now.")
		return
	}
	if len(entries) == 0 {
		h.reply(a, "&7No transactions yet.")
		return
	}
	h.reply(a, "&6Recent transactions:")
	for _, e := range entries {
		color := "&a+"
		if e.Delta < 0 {
			color = "&c-"
		}
		h.reply(a, fmt.Sprintf("  %s%s &7%s &8%s, %s", color, render.FormatCompact(math.Abs(e.Delta)),
			e.Currency, e.Reason, humanize.Time(e.At)))
	}
}

// finite parses a float and rejects NaN and infinities.
func finite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func cmdMove(h *Host, a Actor, args string) {
	fields := strings.Fields(args)
	if len(fields) < 3 || len(fields) > 4 {
		h.reply(a, "&cUsage: /move <x> <y> <z> [world]")
		return
	}
	var pos [3]float64
	for i := range pos {
		v, ok := finite(fields[i])
		if !ok {
			h.reply(a, fmt.Sprintf("&cNot a number: %s", fields[i]))
			return
		}
		pos[i] = v
	}
	loc := Location{Pos: Vec{pos[0], pos[1], pos[2]}}
	if len(fields) == 4 {
		loc.World = fields[3]
	}
	if err := h.World.Move(a.Player.ID, loc); err != nil {
		h.reply(a, "&cYou are not in a world.")
		return
	}
	loc, _ = h.World.Where(a.Player.ID)
	h.reply(a, fmt.Sprintf("&7Moved to &e%s &7in &e%s&7.", loc.Pos, loc.World))
}

func cmdWho(h *Host, a Actor, args string) {
	sessions := h.Sessions.All()
	h.reply(a, fmt.Sprintf("&6Online (%d):", len(sessions)))
	for _, s := range sessions {
		where := "?"
		if loc, ok := h.World.Where(s.Player.ID); ok {
			where = loc.World
		}
		h.reply(a, fmt.Sprintf("  &e%-16s &7%s &8on %s, idle %s", s.Player.Name, where,
			FormatConnTime(time.Since(s.ConnTime)), FormatIdleTime(s.Idle())))
	}
}

func cmdNightchat(h *Host, a Actor, args string) {
	sub, rest := splitArg(args)
	conf := h.Conf()
	node := conf.Nodes.Admin
	if strings.EqualFold(sub, "reload") {
		node = conf.Nodes.Reload
	}
	if sub != "" && !h.hasNode(a, node) {
		h.reply(a, "&cYou do not have permission to use that command.")
		return
	}

	switch strings.ToLower(sub) {
	case "reload":
		if err := h.Reload(); err != nil {
			log.Printf("server: reload: %v", err)
			h.reply(a, "&cReload failed: "+err.Error())
			return
		}
		h.reply(a, fmt.Sprintf("&aReloaded. %d channel(s) active.", h.Registry.Snapshot().Len()))
	case "pay":
		ncPay(h, a, rest)
	case "backup":
		ncBackup(h, a)
	case "backups":
		ncBackups(h, a)
	case "verify":
		ncVerify(h, a, rest)
	case "flush":
		h.reply(a, fmt.Sprintf("&7Saved %d player state(s).", h.Chat.FlushAll()))
	case "debug":
		switch strings.ToLower(rest) {
		case "on":
			SetDebug(true)
		case "off":
			SetDebug(false)
		}
		h.reply(a, fmt.Sprintf("&7Debug logging: &e%v", IsDebug()))
	default:
		h.reply(a, "&6"+VersionString())
		h.reply(a, "&7Usage: /nightchat reload|pay <player> <amount> [currency]|backup|backups|verify <archive>|flush|debug [on|off]")
	}
}

func ncPay(h *Host, a Actor, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		h.reply(a, "&cUsage: /nightchat pay <player> <amount> [currency]")
		return
	}
	if h.Economy == nil || !h.Economy.Ready() {
		h.reply(a, "&cThe economy is not available.")
		return
	}
	amount, ok := finite(fields[1])
	if !ok || amount <= 0 {
		h.reply(a, "&cThe amount must be a positive number.")
		return
	}
	cur := h.Conf().Economy.DefaultCurrency
	if len(fields) == 3 {
		cur = fields[2]
	}
	target, ok := h.resolvePlayer(fields[0])
	if !ok {
		h.reply(a, chatdb.UserMessage(chatdb.ErrPlayerNotFound, nil))
		return
	}
	if err := h.Economy.Credit(target, cur, amount, "pay:"+a.Player.Name); err != nil {
		log.Printf("server: %v", err)
		h.reply(a, "&cPayment failed.")
		return
	}
	shown := render.FormatCompact(amount)
	h.reply(a, fmt.Sprintf("&7Paid &e%s %s &7to &e%s&7.", shown, cur, target.Name))
	if _, online := h.Sessions.ByPlayer(target.ID); online && target.ID != a.Player.ID {
		h.reply(Actor{Player: target}, fmt.Sprintf("&7You received &e%s %s&7.", shown, cur))
	}
}

func ncBackup(h *Host, a Actor) {
	s := h.Conf().Server
	params := archive.Params{
		StateSnapshot: h.Store.Backup,
		ChannelsDir:   s.ChannelsDir,
		ConfFiles:     []string{h.Conf().Path, s.PermissionsFile},
		ArchiveDir:    filepath.Join(s.DataDir, "backups"),
		Server:        VersionString(),
		Players:       h.Sessions.Count(),
		Channels:      h.Registry.Snapshot().Len(),
		Keep:          s.BackupKeep,
	}
	if h.Economy != nil {
		params.EconomyPath = h.Economy.Path()
		params.EconomyCheckpoint = h.Economy.Checkpoint
	}
	path, err := archive.CreateArchive(params)
	if err != nil {
		log.Printf("server: backup: %v", err)
		h.reply(a, "&cBackup failed: "+err.Error())
		return
	}
	log.Printf("server: backup written to %s", path)
	h.reply(a, "&7Backup written to &e"+path)
}

func ncBackups(h *Host, a Actor) {
	list, err := archive.ListArchives(filepath.Join(h.Conf().Server.DataDir, "backups"))
	if err != nil {
		h.reply(a, "&c"+err.Error())
		return
	}
	if len(list) == 0 {
		h.reply(a, "&7No backups yet.")
		return
	}
	for _, ai := range list {
		h.reply(a, fmt.Sprintf("&e%s &7%s, %d channel(s), taken %s", ai.Filename, humanize.Bytes(uint64(ai.Size)), ai.Channels, backupAge(ai.Timestamp)))
	}
}

func ncVerify(h *Host, a Actor, args string) {
	name, _ := splitArg(args)
	if name == "" {
		h.reply(a, "&cUsage: /nightchat verify <archive>")
		return
	}
	path := filepath.Join(h.Conf().Server.DataDir, "backups", filepath.Base(name))
	m, err := archive.Verify(path)
	if err != nil {
		log.Printf("server: verify %s: %v", path, err)
		h.reply(a, "&cVerify failed: "+err.Error())
		return
	}
	h.reply(a, fmt.Sprintf("&a%s is intact: &7%d file(s), %d player(s), %d channel(s), taken %s",
		filepath.Base(path), len(m.Files), m.Players, m.Channels, backupAge(m.Timestamp)))
}

// backupAge renders an RFC 3339 timestamp relative to now.
func backupAge(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func cmdKick(h *Host, a Actor, args string) {
	name, reason := splitArg(args)
	if name == "" {
		h.reply(a, "&cUsage: /kick <player> [reason]")
		return
	}
	s, ok := h.Sessions.ByName(name)
	if !ok {
		h.reply(a, chatdb.UserMessage(chatdb.ErrPlayerNotFound, nil))
		return
	}
	if reason == "" {
		reason = "Kicked by an operator."
	}
	s.Send(Frame{Type: "system", Text: "You were kicked: " + reason})
	h.Disconnect(s)
	log.Printf("server: %s kicked %s: %s", a.Player.Name, s.Player.Name, reason)
	h.reply(a, fmt.Sprintf("&7Kicked &e%s&7.", s.Player.Name))
}
