package channels

import (
	"fmt"
	"os"
	"path/filepath"
)

var defaultFiles = []struct {
	name string
	body string
}{
	{"local.yml", defaultLocal},
	{"global.yml", defaultGlobal},
	{"staff.yml", defaultStaff},
}

// WriteDefaults writes the stock channel files into dir, leaving existing
// files alone.
func WriteDefaults(dir string) error {
	for _, f := range defaultFiles {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(f.body), 0644); err != nil {
			return fmt.Errorf("channels: write default %s: %w", f.name, err)
		}
	}
	return nil
}

const defaultLocal = `id: local
type: LOCAL
commands: [l, local]
permission: nightchat.channel.local

distance: 50
delay_message: 5
mentionable: false
highlight: false
prevent_capslock: true

format: "&e{channel_logo} {money_tycoon} {money} {prime} {suffix} {prefix} {nick}&f: &e{message}"
spy: "&dSPY &e{prefix} {nick}&f: &e{message}"

currency:
  enabled: true
  type: money
  min_balance: 0
  message_cost: 0
  show_message_cost: false

tags:
  - id: channel_logo
    hover: ["&e[L]"]
    suggest: ["&7Local chat"]
  - id: suffix
    hover: ["&r%perms_suffix%"]
  - id: prefix
    hover: ["&r%perms_prefix%"]
  - id: nick
    hover: ["&r%player%"]
    suggest: ["&7Player &e%player%"]

custom_tags:
  - id: money_tycoon
    hover: ["%economy_money_tycoon%"]
    suggest: ["&7The richest player", "&fon the server"]
  - id: money
    hover: ["%economy_money_balance%"]
    suggest: ["&7Balance of &e%player%"]
    suggest_command: ["/balance money"]
    permission: nightchat.tag.money
  - id: prime
    hover: ["&6[Prime]"]
    suggest: ["&7This player is &bPrime"]
    permission: nightchat.tag.prime
`

const defaultGlobal = `id: global
type: GLOBAL
commands: [g, global, "!"]
permission: nightchat.channel.global

distance: 0
delay_message: 0
mentionable: true
highlight: false
prevent_capslock: true

format: "&b[G] {suffix} {prefix} {nick}&f: &b{message}"
spy: "&dSPY &b{prefix} {nick}&f: &b{message}"

currency:
  enabled: false
  type: money
`

const defaultStaff = `id: staff
type: STAFF
commands: [s, staff, "@"]
permission: nightchat.channel.staff

distance: 0
delay_message: 0
mentionable: false
highlight: false
prevent_capslock: false

format: "&d[@] {suffix} {prefix} {nick}&f: &d{message}"
spy: "&dSPY &d{prefix} {nick}&f: &d{message}"

currency:
  enabled: false
  type: money
`
