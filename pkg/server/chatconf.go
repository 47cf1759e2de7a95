package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chat"
	"github.com/crystal-mush/nightchat/pkg/economy"
	"github.com/crystal-mush/nightchat/pkg/filter"
	"github.com/crystal-mush/nightchat/pkg/policy"
	"gopkg.in/yaml.v3"
)

// ServerConf holds listener settings and file locations. Relative paths
// resolve against the directory of chat.yml, except the database files,
// which resolve against DataDir.
type ServerConf struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	TelnetPort      int      `yaml:"telnet_port"` // 0 disables the telnet listener
	DataDir         string   `yaml:"data_dir"`
	ChannelsDir     string   `yaml:"channels_dir"`
	PermissionsFile string   `yaml:"permissions_file"`
	StateDB         string   `yaml:"state_db"`
	EconomyDB       string   `yaml:"economy_db"` // Empty disables the economy
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimit       int      `yaml:"rate_limit"` // HTTP requests per minute per address
	WatchChannels   bool     `yaml:"watch_channels"`
	BackupKeep      int      `yaml:"backup_keep"` // archives kept by /nightchat backup; 0 keeps all
}

// ChannelConf holds delivery settings shared by all channels.
type ChannelConf struct {
	ShowMessage          bool `yaml:"show_message"`
	IgnoreGlobalMessages bool `yaml:"ignore_global_messages"`
}

// ReplaceConf configures replacement rules and sentence fixing.
type ReplaceConf struct {
	Enable        bool     `yaml:"enable"`
	EnableDefault bool     `yaml:"enable_default"`
	CapsMessage   bool     `yaml:"caps_message"`
	FixMessage    bool     `yaml:"fix_message"`
	Replacers     []string `yaml:"replacers"`
}

// CapslockConf configures the caps-lock detector.
type CapslockConf struct {
	Enable     bool `yaml:"enable"`
	MinLength  int  `yaml:"min_length"`
	Percentage int  `yaml:"percentage"`
}

// URLConf configures link blocking.
type URLConf struct {
	Enable            bool     `yaml:"enable"`
	Concatenate       bool     `yaml:"concatenate"`
	PunishmentCommand string   `yaml:"punishment_command"`
	AllowedDomains    []string `yaml:"allowed_domains"`
}

// TellConf configures private messages.
type TellConf struct {
	Format string `yaml:"format"`
}

// MentionConf configures @name highlighting.
type MentionConf struct {
	Color string `yaml:"color"`
}

// NodeConf names the permission nodes the host checks.
type NodeConf struct {
	Baseline    string `yaml:"baseline"`
	BypassDelay string `yaml:"bypass_delay"`
	Staff       string `yaml:"staff"`
	Spy         string `yaml:"spy"`
	Reload      string `yaml:"reload"`
	Admin       string `yaml:"admin"`
}

// EconomyConf configures the currency ledger.
type EconomyConf struct {
	DefaultCurrency string            `yaml:"default_currency"`
	StartingBalance float64           `yaml:"starting_balance"`
	TycoonTags      map[string]string `yaml:"tycoon_tags"`
	TimeoutSec      int               `yaml:"timeout"`
}

// ChatConf is the layout of chat.yml.
type ChatConf struct {
	Server   ServerConf   `yaml:"server"`
	Channel  ChannelConf  `yaml:"channel"`
	Replace  ReplaceConf  `yaml:"replace"`
	Capslock CapslockConf `yaml:"capslock"`
	URLs     URLConf      `yaml:"urls"`
	Tell     TellConf     `yaml:"tell"`
	Mentions MentionConf  `yaml:"mentions"`
	Nodes    NodeConf     `yaml:"nodes"`
	Economy  EconomyConf  `yaml:"economy"`

	// Path of the file this was loaded from; not serialized.
	Path string `yaml:"-"`
}

// DefaultChatConf returns a ChatConf with stock values.
func DefaultChatConf() *ChatConf {
	fo := filter.DefaultOptions()
	cc := chat.DefaultConfig()
	nodes := policy.DefaultNodes()
	return &ChatConf{
		Server: ServerConf{
			Port:            8080,
			TelnetPort:      4000,
			DataDir:         "data",
			ChannelsDir:     "channels",
			PermissionsFile: "permissions.yml",
			StateDB:         "players.db",
			EconomyDB:       "economy.db",
			RateLimit:       120,
			WatchChannels:   true,
			BackupKeep:      10,
		},
		Channel: ChannelConf{
			ShowMessage:          cc.ShowNobodyHeard,
			IgnoreGlobalMessages: cc.IgnoreInGlobal,
		},
		Replace: ReplaceConf{
			EnableDefault: fo.EnableDefault,
			Replacers:     []string{},
		},
		Capslock: CapslockConf{
			Enable:     fo.CapslockEnable,
			MinLength:  fo.CapsMinLength,
			Percentage: fo.CapsPercentage,
		},
		URLs: URLConf{
			Concatenate:       fo.Concatenate,
			PunishmentCommand: "kick @player Advertising is not allowed",
			AllowedDomains:    []string{},
		},
		Tell:     TellConf{Format: cc.TellFormat},
		Mentions: MentionConf{Color: cc.MentionColor},
		Nodes: NodeConf{
			BypassDelay: nodes.BypassDelay,
			Staff:       nodes.Staff,
			Spy:         "nightchat.spy",
			Reload:      "nightchat.reload",
			Admin:       "nightchat.admin",
		},
		Economy: EconomyConf{
			DefaultCurrency: "money",
			TycoonTags:      map[string]string{"money": "&2[$] %s"},
			TimeoutSec:      5,
		},
	}
}

// LoadChatConf reads chat.yml at path. A missing file yields defaults,
// which are written to path.
func LoadChatConf(path string) (*ChatConf, error) {
	cc := DefaultChatConf()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := writeYAML(path, cc); err != nil {
			return nil, fmt.Errorf("chatconf: %w", err)
		}
		log.Printf("chatconf: wrote default config to %s", path)
	case err != nil:
		return nil, fmt.Errorf("chatconf: reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cc); err != nil {
			return nil, fmt.Errorf("chatconf: parsing YAML %s: %w", path, err)
		}
	}
	cc.Path = path
	cc.resolve(filepath.Dir(path))
	return cc, nil
}

func (cc *ChatConf) resolve(base string) {
	abs := func(dir, p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s := &cc.Server
	s.DataDir = abs(base, s.DataDir)
	s.ChannelsDir = abs(base, s.ChannelsDir)
	s.PermissionsFile = abs(base, s.PermissionsFile)
	s.StateDB = abs(s.DataDir, s.StateDB)
	s.EconomyDB = abs(s.DataDir, s.EconomyDB)
}

// FilterOptions converts the filter sections.
func (cc *ChatConf) FilterOptions() filter.Options {
	return filter.Options{
		ReplaceEnable:  cc.Replace.Enable,
		EnableDefault:  cc.Replace.EnableDefault,
		FixMessage:     cc.Replace.FixMessage,
		CapsMessage:    cc.Replace.CapsMessage,
		Replacers:      cc.Replace.Replacers,
		CapslockEnable: cc.Capslock.Enable,
		CapsMinLength:  cc.Capslock.MinLength,
		CapsPercentage: cc.Capslock.Percentage,
		URLEnable:      cc.URLs.Enable,
		Concatenate:    cc.URLs.Concatenate,
		Punishment:     cc.URLs.PunishmentCommand,
		AllowedDomains: cc.URLs.AllowedDomains,
	}
}

// ChatConfig converts the delivery sections.
func (cc *ChatConf) ChatConfig() chat.Config {
	cfg := chat.DefaultConfig()
	cfg.ShowNobodyHeard = cc.Channel.ShowMessage
	cfg.IgnoreInGlobal = cc.Channel.IgnoreGlobalMessages
	if strings.TrimSpace(cc.Tell.Format) != "" {
		cfg.TellFormat = cc.Tell.Format
	}
	if cc.Mentions.Color != "" {
		cfg.MentionColor = cc.Mentions.Color
	}
	return cfg
}

// PolicyNodes converts the nodes section.
func (cc *ChatConf) PolicyNodes() policy.Nodes {
	return policy.Nodes{
		Baseline:    cc.Nodes.Baseline,
		BypassDelay: cc.Nodes.BypassDelay,
		Staff:       cc.Nodes.Staff,
	}
}

// EconomyOptions converts the economy section.
func (cc *ChatConf) EconomyOptions() economy.Options {
	return economy.Options{
		TimeoutSec:      cc.Economy.TimeoutSec,
		StartingBalance: cc.Economy.StartingBalance,
		TycoonTags:      cc.Economy.TycoonTags,
	}
}

// Addr returns the HTTP listen address.
func (cc *ChatConf) Addr() string {
	return fmt.Sprintf("%s:%d", cc.Server.Host, cc.Server.Port)
}

// TelnetAddr returns the telnet listen address, or "" when disabled.
func (cc *ChatConf) TelnetAddr() string {
	if cc.Server.TelnetPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", cc.Server.Host, cc.Server.TelnetPort)
}
