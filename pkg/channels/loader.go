package channels

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"gopkg.in/yaml.v3"
)

// stringList accepts either a YAML scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{n.Value}
		return nil
	case yaml.SequenceNode:
		out := make(stringList, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string", c.Line)
			}
			if c.Tag == "!!null" {
				continue
			}
			out = append(out, c.Value)
		}
		*l = out
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", n.Line)
}

func (l stringList) first() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

type currencyFile struct {
	Enabled    bool    `yaml:"enabled"`
	Type       string  `yaml:"type"`
	MinBalance float64 `yaml:"min_balance"`
	Cost       float64 `yaml:"message_cost"`
	ShowCost   bool    `yaml:"show_message_cost"`
}

type tagFile struct {
	ID             string     `yaml:"id"`
	Hover          stringList `yaml:"hover"`
	Suggest        stringList `yaml:"suggest"`
	SuggestCommand stringList `yaml:"suggest_command"`
	Permission     string     `yaml:"permission"`
}

// channelFile is the on-disk shape of one channel definition.
type channelFile struct {
	ID              string       `yaml:"id"`
	Type            string       `yaml:"type"`
	Commands        stringList   `yaml:"commands"`
	Permission      string       `yaml:"permission"`
	Distance        float64      `yaml:"distance"`
	Delay           float64      `yaml:"delay_message"`
	Mentionable     bool         `yaml:"mentionable"`
	Highlight       bool         `yaml:"highlight"`
	PreventCapslock bool         `yaml:"prevent_capslock"`
	Format          stringList   `yaml:"format"`
	Spy             stringList   `yaml:"spy"`
	Currency        currencyFile `yaml:"currency"`
	Tags            []tagFile    `yaml:"tags"`
	CustomTags      []tagFile    `yaml:"custom_tags"`
}

// toChannel validates the file and converts it. Bad tags are dropped with a
// warning; a bad channel is an error.
func (f *channelFile) toChannel(name string) (*chatdb.Channel, error) {
	id := strings.ToLower(strings.TrimSpace(f.ID))
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	typ, err := chatdb.ParseChannelType(f.Type)
	if err != nil {
		return nil, err
	}
	ch := &chatdb.Channel{
		ID:              id,
		Type:            typ,
		Permission:      strings.TrimSpace(f.Permission),
		Radius:          f.Distance,
		MessageDelay:    f.Delay,
		Mentionable:     f.Mentionable,
		Highlight:       f.Highlight,
		PreventCapslock: f.PreventCapslock,
		Format:          f.Format.first(),
		SpyFormat:       f.Spy.first(),
		Currency: chatdb.Currency{
			Enabled:    f.Currency.Enabled,
			CurrencyID: strings.TrimSpace(f.Currency.Type),
			MinBalance: f.Currency.MinBalance,
			Cost:       f.Currency.Cost,
			ShowCost:   f.Currency.ShowCost,
		},
		Tags: make(map[string]*chatdb.TagDefinition),
	}
	for _, c := range f.Commands {
		if c = strings.TrimSpace(c); c != "" {
			ch.Aliases = append(ch.Aliases, c)
		}
	}
	if ch.Format == "" {
		ch.Format = "{prefix} {nick}&f: {message}"
	}
	for _, tags := range [][]tagFile{f.Tags, f.CustomTags} {
		for i, t := range tags {
			tid := strings.ToLower(strings.TrimSpace(t.ID))
			if tid == "" {
				log.Printf("channels: %s: skipping tag %d of channel %s: missing id", name, i+1, id)
				continue
			}
			ch.Tags[tid] = &chatdb.TagDefinition{
				ID:             tid,
				Hover:          []string(t.Hover),
				Suggest:        []string(t.Suggest),
				SuggestCommand: []string(t.SuggestCommand),
				Permission:     strings.TrimSpace(t.Permission),
			}
		}
	}
	return ch, nil
}

// ParseChannel decodes one channel definition.
func ParseChannel(name string, data []byte) (*chatdb.Channel, error) {
	var f channelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.toChannel(name)
}

// LoadFile reads and decodes one channel file.
func LoadFile(path string) (*chatdb.Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseChannel(filepath.Base(path), data)
}

// LoadDir loads every channel file in dir, in lexical order. A file that
// cannot be read or decoded is skipped with a warning. If the directory has
// no channel files the defaults are written first.
func LoadDir(dir string) ([]*chatdb.Channel, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("channels: create %s: %w", dir, err)
	}
	files, err := channelFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if err := WriteDefaults(dir); err != nil {
			return nil, err
		}
		if files, err = channelFiles(dir); err != nil {
			return nil, err
		}
	}

	var out []*chatdb.Channel
	for _, path := range files {
		ch, err := LoadFile(path)
		if err != nil {
			log.Printf("channels: skipping %s: %v", filepath.Base(path), err)
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// IsChannelFile reports whether name looks like a channel definition.
func IsChannelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}

func channelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("channels: read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsChannelFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Reload loads dir and publishes the result to r.
func Reload(r *Registry, dir string) (*Snapshot, error) {
	chs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	s := r.Replace(chs)
	log.Printf("channels: loaded %d channel(s) from %s", s.Len(), dir)
	return s, nil
}
