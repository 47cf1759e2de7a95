package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"gopkg.in/yaml.v3"
)

// PermGroup is a named set of permission nodes with display affixes.
type PermGroup struct {
	Permissions []string `yaml:"permissions"`
	Prefix      string   `yaml:"prefix"`
	Suffix      string   `yaml:"suffix"`
	Inherit     []string `yaml:"inherit"`
}

// PermUser holds per-player overrides.
type PermUser struct {
	Groups      []string `yaml:"groups"`
	Permissions []string `yaml:"permissions"`
	Prefix      string   `yaml:"prefix"`
	Suffix      string   `yaml:"suffix"`
}

// PermFile is the YAML layout of the permissions file. Every player is in
// the "default" group. Operators are elevated: they hold every node.
type PermFile struct {
	Operators []string             `yaml:"operators"`
	Groups    map[string]PermGroup `yaml:"groups"`
	Users     map[string]PermUser  `yaml:"users"`
}

// DefaultPermFile returns the permissions written on first start.
func DefaultPermFile() *PermFile {
	return &PermFile{
		Operators: []string{},
		Groups: map[string]PermGroup{
			"default": {
				Permissions: []string{"nightchat.channel.local", "nightchat.channel.global", "nightchat.tag.money"},
				Prefix:      "&7",
			},
			"staff": {
				Permissions: []string{"nightchat.channel.staff", "nightchat.bypass.delay", "nightchat.spy"},
				Prefix:      "&b[Staff] ",
				Inherit:     []string{"default"},
			},
			"admin": {
				Permissions: []string{"nightchat.*"},
				Prefix:      "&c[Admin] ",
				Inherit:     []string{"staff"},
			},
		},
		Users: map[string]PermUser{},
	}
}

// permTable is the lowercased, immutable form of a PermFile.
type permTable struct {
	ops    map[string]bool
	groups map[string]PermGroup
	users  map[string]PermUser
}

func newPermTable(f *PermFile) *permTable {
	t := &permTable{
		ops:    make(map[string]bool),
		groups: make(map[string]PermGroup),
		users:  make(map[string]PermUser),
	}
	for _, name := range f.Operators {
		t.ops[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for name, g := range f.Groups {
		t.groups[strings.ToLower(name)] = g
	}
	for name, u := range f.Users {
		t.users[strings.ToLower(name)] = u
	}
	return t
}

// groupsOf returns p's groups in priority order: explicit groups with
// their inherited groups depth first, then "default".
func (t *permTable) groupsOf(name string) []PermGroup {
	seen := make(map[string]bool)
	var out []PermGroup
	var visit func(g string)
	visit = func(g string) {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" || seen[g] {
			return
		}
		seen[g] = true
		grp, ok := t.groups[g]
		if !ok {
			return
		}
		out = append(out, grp)
		for _, parent := range grp.Inherit {
			visit(parent)
		}
	}
	for _, g := range t.users[name].Groups {
		visit(g)
	}
	visit("default")
	return out
}

// nodeMatches reports whether pattern grants node. "*" matches
// everything and "a.b.*" matches "a.b" and anything below it.
func nodeMatches(pattern, node string) bool {
	if pattern == "*" || pattern == node {
		return true
	}
	if base, ok := strings.CutSuffix(pattern, ".*"); ok {
		return node == base || strings.HasPrefix(node, base+".")
	}
	return false
}

// check looks node up in list. A leading "-" negates an entry.
func check(list []string, node string) (granted, found bool) {
	for _, entry := range list {
		entry = strings.ToLower(strings.TrimSpace(entry))
		neg := strings.HasPrefix(entry, "-")
		if nodeMatches(strings.TrimPrefix(entry, "-"), node) {
			return !neg, true
		}
	}
	return false, false
}

// Permissions is a file-backed permission provider.
type Permissions struct {
	path  string
	table atomic.Pointer[permTable]
}

// LoadPermissions reads the permissions file at path. A missing file is
// created with DefaultPermFile.
func LoadPermissions(path string) (*Permissions, error) {
	p := &Permissions{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPermissions returns a provider over an in-memory file.
func NewPermissions(f *PermFile) *Permissions {
	p := &Permissions{}
	p.table.Store(newPermTable(f))
	return p
}

// Reload re-reads the permissions file.
func (p *Permissions) Reload() error {
	f, err := readPermFile(p.path)
	if err != nil {
		return err
	}
	p.table.Store(newPermTable(f))
	log.Printf("perms: loaded %d group(s), %d user(s) from %s", len(f.Groups), len(f.Users), p.path)
	return nil
}

func readPermFile(path string) (*PermFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		f := DefaultPermFile()
		if err := writeYAML(path, f); err != nil {
			return nil, fmt.Errorf("perms: %w", err)
		}
		log.Printf("perms: wrote default permissions to %s", path)
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("perms: reading %s: %w", path, err)
	}
	f := &PermFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("perms: parsing YAML %s: %w", path, err)
	}
	return f, nil
}

// IsOperator reports whether name is listed as an operator.
func (p *Permissions) IsOperator(name string) bool {
	return p.table.Load().ops[strings.ToLower(name)]
}

// HasPermission reports whether pl holds node. User entries win over
// group entries; groups are consulted in priority order.
func (p *Permissions) HasPermission(pl chatdb.Player, node string) (bool, error) {
	node = strings.ToLower(strings.TrimSpace(node))
	t := p.table.Load()
	name := strings.ToLower(pl.Name)
	if t.ops[name] {
		return true, nil
	}
	if granted, found := check(t.users[name].Permissions, node); found {
		return granted, nil
	}
	for _, g := range t.groupsOf(name) {
		if granted, found := check(g.Permissions, node); found {
			return granted, nil
		}
	}
	return false, nil
}

// Prefix returns the user's own prefix or that of its first group with one.
func (p *Permissions) Prefix(pl chatdb.Player) (string, error) {
	return p.affix(pl, func(u PermUser) string { return u.Prefix }, func(g PermGroup) string { return g.Prefix }), nil
}

// Suffix is Prefix for suffixes.
func (p *Permissions) Suffix(pl chatdb.Player) (string, error) {
	return p.affix(pl, func(u PermUser) string { return u.Suffix }, func(g PermGroup) string { return g.Suffix }), nil
}

func (p *Permissions) affix(pl chatdb.Player, user func(PermUser) string, group func(PermGroup) string) string {
	t := p.table.Load()
	name := strings.ToLower(pl.Name)
	if v := user(t.users[name]); v != "" {
		return v
	}
	for _, g := range t.groupsOf(name) {
		if v := group(g); v != "" {
			return v
		}
	}
	return ""
}

// writeYAML marshals v to path, creating the parent directory.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
