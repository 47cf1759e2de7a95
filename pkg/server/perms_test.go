package server

import (
	"os"
	"path/filepath"
	"testing"
)

func testPerms() *Permissions {
	f := DefaultPermFile()
	f.Operators = []string{"Notch"}
	f.Groups["vip"] = PermGroup{
		Permissions: []string{"nightchat.tag.prime", "-nightchat.channel.global"},
		Prefix:      "&6[VIP] ",
		Suffix:      " &6*",
	}
	f.Users["Steve"] = PermUser{Groups: []string{"admin"}, Suffix: " &c!"}
	f.Users["Alex"] = PermUser{Groups: []string{"vip"}, Permissions: []string{"nightchat.custom.*"}}
	return NewPermissions(f)
}

func TestPermissionNodes(t *testing.T) {
	p := testPerms()
	tests := []struct {
		name string
		node string
		want bool
	}{
		{"Bob", "nightchat.channel.local", true},
		{"Bob", "nightchat.channel.staff", false},
		{"Steve", "nightchat.channel.staff", true},  // admin inherits staff
		{"Steve", "nightchat.anything.else", true},  // nightchat.*
		{"Alex", "nightchat.channel.global", false}, // negated by vip
		{"Alex", "nightchat.channel.local", true},   // from default
		{"Alex", "nightchat.custom", true},
		{"Alex", "nightchat.custom.deep.node", true},
		{"Alex", "nightchat.customer", false},
		{"Notch", "whatever.node", true},
		{"notch", "NIGHTCHAT.CHANNEL.STAFF", true},
	}
	for _, tt := range tests {
		got, err := p.HasPermission(player(tt.name), tt.node)
		if err != nil {
			t.Fatalf("HasPermission: %v", err)
		}
		if got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.name, tt.node, got, tt.want)
		}
	}
}

func TestPermissionAffixes(t *testing.T) {
	p := testPerms()
	tests := []struct {
		name, prefix, suffix string
	}{
		{"Bob", "&7", ""},
		{"Steve", "&c[Admin] ", " &c!"},
		{"Alex", "&6[VIP] ", " &6*"},
	}
	for _, tt := range tests {
		pre, _ := p.Prefix(player(tt.name))
		suf, _ := p.Suffix(player(tt.name))
		if pre != tt.prefix || suf != tt.suffix {
			t.Errorf("%s: prefix %q suffix %q, want %q %q", tt.name, pre, suf, tt.prefix, tt.suffix)
		}
	}
	if !p.IsOperator("NOTCH") || p.IsOperator("Steve") {
		t.Error("operator lookup wrong")
	}
}

func TestInheritCycle(t *testing.T) {
	f := &PermFile{Groups: map[string]PermGroup{
		"a": {Inherit: []string{"b"}},
		"b": {Inherit: []string{"a"}, Permissions: []string{"x.y"}},
	}, Users: map[string]PermUser{"Steve": {Groups: []string{"a"}}}}
	ok, _ := NewPermissions(f).HasPermission(player("Steve"), "x.y")
	if !ok {
		t.Error("node from a cyclic parent should still be found")
	}
}

func TestLoadPermissionsWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "permissions.yml")
	p, err := LoadPermissions(path)
	if err != nil {
		t.Fatalf("LoadPermissions: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if ok, _ := p.HasPermission(player("Bob"), "nightchat.channel.global"); !ok {
		t.Error("default group should grant the global channel")
	}

	custom := "operators: [Bob]\ngroups: {}\n"
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !p.IsOperator("bob") {
		t.Error("reload did not pick up operators")
	}

	if err := os.WriteFile(path, []byte("groups: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err == nil {
		t.Error("expected parse error")
	}
	if !p.IsOperator("bob") {
		t.Error("failed reload should keep the previous table")
	}
}
