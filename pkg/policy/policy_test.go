package policy

import (
	"errors"
	"testing"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

type fakePerms struct {
	nodes map[string]bool
	err   error
}

func (f *fakePerms) HasPermission(p chatdb.Player, node string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.nodes[node], nil
}
func (f *fakePerms) Prefix(p chatdb.Player) (string, error) { return "&c[A]", f.err }
func (f *fakePerms) Suffix(p chatdb.Player) (string, error) { return "", f.err }

type fakeEconomy struct {
	ready    bool
	balance  float64
	balErr   error
	debitOK  bool
	debitErr error
	debits   []float64
}

func (f *fakeEconomy) Ready() bool { return f.ready }
func (f *fakeEconomy) Balance(p chatdb.Player, cur string) (float64, error) {
	return f.balance, f.balErr
}
func (f *fakeEconomy) Debit(p chatdb.Player, cur string, amount float64, reason string) (bool, error) {
	if f.debitErr != nil {
		return false, f.debitErr
	}
	if f.debitOK {
		f.debits = append(f.debits, amount)
		f.balance -= amount
	}
	return f.debitOK, nil
}
func (f *fakeEconomy) TopHolderTag(cur string) (string, error)  { return "&2[$] Rich", nil }
func (f *fakeEconomy) TopHolderName(cur string) (string, error) { return "Rich", nil }

var (
	player = chatdb.Player{ID: uuid.New(), Name: "Steve"}
	op     = chatdb.Player{ID: uuid.New(), Name: "Admin", Elevated: true}
)

func TestCanUse(t *testing.T) {
	local := &chatdb.Channel{ID: "local", Type: chatdb.TypeLocal, Permission: "nightchat.channel.local"}
	staff := &chatdb.Channel{ID: "staff", Type: chatdb.TypeStaff, Permission: "nightchat.channel.staff"}
	openStaff := &chatdb.Channel{ID: "mods", Type: chatdb.TypeStaff}

	tests := []struct {
		name  string
		nodes map[string]bool
		p     chatdb.Player
		ch    *chatdb.Channel
		want  bool
	}{
		{"local via baseline", nil, player, local, true},
		{"staff without node", nil, player, staff, false},
		{"staff with node", map[string]bool{"nightchat.channel.staff": true}, player, staff, true},
		{"open staff channel needs staff visibility", nil, player, openStaff, false},
		{"open staff channel for operator", nil, op, openStaff, true},
	}
	for _, tt := range tests {
		pol := New(&fakePerms{nodes: tt.nodes}, nil, DefaultNodes())
		if got := pol.CanUse(tt.p, tt.ch); got != tt.want {
			t.Errorf("%s: CanUse = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBaselineNode(t *testing.T) {
	nodes := DefaultNodes()
	nodes.Baseline = "nightchat.chat"
	local := &chatdb.Channel{ID: "local", Type: chatdb.TypeLocal, Permission: "nightchat.channel.local"}

	pol := New(&fakePerms{}, nil, nodes)
	if pol.CanUse(player, local) {
		t.Error("player without baseline node should not use local")
	}
	pol = New(&fakePerms{nodes: map[string]bool{"nightchat.chat": true}}, nil, nodes)
	if !pol.CanUse(player, local) {
		t.Error("player with baseline node should use local")
	}
}

func TestPermissionFallback(t *testing.T) {
	pol := New(nil, nil, DefaultNodes())
	if pol.HasPermission(player, "x.y") || !pol.HasPermission(op, "x.y") {
		t.Error("no provider: answer should follow the elevated flag")
	}
	if !pol.HasPermission(player, "") {
		t.Error("empty node should always be held")
	}

	faulty := New(&fakePerms{err: errors.New("backend down")}, nil, DefaultNodes())
	if faulty.HasPermission(player, "x.y") || !faulty.HasPermission(op, "x.y") {
		t.Error("provider error: answer should follow the elevated flag")
	}
	if faulty.Prefix(player) != "" {
		t.Error("prefix should degrade to empty on provider error")
	}
}

func TestCanBypassDelay(t *testing.T) {
	tests := []struct {
		nodes map[string]bool
		want  bool
	}{
		{nil, false},
		{map[string]bool{"nightchat.bypass.delay": true}, true},
		{map[string]bool{"nightchat.bypass.delay.local": true}, true},
		{map[string]bool{"nightchat.bypass.delay.global": true}, false},
	}
	for _, tt := range tests {
		pol := New(&fakePerms{nodes: tt.nodes}, nil, DefaultNodes())
		if got := pol.CanBypassDelay(player, "Local"); got != tt.want {
			t.Errorf("nodes %v: CanBypassDelay = %v, want %v", tt.nodes, got, tt.want)
		}
	}
}

func TestCheckCost(t *testing.T) {
	paid := &chatdb.Channel{ID: "trade", Currency: chatdb.Currency{Enabled: true, CurrencyID: "money", MinBalance: 10, Cost: 2}}

	tests := []struct {
		name      string
		econ      *fakeEconomy
		wantErr   error
		wantPaid  float64
		wantDebit int
	}{
		{"not ready", &fakeEconomy{balance: 0}, nil, 0, 0},
		{"below minimum", &fakeEconomy{ready: true, balance: 5, debitOK: true}, chatdb.ErrInsufficientBalance, 0, 0},
		{"debit refused", &fakeEconomy{ready: true, balance: 50}, chatdb.ErrDebitFailed, 0, 0},
		{"charged", &fakeEconomy{ready: true, balance: 50, debitOK: true}, nil, 2, 1},
		{"balance fault degrades", &fakeEconomy{ready: true, balErr: errors.New("db gone")}, nil, 0, 0},
		{"debit fault degrades", &fakeEconomy{ready: true, balance: 50, debitErr: errors.New("db gone")}, nil, 0, 0},
	}
	for _, tt := range tests {
		pol := New(nil, tt.econ, DefaultNodes())
		got, err := pol.CheckCost(player, paid)
		if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
		}
		if got != tt.wantPaid {
			t.Errorf("%s: charged = %v, want %v", tt.name, got, tt.wantPaid)
		}
		if len(tt.econ.debits) != tt.wantDebit {
			t.Errorf("%s: debits = %v", tt.name, tt.econ.debits)
		}
	}
}

func TestCheckCostSkipsFreeChannels(t *testing.T) {
	econ := &fakeEconomy{ready: true, balance: 0, debitOK: true}
	pol := New(nil, econ, DefaultNodes())
	free := &chatdb.Channel{ID: "global", Currency: chatdb.Currency{Enabled: true, CurrencyID: "money"}}
	if _, err := pol.CheckCost(player, free); err != nil {
		t.Errorf("free channel: %v", err)
	}
	if _, err := New(nil, nil, DefaultNodes()).CheckCost(player, free); err != nil {
		t.Errorf("no economy: %v", err)
	}
}

func TestResolverMethods(t *testing.T) {
	pol := New(&fakePerms{}, &fakeEconomy{ready: true, balance: 12}, DefaultNodes())
	if bal, ok := pol.Balance(player, "money"); !ok || bal != 12 {
		t.Errorf("Balance = %v, %v", bal, ok)
	}
	if pol.TopHolderTag("money") != "&2[$] Rich" || pol.TopHolderName("money") != "Rich" {
		t.Error("top holder lookups should pass through")
	}
	if pol.Prefix(player) != "&c[A]" {
		t.Errorf("Prefix = %q", pol.Prefix(player))
	}

	off := New(nil, &fakeEconomy{}, DefaultNodes())
	if _, ok := off.Balance(player, "money"); ok {
		t.Error("balance should be unavailable while the economy is not ready")
	}
}
