package economy

import (
	"path/filepath"
	"testing"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

func openTest(t *testing.T, opts Options) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "economy.db"), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func player(name string) chatdb.Player {
	return chatdb.Player{ID: uuid.New(), Name: name}
}

func TestStartingBalance(t *testing.T) {
	l := openTest(t, Options{StartingBalance: 25})
	if !l.Ready() {
		t.Fatal("ledger not ready after Open")
	}
	bal, err := l.Balance(player("Steve"), "coins")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 25 {
		t.Errorf("balance = %v, want 25", bal)
	}
}

func TestDebitAndCredit(t *testing.T) {
	l := openTest(t, Options{})
	steve := player("Steve")

	ok, err := l.Debit(steve, "coins", 5, "test")
	if err != nil || ok {
		t.Fatalf("debit from empty wallet = %v, %v; want false, nil", ok, err)
	}
	if err := l.Credit(steve, "Coins", 10, "grant"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	ok, err = l.Debit(steve, "coins", 4, "chat")
	if err != nil || !ok {
		t.Fatalf("Debit = %v, %v; want true, nil", ok, err)
	}
	bal, _ := l.Balance(steve, "COINS")
	if bal != 6 {
		t.Errorf("balance = %v, want 6", bal)
	}
	ok, _ = l.Debit(steve, "coins", 6, "chat")
	if !ok {
		t.Error("debit of the exact balance should succeed")
	}
	if bal, _ := l.Balance(steve, "coins"); bal != 0 {
		t.Errorf("balance = %v, want 0", bal)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	l := openTest(t, Options{})
	if err := l.Credit(player("Steve"), "coins", 0, "x"); err == nil {
		t.Error("expected error for zero credit")
	}
	if _, err := l.Debit(player("Steve"), "coins", -1, "x"); err == nil {
		t.Error("expected error for negative debit")
	}
}

func TestTopHolder(t *testing.T) {
	l := openTest(t, Options{TycoonTags: map[string]string{"Coins": "&2[$] %s"}})

	tag, err := l.TopHolderTag("coins")
	if err != nil || tag != "" {
		t.Fatalf("empty ledger tag = %q, %v", tag, err)
	}

	steve, alex := player("Steve"), player("Alex")
	l.Credit(steve, "coins", 10, "grant")
	l.Credit(alex, "coins", 30, "grant")
	l.Credit(steve, "gems", 100, "grant")

	name, err := l.TopHolderName("coins")
	if err != nil || name != "Alex" {
		t.Fatalf("TopHolderName = %q, %v; want Alex", name, err)
	}
	tag, _ = l.TopHolderTag("coins")
	if tag != "&2[$] Alex" {
		t.Errorf("tag = %q", tag)
	}
	tag, _ = l.TopHolderTag("gems")
	if tag != "&6[Tycoon] Steve" {
		t.Errorf("default tag = %q", tag)
	}
}

func TestTagWithoutVerb(t *testing.T) {
	l := openTest(t, Options{TycoonTags: map[string]string{"coins": "&e*"}})
	l.Credit(player("Steve"), "coins", 1, "grant")
	if tag, _ := l.TopHolderTag("coins"); tag != "&e* Steve" {
		t.Errorf("tag = %q", tag)
	}
}

func TestHistoryAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.db")
	l, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	steve := player("Steve")
	l.Credit(steve, "coins", 10, "grant")
	l.Debit(steve, "coins", 3, "nightchat:global")
	if err := l.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	hist, err := l.History(steve, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].Delta != -3 || hist[0].Reason != "nightchat:global" {
		t.Errorf("history = %+v", hist)
	}
	l.Close()
	if l.Ready() {
		t.Error("closed ledger reports ready")
	}

	l2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if bal, _ := l2.Balance(steve, "coins"); bal != 7 {
		t.Errorf("balance after reopen = %v, want 7", bal)
	}
}
