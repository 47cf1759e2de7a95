// Package economy is a small currency ledger on SQLite. It backs channel
// message costs, balance placeholders and the top-holder tag.
package economy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	player   TEXT NOT NULL,
	name     TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount   REAL NOT NULL,
	PRIMARY KEY (player, currency)
);
CREATE INDEX IF NOT EXISTS balances_rank ON balances (currency, amount DESC);
CREATE TABLE IF NOT EXISTS ledger (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	player   TEXT NOT NULL,
	currency TEXT NOT NULL,
	delta    REAL NOT NULL,
	reason   TEXT NOT NULL,
	at       INTEGER NOT NULL
);`

// DefaultTycoonTag is used for currencies without a configured tag.
const DefaultTycoonTag = "&6[Tycoon] %s"

// Options configures a Ledger.
type Options struct {
	TimeoutSec      int
	StartingBalance float64
	TycoonTags      map[string]string // currency -> format with one %s for the name
}

// Entry is one row of a player's ledger history.
type Entry struct {
	Currency string
	Delta    float64
	Reason   string
	At       time.Time
}

// Ledger manages the SQLite balance database.
type Ledger struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
	ready   atomic.Bool

	settings atomic.Pointer[Options]
	now      func() time.Time
}

// Open opens a SQLite database, sets WAL mode and busy timeout, and creates
// the tables.
func Open(path string, opts Options) (*Ledger, error) {
	if opts.TimeoutSec <= 0 {
		opts.TimeoutSec = 5
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("economy: opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("economy: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", opts.TimeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("economy: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("economy: creating tables: %w", err)
	}
	l := &Ledger{
		db:      db,
		path:    path,
		timeout: time.Duration(opts.TimeoutSec) * time.Second,
		now:     time.Now,
	}
	l.SetOptions(opts)
	l.ready.Store(true)
	return l, nil
}

// SetOptions replaces the reloadable settings.
func (l *Ledger) SetOptions(opts Options) {
	tags := make(map[string]string, len(opts.TycoonTags))
	for k, v := range opts.TycoonTags {
		tags[strings.ToLower(k)] = v
	}
	opts.TycoonTags = tags
	l.settings.Store(&opts)
}

// Close closes the database. The ledger reports not ready afterwards.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready.Store(false)
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (l *Ledger) Path() string { return l.path }

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (l *Ledger) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Ready reports whether the ledger is open.
func (l *Ledger) Ready() bool { return l.ready.Load() }

func (l *Ledger) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

func normCurrency(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// Balance returns p's balance in currency. Players without a row hold the
// starting balance.
func (l *Ledger) Balance(p chatdb.Player, currency string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := l.ctx()
	defer cancel()
	bal, err := l.balance(ctx, l.db, p, normCurrency(currency))
	if err != nil {
		return 0, fmt.Errorf("economy: balance: %w", err)
	}
	return bal, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) balance(ctx context.Context, q querier, p chatdb.Player, currency string) (float64, error) {
	var amount float64
	err := q.QueryRowContext(ctx,
		"SELECT amount FROM balances WHERE player = ? AND currency = ?",
		p.ID.String(), currency).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return l.settings.Load().StartingBalance, nil
	}
	return amount, err
}

// Debit withdraws amount from p. It returns false without touching the
// balance when p cannot cover it.
func (l *Ledger) Debit(p chatdb.Player, currency string, amount float64, reason string) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("economy: debit: negative amount %v", amount)
	}
	ok := false
	err := l.apply(p, normCurrency(currency), reason, func(bal float64) (float64, bool) {
		if bal+1e-9 < amount {
			return bal, false
		}
		ok = true
		return -amount, true
	})
	if err != nil {
		return false, fmt.Errorf("economy: debit: %w", err)
	}
	return ok, nil
}

// Credit adds amount to p.
func (l *Ledger) Credit(p chatdb.Player, currency string, amount float64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("economy: credit: amount must be positive, got %v", amount)
	}
	err := l.apply(p, normCurrency(currency), reason, func(float64) (float64, bool) {
		return amount, true
	})
	if err != nil {
		return fmt.Errorf("economy: credit: %w", err)
	}
	return nil
}

// apply runs a balance change in one transaction. decide receives the
// current balance and returns the delta and whether to write it.
func (l *Ledger) apply(p chatdb.Player, currency, reason string, decide func(bal float64) (float64, bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := l.ctx()
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bal, err := l.balance(ctx, tx, p, currency)
	if err != nil {
		return err
	}
	delta, write := decide(bal)
	if !write {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (player, name, currency, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT (player, currency) DO UPDATE SET amount = excluded.amount, name = excluded.name`,
		p.ID.String(), p.Name, currency, bal+delta); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO ledger (player, currency, delta, reason, at) VALUES (?, ?, ?, ?, ?)",
		p.ID.String(), currency, delta, reason, l.now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// TopHolderName returns the name of the richest player in currency, or ""
// when nobody holds any.
func (l *Ledger) TopHolderName(currency string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := l.ctx()
	defer cancel()

	var name string
	err := l.db.QueryRowContext(ctx,
		"SELECT name FROM balances WHERE currency = ? AND amount > 0 ORDER BY amount DESC, name ASC LIMIT 1",
		normCurrency(currency)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("economy: top holder: %w", err)
	}
	return name, nil
}

// TopHolderTag returns the configured tycoon tag for currency filled with
// the top holder's name, or "" when there is no holder.
func (l *Ledger) TopHolderTag(currency string) (string, error) {
	name, err := l.TopHolderName(currency)
	if err != nil || name == "" {
		return "", err
	}
	format, ok := l.settings.Load().TycoonTags[normCurrency(currency)]
	if !ok || strings.TrimSpace(format) == "" {
		format = DefaultTycoonTag
	}
	if !strings.Contains(format, "%s") {
		return format + " " + name, nil
	}
	return fmt.Sprintf(format, name), nil
}

// History returns p's most recent ledger entries, newest first.
func (l *Ledger) History(p chatdb.Player, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := l.ctx()
	defer cancel()

	rows, err := l.db.QueryContext(ctx,
		"SELECT currency, delta, reason, at FROM ledger WHERE player = ? ORDER BY id DESC LIMIT ?",
		p.ID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("economy: history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.Currency, &e.Delta, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("economy: history: %w", err)
		}
		e.At = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
