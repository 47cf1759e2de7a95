// Package ratelimit tracks per-player, per-channel message cooldowns.
//
// Checking and committing are separate so a message rejected later in the
// pipeline does not use up the sender's cooldown.
package ratelimit

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the result of a cooldown check.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

type playerLedger struct {
	mu   sync.Mutex
	next map[string]time.Time
}

// Limiter holds the next-eligible times. The zero value is ready to use.
type Limiter struct {
	players sync.Map // uuid.UUID -> *playerLedger
}

func (l *Limiter) ledger(id uuid.UUID) *playerLedger {
	if v, ok := l.players.Load(id); ok {
		return v.(*playerLedger)
	}
	v, _ := l.players.LoadOrStore(id, &playerLedger{next: make(map[string]time.Time)})
	return v.(*playerLedger)
}

// Delay converts a channel delay in seconds.
func Delay(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Check reports whether player may post on channel at now. It never
// modifies the ledger.
func (l *Limiter) Check(player uuid.UUID, channel string, delay time.Duration, bypass bool, now time.Time) Decision {
	if delay <= 0 || bypass {
		return Decision{Allowed: true}
	}
	v, ok := l.players.Load(player)
	if !ok {
		return Decision{Allowed: true}
	}
	pl := v.(*playerLedger)
	pl.mu.Lock()
	next, ok := pl.next[strings.ToLower(channel)]
	pl.mu.Unlock()
	if !ok || !now.Before(next) {
		return Decision{Allowed: true}
	}
	return Decision{Remaining: next.Sub(now)}
}

// Commit starts the cooldown for an accepted message.
func (l *Limiter) Commit(player uuid.UUID, channel string, delay time.Duration, bypass bool, now time.Time) {
	if delay <= 0 || bypass {
		return
	}
	pl := l.ledger(player)
	pl.mu.Lock()
	pl.next[strings.ToLower(channel)] = now.Add(delay)
	pl.mu.Unlock()
}

// FormatRemaining renders a wait for players: "4.2s" from one second up,
// whole milliseconds rounded up below that, never less than "50ms".
func FormatRemaining(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	ms := int64(math.Ceil(float64(d) / float64(time.Millisecond)))
	if ms < 50 {
		ms = 50
	}
	return fmt.Sprintf("%dms", ms)
}
