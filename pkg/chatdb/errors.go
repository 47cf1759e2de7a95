package chatdb

import (
	"errors"
	"fmt"
	"time"
)

// Expected, user-facing outcomes of sending a message. Each rejects only
// the message being processed.
var (
	ErrChannelNotFound     = errors.New("channel not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrRateLimited         = errors.New("rate limited")
	ErrFilterRejected      = errors.New("message rejected by filter")
	ErrURLBlocked          = errors.New("url blocked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDebitFailed         = errors.New("debit failed")
	ErrEmptyMessage        = errors.New("empty message")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrIgnored             = errors.New("recipient is ignoring sender")
	ErrIgnoring            = errors.New("sender is ignoring recipient")
)

// RateLimitedError carries the time left before the sender may post again.
type RateLimitedError struct {
	Channel   string
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s for %s", e.Channel, e.Remaining)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// FilterError is a rejection from the message filter. Domain is set when a
// blocked URL caused it.
type FilterError struct {
	Reason string
	Domain string
}

func (e *FilterError) Error() string {
	return "filter: " + e.Reason
}

func (e *FilterError) Unwrap() []error {
	if e.Domain != "" {
		return []error{ErrFilterRejected, ErrURLBlocked}
	}
	return []error{ErrFilterRejected}
}

// UserMessage maps an error to the text shown to the player who caused it.
// remaining formats a rate-limit wait.
func UserMessage(err error, remaining func(time.Duration) string) string {
	var rl *RateLimitedError
	var fe *FilterError
	switch {
	case errors.As(err, &rl):
		return fmt.Sprintf("&cPlease wait %s before sending another message.", remaining(rl.Remaining))
	case errors.As(err, &fe):
		if fe.Domain != "" {
			return "&cLinks are not allowed: " + fe.Domain
		}
		return "&cYour message was blocked: " + fe.Reason
	case errors.Is(err, ErrChannelNotFound):
		return "&cNo such channel."
	case errors.Is(err, ErrPermissionDenied):
		return "&cYou don't have permission to use this channel."
	case errors.Is(err, ErrInsufficientBalance):
		return "&cInsufficient balance to send messages to this channel."
	case errors.Is(err, ErrDebitFailed):
		return "&cCould not withdraw funds for the message."
	case errors.Is(err, ErrEmptyMessage):
		return "&cWhat do you want to say?"
	case errors.Is(err, ErrPlayerNotFound):
		return "&cPlayer not found."
	case errors.Is(err, ErrIgnored):
		return "&cThat player is not accepting your messages."
	case errors.Is(err, ErrIgnoring):
		return "&cYou are ignoring that player."
	}
	return "&cSomething went wrong."
}
