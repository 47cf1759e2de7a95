package chatdb

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseChannelType(t *testing.T) {
	tests := []struct {
		in      string
		want    ChannelType
		wantErr bool
	}{
		{"LOCAL", TypeLocal, false},
		{"global", TypeGlobal, false},
		{" Staff ", TypeStaff, false},
		{"party", TypeLocal, true},
	}
	for _, tt := range tests {
		got, err := ParseChannelType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseChannelType(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseChannelType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChannelHelpers(t *testing.T) {
	ch := &Channel{ID: "global", Aliases: []string{"g", "!"}, Tags: map[string]*TagDefinition{"money": {ID: "money"}}}
	if ch.EffectiveRadius() != DefaultRadius {
		t.Errorf("EffectiveRadius = %v, want %v", ch.EffectiveRadius(), DefaultRadius)
	}
	if ch.Tag("MONEY") == nil {
		t.Error("Tag lookup should ignore case")
	}
	if ch.DisplayName() != "Global" {
		t.Errorf("DisplayName = %q", ch.DisplayName())
	}
}

func TestCurrencyApplies(t *testing.T) {
	if (Currency{Enabled: true}).Applies() {
		t.Error("enabled currency with no cost and no minimum should not apply")
	}
	if !(Currency{Enabled: true, MinBalance: 1}).Applies() {
		t.Error("minimum balance should make currency apply")
	}
	if (Currency{Cost: 5}).Applies() {
		t.Error("disabled currency should not apply")
	}
}

func TestPlayerStateEqualIgnoresNilAndCase(t *testing.T) {
	a := PlayerState{MutedChannels: map[string]bool{"Global": true}}
	b := NewPlayerState()
	b.MutedChannels["global"] = true
	b.SpyChannels["staff"] = false
	if !a.Equal(b) {
		t.Error("states with the same members should be equal")
	}

	id := uuid.New()
	b.IgnoredPlayers[id] = true
	if a.Equal(b) {
		t.Error("states with different ignore sets should differ")
	}
}

func TestPlayerIDFromNameIsStable(t *testing.T) {
	if PlayerIDFromName("Steve") != PlayerIDFromName("steve") {
		t.Error("name-derived ids should ignore case")
	}
	if PlayerIDFromName("Steve") == PlayerIDFromName("Alex") {
		t.Error("different names should give different ids")
	}
}

func TestFilterErrorUnwrap(t *testing.T) {
	err := error(&FilterError{Reason: "URL blocked: evil.com", Domain: "evil.com"})
	if !errors.Is(err, ErrURLBlocked) || !errors.Is(err, ErrFilterRejected) {
		t.Errorf("url filter error should match both sentinels: %v", err)
	}
	plain := error(&FilterError{Reason: "bad word"})
	if errors.Is(plain, ErrURLBlocked) {
		t.Error("plain filter error should not match ErrURLBlocked")
	}
}

func TestUserMessage(t *testing.T) {
	format := func(d time.Duration) string { return d.String() }
	rl := &RateLimitedError{Channel: "global", Remaining: 4 * time.Second}
	if got := UserMessage(rl, format); !strings.Contains(got, "4s") {
		t.Errorf("rate limit message = %q", got)
	}
	if !errors.Is(rl, ErrRateLimited) {
		t.Error("RateLimitedError should unwrap to ErrRateLimited")
	}
	if got := UserMessage(ErrPermissionDenied, format); !strings.Contains(got, "permission") {
		t.Errorf("permission message = %q", got)
	}
}
