package boltstore

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

// stateRecord is the stored form of a player's chat state. Sets are kept
// as sorted slices so equal states encode to equal bytes.
type stateRecord struct {
	Name           string
	MutedChannels  []string
	SpyChannels    []string
	MutedPlayers   []uuid.UUID
	IgnoredPlayers []uuid.UUID
	Saved          time.Time
}

func recordFromState(p chatdb.Player, st chatdb.PlayerState, now time.Time) stateRecord {
	st.Normalize()
	return stateRecord{
		Name:           p.Name,
		MutedChannels:  chatdb.SortedChannels(st.MutedChannels),
		SpyChannels:    chatdb.SortedChannels(st.SpyChannels),
		MutedPlayers:   chatdb.SortedPlayers(st.MutedPlayers),
		IgnoredPlayers: chatdb.SortedPlayers(st.IgnoredPlayers),
		Saved:          now,
	}
}

func (r stateRecord) state() chatdb.PlayerState {
	st := chatdb.NewPlayerState()
	for _, c := range r.MutedChannels {
		st.MutedChannels[c] = true
	}
	for _, c := range r.SpyChannels {
		st.SpyChannels[c] = true
	}
	for _, id := range r.MutedPlayers {
		st.MutedPlayers[id] = true
	}
	for _, id := range r.IgnoredPlayers {
		st.IgnoredPlayers[id] = true
	}
	st.Normalize()
	return st
}

// encodeRecord serializes a stateRecord to bytes using gob.
func encodeRecord(rec *stateRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecord deserializes bytes back into a stateRecord.
func decodeRecord(data []byte) (*stateRecord, error) {
	var rec stateRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
