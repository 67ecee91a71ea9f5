package repository

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sessiond/internal/domain/model"
)

// Badger key layout. Player ids are length-prefixed so a player's prefix
// never matches another player whose id merely starts with it.
//
//	i | len | player | session            staging row
//	c | len | player | ^end | ^session     completed row, newest first
//	x | len | player | session            completed row index (value: c key)
const (
	prefixIncomplete byte = 'i'
	prefixCompleted  byte = 'c'
	prefixIndex      byte = 'x'

	maxPlayerIDLen = 1<<16 - 1
)

func playerPrefix(prefix byte, playerID string) ([]byte, error) {
	if len(playerID) > maxPlayerIDLen {
		return nil, fmt.Errorf("player id of %d bytes exceeds %d", len(playerID), maxPlayerIDLen)
	}
	b := make([]byte, 0, 1+2+len(playerID)+8+16)
	b = append(b, prefix)
	b = binary.BigEndian.AppendUint16(b, uint16(len(playerID))) //nolint:gosec // bounded above
	b = append(b, playerID...)
	return b, nil
}

func incompleteKey(k model.SessionKey) ([]byte, error) {
	b, err := playerPrefix(prefixIncomplete, k.PlayerID)
	if err != nil {
		return nil, err
	}
	return append(b, k.SessionID[:]...), nil
}

func indexKey(k model.SessionKey) ([]byte, error) {
	b, err := playerPrefix(prefixIndex, k.PlayerID)
	if err != nil {
		return nil, err
	}
	return append(b, k.SessionID[:]...), nil
}

func completedKey(r model.CompletedRecord) ([]byte, error) {
	b, err := playerPrefix(prefixCompleted, r.PlayerID)
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint64(b, descMillis(r.EndTime))
	for _, c := range r.SessionID {
		b = append(b, ^c)
	}
	return b, nil
}

// descMillis maps t to a key component that sorts newest first. The sign bit
// flip keeps pre-epoch times ordered.
func descMillis(t time.Time) uint64 {
	return ^(uint64(t.UnixMilli()) ^ 1<<63) //nolint:gosec // bit reinterpretation
}

// sessionFromKey returns the trailing session id of an i or x key.
func sessionFromKey(key []byte) (uuid.UUID, error) {
	if len(key) < 16 {
		return uuid.Nil, ErrCorruptRow
	}
	return uuid.FromBytes(key[len(key)-16:])
}

// sessionFromCompletedKey undoes the inversion applied by completedKey.
func sessionFromCompletedKey(key []byte) (uuid.UUID, error) {
	if len(key) < 16 {
		return uuid.Nil, ErrCorruptRow
	}
	var sid uuid.UUID
	for i, c := range key[len(key)-16:] {
		sid[i] = ^c
	}
	return sid, nil
}
