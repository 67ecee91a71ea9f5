package loadgen

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Mismatch describes one difference between the expected and the fetched
// sessions of a player.
type Mismatch struct {
	PlayerID string
	Reason   string
}

func (m Mismatch) String() string { return m.PlayerID + ": " + m.Reason }

// Expected returns, per player, the sessions the service should return:
// ordered pairs only, newest end first, ties by session id descending,
// capped at limit.
func Expected(pairs []Pair, limit int) map[string][]Session {
	type row struct {
		endMs int64
		s     Session
	}
	byPlayer := map[string][]row{}
	for _, p := range pairs {
		if _, ok := byPlayer[p.PlayerID]; !ok {
			byPlayer[p.PlayerID] = nil
		}
		if !p.Ordered() {
			continue
		}
		byPlayer[p.PlayerID] = append(byPlayer[p.PlayerID], row{
			endMs: p.End.UnixMilli(),
			s: Session{
				PlayerID:  p.PlayerID,
				SessionID: p.SessionID,
				Country:   p.Country,
				StartTime: p.Start.UTC().Truncate(time.Millisecond).Format(outLayout),
				EndTime:   p.End.UTC().Truncate(time.Millisecond).Format(outLayout),
			},
		})
	}

	out := make(map[string][]Session, len(byPlayer))
	for player, rows := range byPlayer {
		slices.SortFunc(rows, func(a, b row) int {
			if c := cmp.Compare(b.endMs, a.endMs); c != 0 {
				return c
			}
			return cmp.Compare(b.s.SessionID, a.s.SessionID)
		})
		sessions := make([]Session, 0, min(limit, len(rows)))
		for i := 0; i < len(rows) && i < limit; i++ {
			sessions = append(sessions, rows[i].s)
		}
		out[player] = sessions
	}
	return out
}

// Verify compares fetched sessions with the expected ones for one player.
func Verify(playerID string, want, got []Session) []Mismatch {
	var out []Mismatch
	if len(want) != len(got) {
		out = append(out, Mismatch{PlayerID: playerID, Reason: fmt.Sprintf("want %d sessions, got %d", len(want), len(got))})
	}
	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			out = append(out, Mismatch{
				PlayerID: playerID,
				Reason:   fmt.Sprintf("position %d: want %+v, got %+v", i, want[i], got[i]),
			})
		}
	}
	return out
}
