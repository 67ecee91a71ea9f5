package loadgen

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

var countries = []string{"CA", "US", "DE", "BR", "JP", "NG", "IN", "FR"}

// Generator produces deterministic pairs and batches from a seed.
type Generator struct {
	rng  *rand.Rand
	base time.Time
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// uuidFrom draws a random v4 uuid from the generator's source.
func (g *Generator) uuidFrom() uuid.UUID {
	var b [16]byte
	for i := 0; i < 16; i += 8 {
		v := g.rng.Uint64()
		for j := 0; j < 8; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

// Pairs generates cfg.Players*cfg.SessionsPerPlayer sessions. Every
// cfg.OutOfOrderEvery-th pair has its end at or before its start.
func (g *Generator) Pairs(cfg Config) []Pair {
	pairs := make([]Pair, 0, cfg.Players*cfg.SessionsPerPlayer)
	for p := 0; p < cfg.Players; p++ {
		player := g.uuidFrom().String()
		for s := 0; s < cfg.SessionsPerPlayer; s++ {
			start := g.base.
				Add(time.Duration(g.rng.IntN(365*24)) * time.Hour).
				Add(time.Duration(g.rng.IntN(int(time.Hour / time.Microsecond)))*time.Microsecond)
			length := time.Duration(1+g.rng.IntN(180))*time.Minute +
				time.Duration(g.rng.IntN(int(time.Second/time.Microsecond)))*time.Microsecond
			pair := Pair{
				PlayerID:  player,
				SessionID: g.uuidFrom().String(),
				Country:   countries[g.rng.IntN(len(countries))],
				Start:     start,
				End:       start.Add(length),
			}
			if cfg.OutOfOrderEvery > 0 && (len(pairs)+1)%cfg.OutOfOrderEvery == 0 {
				pair.Start, pair.End = pair.End, pair.Start
			}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// Events returns the start and end events of p.
func (p Pair) Events() (Event, Event) {
	return Event{
			Event:     "start",
			PlayerID:  p.PlayerID,
			SessionID: p.SessionID,
			Country:   p.Country,
			TS:        p.Start.Format(tsLayout),
		}, Event{
			Event:     "end",
			PlayerID:  p.PlayerID,
			SessionID: p.SessionID,
			TS:        p.End.Format(tsLayout),
		}
}

// Batches shuffles every event of pairs and cuts them into batches of at
// most size. Halves of a pair land in any order and often in different
// batches.
func (g *Generator) Batches(pairs []Pair, size int) [][]Event {
	events := make([]Event, 0, 2*len(pairs))
	for _, p := range pairs {
		start, end := p.Events()
		events = append(events, start, end)
	}
	g.rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	batches := make([][]Event, 0, len(events)/size+1)
	for len(events) > 0 {
		n := min(size, len(events))
		batches = append(batches, events[:n:n])
		events = events[n:]
	}
	return batches
}
