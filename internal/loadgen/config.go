package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL           string        // Base URL of the service
	Players           int           // Distinct player ids
	SessionsPerPlayer int           // Start/end pairs per player
	OutOfOrderEvery   int           // Every Nth pair gets end <= start; 0 disables
	BatchSize         int           // Events per POST, at most the service limit
	InlineItems       bool          // Send items as objects instead of JSON strings
	FetchLimit        int           // Sessions the service returns per player
	Workers           int           // Concurrent submitters
	Timeout           time.Duration // HTTP request timeout
	SettleTimeout     time.Duration // How long to wait for pending writes
	Seed              uint64        // Generator seed; equal seeds give equal runs
	Verbose           bool          // Enable verbose logging
}

// Event is one wire event.
type Event struct {
	Event     string `json:"event"`
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
	Country   string `json:"country,omitempty"`
	TS        string `json:"ts"`
}

// Pair is a generated session and the two events that describe it.
type Pair struct {
	PlayerID  string
	SessionID string
	Country   string
	Start     time.Time
	End       time.Time
}

// Ordered reports whether the service should promote the pair.
func (p Pair) Ordered() bool { return p.Start.Before(p.End) }

// Session mirrors one entry returned by GET /sessions/{player_id}.
type Session struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
	Country   string `json:"country"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Summary mirrors the body of an applied batch.
type Summary struct {
	Received   int `json:"received"`
	Staged     int `json:"staged"`
	Promoted   int `json:"promoted"`
	OutOfOrder int `json:"out_of_order"`
}

// Stats holds run statistics.
type Stats struct {
	PairsGenerated   int
	BatchesSubmitted int
	BatchesAccepted  int
	BatchesOrdering  int
	BatchesFailed    int
	Promoted         int
	OutOfOrder       int
	PlayersVerified  int
	Mismatches       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
