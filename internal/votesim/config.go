package votesim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Sessions   int           // Number of concurrent voter sessions
	Rounds     int           // Votes cast by each session
	Categories []string      // Categories to vote in; empty means all the service lists
	Timeout    time.Duration // HTTP request timeout
	Retries    int           // Attempts per request on 429/503
	Verbose    bool          // Log every vote
}

type category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type matchup struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	A        candidate `json:"a"`
	B        candidate `json:"b"`
}

type matchupResponse struct {
	SessionID string  `json:"session_id"`
	Matchup   matchup `json:"matchup"`
}

type voteRequest struct {
	MatchupID string `json:"matchup_id"`
	WinnerID  string `json:"winner_id"`
}

type voteResponse struct {
	SessionID string   `json:"session_id"`
	Next      *matchup `json:"next"`
}

// Entry represents a leaderboard entry
type Entry struct {
	Rank        int     `json:"rank"`
	CandidateID string  `json:"candidate_id"`
	Rating      float64 `json:"rating"`
	MatchCount  int64   `json:"match_count"`
}

type leaderboardResponse struct {
	Category string  `json:"category"`
	Entries  []Entry `json:"entries"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stats holds run statistics
type Stats struct {
	VotesSubmitted int64
	VotesRecorded  int64
	VotesRejected  int64
	VotesFailed    int64
	Retries        int64
	PerCategory    map[string]int64 // recorded votes by category
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
