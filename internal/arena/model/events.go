package model

import "encoding/json"

// Event is one message pushed to players over the websocket hub.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound event types.
const (
	EventQueueUpdate        = "lobby:queueUpdate"
	EventMatchFound         = "match:found"
	EventMatchStart         = "match:start"
	EventMatchTick          = "match:tick"
	EventMatchUpdate        = "match:update"
	EventMatchState         = "match:state"
	EventMatchEnd           = "match:end"
	EventPlayerDisconnected = "match:playerDisconnected"
	EventPlayerReconnected  = "match:playerReconnected"
	EventSubmissionResult   = "submission:result"
	EventError              = "error"
)

// NewEvent marshals a payload into an Event. Marshal failures are
// programming errors; the event degrades to an empty payload.
func NewEvent(eventType string, payload interface{}) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return Event{Type: eventType, Payload: raw}
}

// QueueUpdatePayload reports queue standing after a join.
type QueueUpdatePayload struct {
	Mode     GameMode `json:"mode"`
	Position int      `json:"position"`
	Size     int      `json:"size"`
}

// MatchFoundPayload announces a created match to its players.
type MatchFoundPayload struct {
	MatchID  string       `json:"matchId"`
	Mode     GameMode     `json:"mode"`
	Players  []int64      `json:"players"`
	Problems []ProblemRef `json:"problems"`
}

// MatchStartPayload carries the authoritative start instant.
type MatchStartPayload struct {
	MatchID    string `json:"matchId"`
	StartedAt  int64  `json:"startedAt"`
	ServerTime int64  `json:"serverTime"`
	Duration   int64  `json:"durationSec"`
}

// MatchTickPayload is the per-second timer sync.
type MatchTickPayload struct {
	MatchID      string `json:"matchId"`
	RemainingSec int64  `json:"remainingSec"`
}

// MatchUpdatePayload reflects one applied verdict.
type MatchUpdatePayload struct {
	MatchID   string        `json:"matchId"`
	UserID    int64         `json:"userId"`
	ProblemID int64         `json:"problemId"`
	Verdict   string        `json:"verdict"`
	Locked    bool          `json:"locked"`
	Players   []PlayerState `json:"players"`
}

// MatchStatePayload replays the full match to a (re)connecting player.
type MatchStatePayload struct {
	MatchID      string        `json:"matchId"`
	Mode         GameMode      `json:"mode"`
	Status       MatchStatus   `json:"status"`
	Problems     []ProblemRef  `json:"problems"`
	Players      []PlayerState `json:"players"`
	RemainingSec int64         `json:"remainingSec"`
}

// MatchEndPayload announces terminal state with final standings.
type MatchEndPayload struct {
	MatchID string        `json:"matchId"`
	Status  MatchStatus   `json:"status"`
	Players []PlayerState `json:"players"`
}

// PlayerPresencePayload marks a disconnect or reconnect.
type PlayerPresencePayload struct {
	MatchID  string `json:"matchId"`
	UserID   int64  `json:"userId"`
	GraceSec int64  `json:"graceSec,omitempty"`
}

// SubmissionResultPayload reports a judged practice submission.
type SubmissionResultPayload struct {
	SubmissionID string `json:"submissionId"`
	ProblemID    int64  `json:"problemId"`
	Verdict      string `json:"verdict"`
	Passed       int    `json:"passed"`
	Total        int    `json:"total"`
	TimeMS       int64  `json:"timeMs"`
	MemoryKB     int64  `json:"memoryKb"`
}

// ErrorPayload carries a coded error to the client.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
