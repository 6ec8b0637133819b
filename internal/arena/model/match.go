package model

import (
	"encoding/json"
	"strconv"
	"time"

	"codearena/pkg/errors"
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "WAITING"
	StatusActive    MatchStatus = "ACTIVE"
	StatusFinished  MatchStatus = "FINISHED"
	StatusCancelled MatchStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s MatchStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// SnapshotTTL bounds how long a match snapshot may live in the cache.
const SnapshotTTL = 2 * time.Hour

// ProblemRef is the slice of problem metadata a live match needs.
type ProblemRef struct {
	ID         int64  `json:"id"`
	Difficulty string `json:"difficulty"`
}

// PlayerState is one player's live standing inside a match.
type PlayerState struct {
	UserID         int64   `json:"userId"`
	Score          int     `json:"score"`
	SolvedProblems []int64 `json:"solvedProblems"`

	// BestLength is the shortest accepted source length (code golf).
	// Zero means no accepted solution yet.
	BestLength int `json:"bestLength"`

	// Rank is assigned at finalization, 1-based.
	Rank int `json:"rank"`
}

// Solved reports whether the player already solved the given problem.
func (p *PlayerState) Solved(problemID int64) bool {
	for _, id := range p.SolvedProblems {
		if id == problemID {
			return true
		}
	}
	return false
}

// MatchSnapshot is the authoritative live state of a match, stored as a
// redis hash. Ack, problem-lock and disconnect markers live in the same
// hash under dynamic fields so single-field claims stay atomic.
type MatchSnapshot struct {
	MatchID   string
	Mode      GameMode
	Status    MatchStatus
	Problems  []ProblemRef
	Players   []PlayerState
	Duration  time.Duration
	CreatedAt time.Time

	// StartedAt is zero until the match goes ACTIVE.
	StartedAt time.Time
}

// Hash field names of the static snapshot part.
const (
	fieldMatchID   = "match_id"
	fieldMode      = "mode"
	fieldStatus    = "status"
	fieldProblems  = "problems"
	fieldPlayers   = "players"
	fieldDuration  = "duration_sec"
	fieldCreatedAt = "created_at"
	fieldStartedAt = "started_at"
)

// AckField is the hash field marking a player's ready acknowledgement.
func AckField(userID int64) string {
	return "ack:" + strconv.FormatInt(userID, 10)
}

// LockField is the hash field recording first-solver lockout of a problem.
func LockField(problemID int64) string {
	return "lock:" + strconv.FormatInt(problemID, 10)
}

// DisconnectField is the hash field marking a disconnected player.
func DisconnectField(userID int64) string {
	return "dc:" + strconv.FormatInt(userID, 10)
}

// Player returns the state of the given player, or nil.
func (m *MatchSnapshot) Player(userID int64) *PlayerState {
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			return &m.Players[i]
		}
	}
	return nil
}

// HasProblem reports whether the problem belongs to this match.
func (m *MatchSnapshot) HasProblem(problemID int64) bool {
	for _, p := range m.Problems {
		if p.ID == problemID {
			return true
		}
	}
	return false
}

// Problem returns the match's reference for the given problem, or nil.
func (m *MatchSnapshot) Problem(problemID int64) *ProblemRef {
	for i := range m.Problems {
		if m.Problems[i].ID == problemID {
			return &m.Problems[i]
		}
	}
	return nil
}

// Remaining computes the seconds left at the given instant. It is always
// derived from StartedAt so repeated calls can never drift downward faster
// than the wall clock.
func (m *MatchSnapshot) Remaining(now time.Time) time.Duration {
	if m.StartedAt.IsZero() {
		return m.Duration
	}
	elapsed := now.Sub(m.StartedAt)
	if elapsed >= m.Duration {
		return 0
	}
	return m.Duration - elapsed.Truncate(time.Second)
}

// Encode serializes the static snapshot part into hash fields.
func (m *MatchSnapshot) Encode() (map[string]interface{}, error) {
	problems, err := json.Marshal(m.Problems)
	if err != nil {
		return nil, errors.Wrap(err, errors.InternalServerError)
	}
	players, err := json.Marshal(m.Players)
	if err != nil {
		return nil, errors.Wrap(err, errors.InternalServerError)
	}
	fields := map[string]interface{}{
		fieldMatchID:   m.MatchID,
		fieldMode:      string(m.Mode),
		fieldStatus:    string(m.Status),
		fieldProblems:  string(problems),
		fieldPlayers:   string(players),
		fieldDuration:  strconv.FormatInt(int64(m.Duration/time.Second), 10),
		fieldCreatedAt: strconv.FormatInt(m.CreatedAt.Unix(), 10),
		fieldStartedAt: strconv.FormatInt(startedAtUnix(m.StartedAt), 10),
	}
	return fields, nil
}

// EncodePlayers serializes only the players blob.
func (m *MatchSnapshot) EncodePlayers() (string, error) {
	players, err := json.Marshal(m.Players)
	if err != nil {
		return "", errors.Wrap(err, errors.InternalServerError)
	}
	return string(players), nil
}

// DecodeSnapshot rebuilds a snapshot from hash fields. Missing or malformed
// required fields are corruption, never silently defaulted.
func DecodeSnapshot(fields map[string]string) (*MatchSnapshot, error) {
	if len(fields) == 0 {
		return nil, errors.New(errors.MatchNotFound)
	}
	required := []string{fieldMatchID, fieldMode, fieldStatus, fieldProblems, fieldPlayers, fieldDuration, fieldCreatedAt, fieldStartedAt}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			return nil, errors.Newf(errors.MatchStateCorrupted, "snapshot missing field %s", f)
		}
	}

	mode, err := ParseMode(fields[fieldMode])
	if err != nil {
		return nil, errors.Wrap(err, errors.MatchStateCorrupted)
	}
	status := MatchStatus(fields[fieldStatus])
	switch status {
	case StatusWaiting, StatusActive, StatusFinished, StatusCancelled:
	default:
		return nil, errors.Newf(errors.MatchStateCorrupted, "unknown status %q", fields[fieldStatus])
	}

	var problems []ProblemRef
	if err := json.Unmarshal([]byte(fields[fieldProblems]), &problems); err != nil {
		return nil, errors.Wrap(err, errors.MatchStateCorrupted)
	}
	var players []PlayerState
	if err := json.Unmarshal([]byte(fields[fieldPlayers]), &players); err != nil {
		return nil, errors.Wrap(err, errors.MatchStateCorrupted)
	}

	durationSec, err := strconv.ParseInt(fields[fieldDuration], 10, 64)
	if err != nil || durationSec <= 0 {
		return nil, errors.Newf(errors.MatchStateCorrupted, "invalid duration %q", fields[fieldDuration])
	}
	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, errors.Newf(errors.MatchStateCorrupted, "invalid created_at %q", fields[fieldCreatedAt])
	}
	startedAt, err := strconv.ParseInt(fields[fieldStartedAt], 10, 64)
	if err != nil {
		return nil, errors.Newf(errors.MatchStateCorrupted, "invalid started_at %q", fields[fieldStartedAt])
	}

	snapshot := &MatchSnapshot{
		MatchID:   fields[fieldMatchID],
		Mode:      mode,
		Status:    status,
		Problems:  problems,
		Players:   players,
		Duration:  time.Duration(durationSec) * time.Second,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}
	if startedAt > 0 {
		snapshot.StartedAt = time.Unix(startedAt, 0).UTC()
	}
	return snapshot, nil
}

// StatusField exposes the status hash field name for single-field updates.
func StatusField() string { return fieldStatus }

// PlayersField exposes the players hash field name for single-field updates.
func PlayersField() string { return fieldPlayers }

// StartedAtField exposes the started_at hash field name.
func StartedAtField() string { return fieldStartedAt }

func startedAtUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
