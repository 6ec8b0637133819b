package model

import (
	"time"

	"codearena/internal/rating"
	"codearena/pkg/errors"
)

// GameMode identifies one of the competitive formats.
type GameMode string

const (
	ModeBlitz1v1     GameMode = "BLITZ_1V1"
	ModeCodeGolf     GameMode = "CODE_GOLF"
	ModeBattleRoyale GameMode = "BATTLE_ROYALE"
	ModeSabotage     GameMode = "SABOTAGE"
)

// ModeConfig describes the fixed parameters of a game mode.
type ModeConfig struct {
	Label            string
	MinPlayers       int
	MaxPlayers       int
	Duration         time.Duration
	ProblemCount     int
	PrimaryDimension rating.Dimension
	DisconnectGrace  time.Duration

	// SingleWinner modes lock a problem for everyone once someone solves it.
	SingleWinner bool
}

var modeConfigs = map[GameMode]ModeConfig{
	ModeBlitz1v1: {
		Label:            "1v1 Blitz",
		MinPlayers:       2,
		MaxPlayers:       2,
		Duration:         30 * time.Minute,
		ProblemCount:     5,
		PrimaryDimension: rating.DimensionSpeed,
		DisconnectGrace:  30 * time.Second,
		SingleWinner:     true,
	},
	ModeCodeGolf: {
		Label:            "Code Golf",
		MinPlayers:       2,
		MaxPlayers:       8,
		Duration:         15 * time.Minute,
		ProblemCount:     1,
		PrimaryDimension: rating.DimensionOptimization,
		DisconnectGrace:  60 * time.Second,
		SingleWinner:     false,
	},
	ModeBattleRoyale: {
		Label:            "Battle Royale",
		MinPlayers:       10,
		MaxPlayers:       100,
		Duration:         60 * time.Minute,
		ProblemCount:     3,
		PrimaryDimension: rating.DimensionAlgorithms,
		DisconnectGrace:  15 * time.Second,
		SingleWinner:     true,
	},
	ModeSabotage: {
		Label:            "Sabotage & Debug",
		MinPlayers:       2,
		MaxPlayers:       2,
		Duration:         10 * time.Minute,
		ProblemCount:     1,
		PrimaryDimension: rating.DimensionDebugging,
		DisconnectGrace:  30 * time.Second,
		SingleWinner:     true,
	},
}

// AllModes lists every game mode in a stable order.
func AllModes() []GameMode {
	return []GameMode{ModeBlitz1v1, ModeCodeGolf, ModeBattleRoyale, ModeSabotage}
}

// ParseMode validates a raw mode string.
func ParseMode(raw string) (GameMode, error) {
	mode := GameMode(raw)
	if _, ok := modeConfigs[mode]; !ok {
		return "", errors.Newf(errors.UnknownGameMode, "unknown game mode %q", raw)
	}
	return mode, nil
}

// Config returns the configuration of a known mode.
func (m GameMode) Config() ModeConfig {
	return modeConfigs[m]
}

// Valid reports whether the mode is known.
func (m GameMode) Valid() bool {
	_, ok := modeConfigs[m]
	return ok
}

// Matchmaking pacing constants.
const (
	InitialRatingRange     = 150
	RangeExpansionStep     = 50
	RangeExpansionInterval = 10 * time.Second
	RangeExpansionStart    = 30 * time.Second
	QueuePollInterval      = 2 * time.Second
	MaxQueueTime           = 3 * time.Minute
)

// ReadyTimeout is how long a WAITING match waits for every player to ack.
const ReadyTimeout = 5 * time.Second

// AllowedRange returns the rating window granted to an entry that has been
// waiting for the given duration. The window only ever widens: the first
// expansion step lands one full interval after the expansion start.
func AllowedRange(waited time.Duration) int {
	if waited <= RangeExpansionStart {
		return InitialRatingRange
	}
	steps := int((waited - RangeExpansionStart) / RangeExpansionInterval)
	return InitialRatingRange + steps*RangeExpansionStep
}

// blitzPoints maps problem difficulty to blitz score value.
var blitzPoints = map[string]int{
	"EASY":   100,
	"MEDIUM": 200,
	"HARD":   400,
}

// PointsForDifficulty returns the blitz point value of a problem difficulty.
// Unknown difficulties score as MEDIUM.
func PointsForDifficulty(difficulty string) int {
	if pts, ok := blitzPoints[difficulty]; ok {
		return pts
	}
	return blitzPoints["MEDIUM"]
}

// golfPlacementPoints rewards code-golf placement by ascending best length.
var golfPlacementPoints = []int{100, 70, 50, 30, 20, 15, 10, 5}

// GolfPlacementPoints returns the points for a zero-based placement.
func GolfPlacementPoints(place int) int {
	if place < 0 || place >= len(golfPlacementPoints) {
		return 0
	}
	return golfPlacementPoints[place]
}
