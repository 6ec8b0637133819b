package model

import (
	"testing"
	"time"

	"codearena/pkg/errors"
)

func TestParseMode(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"BLITZ_1V1", "CODE_GOLF", "BATTLE_ROYALE", "SABOTAGE"} {
		mode, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("parse %s failed: %v", raw, err)
		}
		if !mode.Valid() {
			t.Fatalf("expected %s to be valid", raw)
		}
	}

	_, err := ParseMode("CHESS")
	if !errors.Is(err, errors.UnknownGameMode) {
		t.Fatalf("expected UnknownGameMode, got %v", err)
	}
}

func TestModeConfigs(t *testing.T) {
	t.Parallel()
	blitz := ModeBlitz1v1.Config()
	if blitz.MinPlayers != 2 || blitz.MaxPlayers != 2 || !blitz.SingleWinner {
		t.Fatalf("unexpected blitz config: %+v", blitz)
	}
	golf := ModeCodeGolf.Config()
	if golf.MaxPlayers != 8 || golf.SingleWinner {
		t.Fatalf("unexpected golf config: %+v", golf)
	}
	royale := ModeBattleRoyale.Config()
	if royale.MinPlayers != 10 || royale.MaxPlayers != 100 {
		t.Fatalf("unexpected battle royale config: %+v", royale)
	}
}

func TestAllowedRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		waited time.Duration
		want   int
	}{
		{name: "fresh entry", waited: 0, want: 150},
		{name: "at expansion start", waited: 30 * time.Second, want: 150},
		{name: "mid first interval", waited: 35 * time.Second, want: 150},
		{name: "first expansion", waited: 40 * time.Second, want: 200},
		{name: "second expansion", waited: 50 * time.Second, want: 250},
		{name: "long wait", waited: 90 * time.Second, want: 450},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AllowedRange(tt.waited); got != tt.want {
				t.Fatalf("AllowedRange(%v) = %d, want %d", tt.waited, got, tt.want)
			}
		})
	}
}

func TestPointsForDifficulty(t *testing.T) {
	t.Parallel()
	if got := PointsForDifficulty("EASY"); got != 100 {
		t.Fatalf("EASY = %d", got)
	}
	if got := PointsForDifficulty("HARD"); got != 400 {
		t.Fatalf("HARD = %d", got)
	}
	if got := PointsForDifficulty("NIGHTMARE"); got != 200 {
		t.Fatalf("expected unknown difficulty to score as MEDIUM, got %d", got)
	}
}

func TestGolfPlacementPoints(t *testing.T) {
	t.Parallel()
	if got := GolfPlacementPoints(0); got != 100 {
		t.Fatalf("first place = %d", got)
	}
	if got := GolfPlacementPoints(7); got != 5 {
		t.Fatalf("eighth place = %d", got)
	}
	if got := GolfPlacementPoints(8); got != 0 {
		t.Fatalf("ninth place = %d", got)
	}
	if got := GolfPlacementPoints(-1); got != 0 {
		t.Fatalf("negative place = %d", got)
	}
}

func TestQueueEntryWaited(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entry := QueueEntry{UserID: 1, JoinedAt: now.Add(-45 * time.Second)}
	if got := entry.Waited(now); got != 45*time.Second {
		t.Fatalf("waited = %v", got)
	}
	if got := (QueueEntry{}).Waited(now); got != 0 {
		t.Fatalf("zero join instant should wait 0, got %v", got)
	}
}
