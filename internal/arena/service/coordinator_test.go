package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"codearena/internal/arena/model"
)

func TestRunTimerBroadcastsFinalZeroTick(t *testing.T) {
	t.Parallel()
	notify := newRecordingNotifier()
	c := NewMatchCoordinator(CoordinatorConfig{Notify: notify})
	c.users[7] = "m-1"

	c.runTimer(context.Background(), "m-1", c.now(), 2*time.Second)

	var ticks []int64
	for _, event := range notify.events[7] {
		if event.Type != model.EventMatchTick {
			continue
		}
		var payload model.MatchTickPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			t.Fatalf("decode tick: %v", err)
		}
		ticks = append(ticks, payload.RemainingSec)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected one tick per elapsed second, got %v", ticks)
	}
	if ticks[len(ticks)-1] != 0 {
		t.Fatalf("expected the clock to reach zero before the match ended, got %v", ticks)
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] >= ticks[i-1] {
			t.Fatalf("expected strictly decreasing ticks, got %v", ticks)
		}
	}
}

func TestAssignScoresAndRanksSingleWinner(t *testing.T) {
	t.Parallel()
	snapshot := &model.MatchSnapshot{
		Mode: model.ModeBlitz1v1,
		Players: []model.PlayerState{
			{UserID: 1, Score: 200},
			{UserID: 2, Score: 500},
			{UserID: 3, Score: 200},
		},
	}

	assignScoresAndRanks(snapshot)

	if snapshot.Players[1].Rank != 1 {
		t.Fatalf("expected user 2 ranked first, got rank %d", snapshot.Players[1].Rank)
	}
	// Tie broken by original order.
	if snapshot.Players[0].Rank != 2 || snapshot.Players[2].Rank != 3 {
		t.Fatalf("unexpected tie ranks: %d and %d", snapshot.Players[0].Rank, snapshot.Players[2].Rank)
	}
}

func TestAssignScoresAndRanksGolf(t *testing.T) {
	t.Parallel()
	snapshot := &model.MatchSnapshot{
		Mode: model.ModeCodeGolf,
		Players: []model.PlayerState{
			{UserID: 1, BestLength: 120},
			{UserID: 2, BestLength: 80},
			{UserID: 3},
			{UserID: 4, BestLength: 95},
		},
	}

	assignScoresAndRanks(snapshot)

	if snapshot.Players[1].Score != 100 {
		t.Fatalf("expected shortest solution to score 100, got %d", snapshot.Players[1].Score)
	}
	if snapshot.Players[3].Score != 70 {
		t.Fatalf("expected second place to score 70, got %d", snapshot.Players[3].Score)
	}
	if snapshot.Players[0].Score != 50 {
		t.Fatalf("expected third place to score 50, got %d", snapshot.Players[0].Score)
	}
	if snapshot.Players[2].Score != 0 {
		t.Fatalf("expected non-solver to score 0, got %d", snapshot.Players[2].Score)
	}

	if snapshot.Players[1].Rank != 1 || snapshot.Players[3].Rank != 2 || snapshot.Players[0].Rank != 3 || snapshot.Players[2].Rank != 4 {
		t.Fatalf("unexpected ranks: %+v", snapshot.Players)
	}
}

func TestApplyGolfPlacementStableTies(t *testing.T) {
	t.Parallel()
	players := []model.PlayerState{
		{UserID: 1, BestLength: 90},
		{UserID: 2, BestLength: 90},
	}

	applyGolfPlacement(players)

	if players[0].Score != 100 || players[1].Score != 70 {
		t.Fatalf("expected tie to keep original order, got %d and %d", players[0].Score, players[1].Score)
	}
}
