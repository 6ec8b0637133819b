package rating

import (
	"math"
	"testing"
)

func TestUpdateWinRaisesRating(t *testing.T) {
	t.Parallel()
	player := NewRating()
	updated := Update(player, []GameResult{{Opponent: NewRating(), Score: 1}})
	if updated.Rating <= player.Rating {
		t.Fatalf("expected rating to rise after a win, got %.2f", updated.Rating)
	}
	if updated.RD >= player.RD {
		t.Fatalf("expected deviation to shrink after a game, got %.2f", updated.RD)
	}
}

func TestUpdateLossLowersRating(t *testing.T) {
	t.Parallel()
	updated := Update(NewRating(), []GameResult{{Opponent: NewRating(), Score: 0}})
	if updated.Rating >= InitialRating {
		t.Fatalf("expected rating to drop after a loss, got %.2f", updated.Rating)
	}
}

func TestUpdateDrawBetweenEqualsIsNeutral(t *testing.T) {
	t.Parallel()
	player := NewRating()
	updated := Update(player, []GameResult{{Opponent: NewRating(), Score: 0.5}})
	if math.Abs(updated.Rating-InitialRating) > 1e-6 {
		t.Fatalf("expected draw between equal players to keep rating, got %.6f", updated.Rating)
	}
	// A draw is still evidence; certainty must not decrease.
	if updated.RD > player.RD {
		t.Fatalf("expected deviation to shrink after a draw, got %.4f from %.4f", updated.RD, player.RD)
	}
}

func TestUpdateWinLossSymmetry(t *testing.T) {
	t.Parallel()
	winner := Update(NewRating(), []GameResult{{Opponent: NewRating(), Score: 1}})
	loser := Update(NewRating(), []GameResult{{Opponent: NewRating(), Score: 0}})
	gain := winner.Rating - InitialRating
	loss := InitialRating - loser.Rating
	if math.Abs(gain-loss) > 1e-6 {
		t.Fatalf("expected symmetric rating change, gain=%.6f loss=%.6f", gain, loss)
	}
}

func TestUpdateNoGamesGrowsDeviation(t *testing.T) {
	t.Parallel()
	player := Rating{Rating: 1500, RD: 50, Volatility: 0.06}
	updated := Update(player, nil)
	if updated.RD <= player.RD {
		t.Fatalf("expected deviation to grow with no games, got %.4f", updated.RD)
	}
	if math.Abs(updated.Rating-player.Rating) > 1e-9 {
		t.Fatalf("expected rating unchanged with no games, got %.6f", updated.Rating)
	}
}

func TestUpdateUpsetBeatsExpectedWin(t *testing.T) {
	t.Parallel()
	underdog := Rating{Rating: 1400, RD: 200, Volatility: 0.06}
	favorite := Rating{Rating: 1700, RD: 200, Volatility: 0.06}

	upset := Update(underdog, []GameResult{{Opponent: favorite, Score: 1}})
	expected := Update(favorite, []GameResult{{Opponent: underdog, Score: 1}})

	upsetGain := upset.Rating - underdog.Rating
	expectedGain := expected.Rating - favorite.Rating
	if upsetGain <= expectedGain {
		t.Fatalf("expected upset to pay more than expected win, upset=%.2f expected=%.2f", upsetGain, expectedGain)
	}
}

func TestRound(t *testing.T) {
	t.Parallel()
	r := Round(Rating{Rating: 1512.6789, RD: 290.12345, Volatility: 0.059987})
	if r.Rating != 1513 {
		t.Fatalf("expected rating 1513, got %v", r.Rating)
	}
	if r.RD != 290.12 {
		t.Fatalf("expected RD 290.12, got %v", r.RD)
	}
	if r.Volatility != 0.06 {
		t.Fatalf("expected volatility 0.06, got %v", r.Volatility)
	}
}

func TestCompositeMissingDimensionsDefault(t *testing.T) {
	t.Parallel()
	if got := Composite(nil); got != 1500 {
		t.Fatalf("expected composite 1500 for empty ratings, got %.0f", got)
	}
	ratings := map[Dimension]Rating{
		DimensionAlgorithms: {Rating: 2000},
	}
	// 2000*0.35 + 1500*0.65 = 1675
	if got := Composite(ratings); got != 1675 {
		t.Fatalf("expected composite 1675, got %.0f", got)
	}
}

func TestTierFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		composite float64
		want      Tier
	}{
		{0, TierBronze},
		{1199, TierBronze},
		{1200, TierSilver},
		{1500, TierGold},
		{1800, TierPlatinum},
		{2100, TierDiamond},
		{2400, TierMaster},
		{2699, TierMaster},
		{2700, TierGrandmaster},
		{3200, TierGrandmaster},
	}
	for _, tt := range tests {
		if got := TierFor(tt.composite); got != tt.want {
			t.Fatalf("TierFor(%.0f) = %s, want %s", tt.composite, got, tt.want)
		}
	}
}

func TestParseDimension(t *testing.T) {
	t.Parallel()
	if _, err := ParseDimension("SPEED"); err != nil {
		t.Fatalf("expected SPEED to parse: %v", err)
	}
	if _, err := ParseDimension("CHARISMA"); err == nil {
		t.Fatal("expected unknown dimension to fail")
	}
}
