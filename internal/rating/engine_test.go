package rating

import (
	"context"
	"testing"
)

type memStore struct {
	ratings map[int64]map[Dimension]Rating
}

func newMemStore() *memStore {
	return &memStore{ratings: make(map[int64]map[Dimension]Rating)}
}

func (s *memStore) GetRating(ctx context.Context, userID int64, dim Dimension) (Rating, error) {
	if dims, ok := s.ratings[userID]; ok {
		if r, ok := dims[dim]; ok {
			return r, nil
		}
	}
	return NewRating(), nil
}

func (s *memStore) SaveRating(ctx context.Context, userID int64, dim Dimension, r Rating) error {
	if s.ratings[userID] == nil {
		s.ratings[userID] = make(map[Dimension]Rating)
	}
	s.ratings[userID][dim] = r
	return nil
}

func (s *memStore) GetAllRatings(ctx context.Context, userID int64) (map[Dimension]Rating, error) {
	out := make(map[Dimension]Rating)
	for dim, r := range s.ratings[userID] {
		out[dim] = r
	}
	return out, nil
}

func TestApplyMatchTwoPlayers(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	engine := NewEngine(store)

	updated, err := engine.ApplyMatch(context.Background(), DimensionSpeed, []Placement{
		{UserID: 1, Rank: 1},
		{UserID: 2, Rank: 2},
	})
	if err != nil {
		t.Fatalf("apply match failed: %v", err)
	}
	if updated[1].Rating <= InitialRating {
		t.Fatalf("expected winner above initial, got %.2f", updated[1].Rating)
	}
	if updated[2].Rating >= InitialRating {
		t.Fatalf("expected loser below initial, got %.2f", updated[2].Rating)
	}

	stored, err := store.GetRating(context.Background(), 1, DimensionSpeed)
	if err != nil {
		t.Fatalf("read stored rating failed: %v", err)
	}
	if stored != updated[1] {
		t.Fatalf("stored rating %+v does not match returned %+v", stored, updated[1])
	}
}

func TestApplyMatchMultiPlayerPlacements(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	engine := NewEngine(store)

	updated, err := engine.ApplyMatch(context.Background(), DimensionAlgorithms, []Placement{
		{UserID: 1, Rank: 1},
		{UserID: 2, Rank: 2},
		{UserID: 3, Rank: 3},
		{UserID: 4, Rank: 4},
	})
	if err != nil {
		t.Fatalf("apply match failed: %v", err)
	}
	// Everyone started equal, so final ratings must follow placement order.
	for i := int64(1); i < 4; i++ {
		if updated[i].Rating <= updated[i+1].Rating {
			t.Fatalf("expected player %d above player %d, got %.2f vs %.2f",
				i, i+1, updated[i].Rating, updated[i+1].Rating)
		}
	}
}

func TestApplyMatchDrawKeepsEqualPlayersLevel(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	engine := NewEngine(store)

	updated, err := engine.ApplyMatch(context.Background(), DimensionDebugging, []Placement{
		{UserID: 1, Rank: 1},
		{UserID: 2, Rank: 1},
	})
	if err != nil {
		t.Fatalf("apply match failed: %v", err)
	}
	if updated[1].Rating != updated[2].Rating {
		t.Fatalf("expected equal ratings after draw, got %.2f vs %.2f",
			updated[1].Rating, updated[2].Rating)
	}
	for id, r := range updated {
		if r.RD > InitialDeviation {
			t.Fatalf("expected player %d deviation to shrink after a draw, got %.2f", id, r.RD)
		}
	}
}

func TestApplyMatchIncrementsMatchCount(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.ratings[1] = map[Dimension]Rating{
		DimensionSpeed: {Rating: 1600, RD: 100, Volatility: 0.06, MatchCount: 4},
	}
	engine := NewEngine(store)

	updated, err := engine.ApplyMatch(context.Background(), DimensionSpeed, []Placement{
		{UserID: 1, Rank: 1},
		{UserID: 2, Rank: 2},
	})
	if err != nil {
		t.Fatalf("apply match failed: %v", err)
	}
	if updated[1].MatchCount != 5 {
		t.Fatalf("expected match count 5, got %d", updated[1].MatchCount)
	}
	if updated[2].MatchCount != 1 {
		t.Fatalf("expected first match to count 1, got %d", updated[2].MatchCount)
	}
	stored, _ := store.GetRating(context.Background(), 1, DimensionSpeed)
	if stored.MatchCount != 5 {
		t.Fatalf("expected stored match count 5, got %d", stored.MatchCount)
	}
}

func TestApplyMatchRequiresTwoPlacements(t *testing.T) {
	t.Parallel()
	engine := NewEngine(newMemStore())
	if _, err := engine.ApplyMatch(context.Background(), DimensionSpeed, []Placement{{UserID: 1, Rank: 1}}); err == nil {
		t.Fatal("expected error for single placement")
	}
}
