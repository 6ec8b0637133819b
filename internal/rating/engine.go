package rating

import (
	"context"
	"math"

	"go.uber.org/zap"

	"codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

// Dimension is one of the skill axes tracked per player.
type Dimension string

const (
	DimensionAlgorithms   Dimension = "ALGORITHMS"
	DimensionSpeed        Dimension = "SPEED"
	DimensionDebugging    Dimension = "DEBUGGING"
	DimensionOptimization Dimension = "OPTIMIZATION"
)

// Dimensions lists every tracked dimension in composite-weight order.
var Dimensions = []Dimension{
	DimensionAlgorithms,
	DimensionSpeed,
	DimensionDebugging,
	DimensionOptimization,
}

var compositeWeights = map[Dimension]float64{
	DimensionAlgorithms:   0.35,
	DimensionSpeed:        0.25,
	DimensionDebugging:    0.20,
	DimensionOptimization: 0.20,
}

// ParseDimension validates a raw dimension string.
func ParseDimension(raw string) (Dimension, error) {
	d := Dimension(raw)
	if _, ok := compositeWeights[d]; !ok {
		return "", errors.Newf(errors.UnknownDimension, "unknown rating dimension %q", raw)
	}
	return d, nil
}

// Composite collapses per-dimension ratings into one display number.
// Missing dimensions count as the initial rating.
func Composite(ratings map[Dimension]Rating) float64 {
	total := 0.0
	for dim, weight := range compositeWeights {
		value := InitialRating
		if r, ok := ratings[dim]; ok {
			value = r.Rating
		}
		total += value * weight
	}
	return math.Round(total)
}

// Tier is a display rank band derived from composite rating.
type Tier string

const (
	TierBronze      Tier = "BRONZE"
	TierSilver      Tier = "SILVER"
	TierGold        Tier = "GOLD"
	TierPlatinum    Tier = "PLATINUM"
	TierDiamond     Tier = "DIAMOND"
	TierMaster      Tier = "MASTER"
	TierGrandmaster Tier = "GRANDMASTER"
)

var tierFloors = []struct {
	tier Tier
	min  float64
}{
	{TierGrandmaster, 2700},
	{TierMaster, 2400},
	{TierDiamond, 2100},
	{TierPlatinum, 1800},
	{TierGold, 1500},
	{TierSilver, 1200},
	{TierBronze, 0},
}

// TierFor returns the rank tier for a composite rating.
func TierFor(composite float64) Tier {
	for _, t := range tierFloors {
		if composite >= t.min {
			return t.tier
		}
	}
	return TierBronze
}

// Store persists per-dimension ratings.
type Store interface {
	// GetRating returns the stored rating, or the initial rating when none exists.
	GetRating(ctx context.Context, userID int64, dim Dimension) (Rating, error)

	// SaveRating upserts a rating for a user and dimension.
	SaveRating(ctx context.Context, userID int64, dim Dimension, r Rating) error

	// GetAllRatings returns every stored dimension for a user.
	GetAllRatings(ctx context.Context, userID int64) (map[Dimension]Rating, error)
}

// Placement is one player's final standing in a finished match.
// Rank is 1-based; equal ranks are draws against each other.
type Placement struct {
	UserID int64
	Rank   int
}

// Engine applies finished matches to the rating store.
type Engine struct {
	store Store
}

// NewEngine creates a rating engine backed by the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// ApplyMatch updates the mode's primary dimension for every placed player.
// All of a player's opponents form a single simultaneous rating period, so
// multi-player placements (battle royale) resolve in one update per player.
func (e *Engine) ApplyMatch(ctx context.Context, dim Dimension, placements []Placement) (map[int64]Rating, error) {
	if len(placements) < 2 {
		return nil, errors.New(errors.InvalidParams).WithMessage("at least two placements are required")
	}

	before := make(map[int64]Rating, len(placements))
	for _, p := range placements {
		r, err := e.store.GetRating(ctx, p.UserID, dim)
		if err != nil {
			return nil, errors.Wrap(err, errors.RatingNotFound)
		}
		before[p.UserID] = r
	}

	// Every player is updated against pre-match opponent ratings.
	updated := make(map[int64]Rating, len(placements))
	for _, p := range placements {
		results := make([]GameResult, 0, len(placements)-1)
		for _, opp := range placements {
			if opp.UserID == p.UserID {
				continue
			}
			results = append(results, GameResult{
				Opponent: before[opp.UserID],
				Score:    scoreAgainst(p.Rank, opp.Rank),
			})
		}
		r := Round(Update(before[p.UserID], results))
		r.MatchCount = before[p.UserID].MatchCount + 1
		updated[p.UserID] = r
	}

	for userID, r := range updated {
		if err := e.store.SaveRating(ctx, userID, dim, r); err != nil {
			return nil, errors.Wrap(err, errors.RatingUpdateFailed).
				WithDetail("user_id", userID).
				WithDetail("dimension", string(dim))
		}
		logger.Debug(ctx, "rating updated",
			zap.Int64("user_id", userID),
			zap.String("dimension", string(dim)),
			zap.Float64("rating", r.Rating))
	}
	return updated, nil
}

// CompositeFor loads all dimensions for a user and collapses them.
func (e *Engine) CompositeFor(ctx context.Context, userID int64) (float64, error) {
	ratings, err := e.store.GetAllRatings(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, errors.RatingNotFound).WithDetail("user_id", userID)
	}
	return Composite(ratings), nil
}

func scoreAgainst(rank, oppRank int) float64 {
	switch {
	case rank < oppRank:
		return 1
	case rank > oppRank:
		return 0
	default:
		return 0.5
	}
}
