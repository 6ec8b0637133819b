package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/rating"
	"codearena/pkg/errors"
)

const (
	ratingCacheKeyPrefix = "rating:user:"
	ratingCacheTTL       = 15 * time.Minute
	ratingCacheEmptyTTL  = 2 * time.Minute
)

// RatingStore implements rating.Store on MySQL with a cache-aside layer
// keyed per (user, dimension).
type RatingStore struct {
	db    db.Database
	cache cache.Cache
}

// NewRatingStore creates a rating store.
func NewRatingStore(database db.Database, cacheClient cache.Cache) *RatingStore {
	return &RatingStore{db: database, cache: cacheClient}
}

func ratingCacheKey(userID int64, dim rating.Dimension) string {
	return fmt.Sprintf("%s%d:%s", ratingCacheKeyPrefix, userID, dim)
}

// GetRating returns the stored rating, or the initial rating when the user
// has no history in this dimension.
func (s *RatingStore) GetRating(ctx context.Context, userID int64, dim rating.Dimension) (rating.Rating, error) {
	key := ratingCacheKey(userID, dim)
	stored, err := cache.GetWithCached(ctx, s.cache, key, ratingCacheTTL, ratingCacheEmptyTTL,
		func(r *rating.Rating) bool { return r == nil },
		func(r *rating.Rating) string {
			data, _ := json.Marshal(r)
			return string(data)
		},
		func(data string) (*rating.Rating, error) {
			var r rating.Rating
			if err := json.Unmarshal([]byte(data), &r); err != nil {
				return nil, err
			}
			return &r, nil
		},
		func(ctx context.Context) (*rating.Rating, error) {
			return s.fetchRating(ctx, userID, dim)
		})
	if err != nil {
		return rating.Rating{}, err
	}
	if stored == nil {
		return rating.NewRating(), nil
	}
	return *stored, nil
}

func (s *RatingStore) fetchRating(ctx context.Context, userID int64, dim rating.Dimension) (*rating.Rating, error) {
	row := s.db.QueryRow(ctx,
		"SELECT rating, rd, volatility, match_count FROM user_ratings WHERE user_id = ? AND dimension = ?",
		userID, string(dim))
	var r rating.Rating
	err := row.Scan(&r.Rating, &r.RD, &r.Volatility, &r.MatchCount)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return &r, nil
}

// SaveRating upserts the rating and invalidates the cache entry.
func (s *RatingStore) SaveRating(ctx context.Context, userID int64, dim rating.Dimension, r rating.Rating) error {
	return cache.UpdateCached(ctx, s.cache, ratingCacheKey(userID, dim), func(ctx context.Context) error {
		_, err := s.db.Exec(ctx,
			`INSERT INTO user_ratings (user_id, dimension, rating, rd, volatility, match_count)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE rating = VALUES(rating), rd = VALUES(rd),
			 volatility = VALUES(volatility), match_count = VALUES(match_count)`,
			userID, string(dim), r.Rating, r.RD, r.Volatility, r.MatchCount)
		if err != nil {
			return errors.Wrap(err, errors.RatingUpdateFailed)
		}
		return nil
	})
}

// GetAllRatings returns every stored dimension for a user.
func (s *RatingStore) GetAllRatings(ctx context.Context, userID int64) (map[rating.Dimension]rating.Rating, error) {
	rows, err := s.db.Query(ctx,
		"SELECT dimension, rating, rd, volatility, match_count FROM user_ratings WHERE user_id = ?",
		userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	defer rows.Close()

	ratings := make(map[rating.Dimension]rating.Rating)
	for rows.Next() {
		var raw string
		var r rating.Rating
		if err := rows.Scan(&raw, &r.Rating, &r.RD, &r.Volatility, &r.MatchCount); err != nil {
			return nil, errors.Wrap(err, errors.DatabaseError)
		}
		dim, err := rating.ParseDimension(raw)
		if err != nil {
			continue
		}
		ratings[dim] = r
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return ratings, nil
}

var _ rating.Store = (*RatingStore)(nil)
