package repository

import (
	"context"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/common/db"
	"codearena/pkg/errors"
)

// MatchStore persists matches durably in MySQL. The redis snapshot is the
// live authority; rows here are the eventual record.
type MatchStore struct {
	db db.Database
}

// NewMatchStore creates a durable match store.
func NewMatchStore(database db.Database) *MatchStore {
	return &MatchStore{db: database}
}

// Create inserts the match with its players and problems in one transaction.
func (s *MatchStore) Create(ctx context.Context, snapshot *model.MatchSnapshot) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO matches (match_id, mode, status, duration_sec, created_at) VALUES (?, ?, ?, ?, ?)",
			snapshot.MatchID, string(snapshot.Mode), string(snapshot.Status),
			int64(snapshot.Duration/time.Second), snapshot.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.DatabaseError)
		}
		for i, p := range snapshot.Players {
			_, err := tx.Exec(ctx,
				"INSERT INTO match_players (match_id, user_id, seat, score, `rank`) VALUES (?, ?, ?, 0, 0)",
				snapshot.MatchID, p.UserID, i)
			if err != nil {
				return errors.Wrap(err, errors.DatabaseError)
			}
		}
		for i, pr := range snapshot.Problems {
			_, err := tx.Exec(ctx,
				"INSERT INTO match_problems (match_id, problem_id, position) VALUES (?, ?, ?)",
				snapshot.MatchID, pr.ID, i)
			if err != nil {
				return errors.Wrap(err, errors.DatabaseError)
			}
		}
		return nil
	})
}

// SetStatus updates the durable status, stamping started_at when the match
// goes active.
func (s *MatchStore) SetStatus(ctx context.Context, matchID string, status model.MatchStatus, at time.Time) error {
	var err error
	switch status {
	case model.StatusActive:
		_, err = s.db.Exec(ctx,
			"UPDATE matches SET status = ?, started_at = ? WHERE match_id = ?",
			string(status), at, matchID)
	case model.StatusFinished, model.StatusCancelled:
		_, err = s.db.Exec(ctx,
			"UPDATE matches SET status = ?, ended_at = ? WHERE match_id = ?",
			string(status), at, matchID)
	default:
		_, err = s.db.Exec(ctx,
			"UPDATE matches SET status = ? WHERE match_id = ?",
			string(status), matchID)
	}
	if err != nil {
		return errors.Wrap(err, errors.DatabaseError).WithDetail("match_id", matchID)
	}
	return nil
}

// Finalize writes terminal status plus every player's final score and rank
// in one transaction.
func (s *MatchStore) Finalize(ctx context.Context, matchID string, status model.MatchStatus, players []model.PlayerState, endedAt time.Time) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		_, err := tx.Exec(ctx,
			"UPDATE matches SET status = ?, ended_at = ? WHERE match_id = ?",
			string(status), endedAt, matchID)
		if err != nil {
			return errors.Wrap(err, errors.DatabaseError)
		}
		for _, p := range players {
			_, err := tx.Exec(ctx,
				"UPDATE match_players SET score = ?, `rank` = ? WHERE match_id = ? AND user_id = ?",
				p.Score, p.Rank, matchID, p.UserID)
			if err != nil {
				return errors.Wrap(err, errors.DatabaseError)
			}
		}
		return nil
	})
}
