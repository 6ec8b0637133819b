package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

// Submission represents one judged (or pending) submission record.
type Submission struct {
	SubmissionID string
	MatchID      string
	ProblemID    int64
	UserID       int64
	LanguageID   string
	SourceCode   string
	Scene        string
	Verdict      string
	Passed       int
	Total        int
	TimeMS       int64
	MemoryKB     int64
	CodeLength   int
	CreatedAt    time.Time
	JudgedAt     *time.Time
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	UpdateResult(ctx context.Context, res *model.JudgeResult) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "submission_id, match_id, problem_id, user_id, language_id, source_code, scene, verdict, passed, total, time_ms, memory_kb, code_length, created_at, judged_at"

// Create inserts a pending submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if submission.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if submission.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if submission.LanguageID == "" {
		return appErr.ValidationError("language_id", "required")
	}

	query := `
		INSERT INTO submissions
		(submission_id, match_id, problem_id, user_id, language_id, source_code, scene, verdict, code_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var matchID *string
	if submission.MatchID != "" {
		matchID = &submission.MatchID
	}
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.SubmissionID,
		matchID,
		submission.ProblemID,
		submission.UserID,
		submission.LanguageID,
		submission.SourceCode,
		submission.Scene,
		submission.Verdict,
		submission.CodeLength,
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "insert submission failed")
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	if r.cache != nil && tx == nil {
		submission, err := cache.GetWithCached[*Submission](
			ctx,
			r.cache,
			submissionCacheKey(submissionID),
			r.ttl,
			r.emptyTTL,
			func(s *Submission) bool { return s == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*Submission, error) {
				submission, err := r.getByIDFromDB(ctx, nil, submissionID)
				if err != nil {
					if appErr.Is(err, appErr.SubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return submission, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return submission, nil
	}
	return r.getByIDFromDB(ctx, tx, submissionID)
}

// UpdateResult records the final verdict for a submission. The cached copy
// is invalidated so the next read sees the judged state.
func (r *MySQLSubmissionRepository) UpdateResult(ctx context.Context, res *model.JudgeResult) error {
	if res == nil || res.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	update := func(ctx context.Context) error {
		query := `
			UPDATE submissions
			SET verdict = ?, passed = ?, total = ?, time_ms = ?, memory_kb = ?, judged_at = ?
			WHERE submission_id = ?
		`
		result, err := r.db.Exec(
			ctx,
			query,
			string(res.Verdict),
			res.Passed,
			res.Total,
			res.TimeMS,
			res.MemoryKB,
			res.JudgedTime(),
			res.SubmissionID,
		)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "update submission result failed")
		}
		affected, err := result.RowsAffected()
		if err == nil && affected == 0 {
			return appErr.New(appErr.SubmissionNotFound)
		}
		return nil
	}
	if r.cache == nil {
		return update(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(res.SubmissionID), update)
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission := &Submission{}
	var matchID *string
	if err := row.Scan(
		&submission.SubmissionID,
		&matchID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.LanguageID,
		&submission.SourceCode,
		&submission.Scene,
		&submission.Verdict,
		&submission.Passed,
		&submission.Total,
		&submission.TimeMS,
		&submission.MemoryKB,
		&submission.CodeLength,
		&submission.CreatedAt,
		&submission.JudgedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query submission failed")
	}
	if matchID != nil {
		submission.MatchID = *matchID
	}
	return submission, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	submission := &Submission{}
	if err := json.Unmarshal([]byte(data), submission); err != nil {
		return nil, err
	}
	return submission, nil
}
