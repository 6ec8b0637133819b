package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/storage"
	"codearena/pkg/errors"
)

const (
	problemCacheKeyPrefix  = "catalog:problem:"
	problemCacheTTL        = 30 * time.Minute
	problemCacheEmptyTTL   = 5 * time.Minute
	testBundleCacheTTL     = 10 * time.Minute
	testBundleCacheKeyPref = "catalog:bundle:"
)

// ValidatorMode selects how submission output is compared.
type ValidatorMode string

const (
	ValidatorExact           ValidatorMode = "exact"
	ValidatorTolerantNumeric ValidatorMode = "tolerant_numeric"
)

// Problem is the catalog metadata a judge run needs.
type Problem struct {
	ID            int64         `json:"id"`
	Slug          string        `json:"slug"`
	Title         string        `json:"title"`
	Difficulty    string        `json:"difficulty"`
	TimeLimitMS   int64         `json:"timeLimitMs"`
	MemoryLimitMB int64         `json:"memoryLimitMb"`
	ValidatorMode ValidatorMode `json:"validatorMode"`
	Tolerance     float64       `json:"tolerance"`
	BundleKey     string        `json:"bundleKey"`
}

// TestCase is one input/expected pair from a problem's bundle.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Client reads problems and their test data. Metadata lives in MySQL with a
// cache-aside layer; test cases live in object storage as zstd-compressed
// JSON bundles.
type Client struct {
	db      db.Database
	cache   cache.Cache
	storage storage.ObjectStorage
	bucket  string
}

// NewClient creates a catalog client.
func NewClient(database db.Database, cacheClient cache.Cache, store storage.ObjectStorage, bucket string) *Client {
	return &Client{
		db:      database,
		cache:   cacheClient,
		storage: store,
		bucket:  bucket,
	}
}

const problemColumns = "id, slug, title, difficulty, time_limit_ms, memory_limit_mb, validator_mode, tolerance, bundle_key"

// GetProblem loads one published problem by id.
func (c *Client) GetProblem(ctx context.Context, problemID int64) (*Problem, error) {
	key := fmt.Sprintf("%s%d", problemCacheKeyPrefix, problemID)
	problem, err := cache.GetWithCached(ctx, c.cache, key, problemCacheTTL, problemCacheEmptyTTL,
		func(p *Problem) bool { return p == nil },
		func(p *Problem) string {
			data, _ := json.Marshal(p)
			return string(data)
		},
		func(data string) (*Problem, error) {
			var p Problem
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, err
			}
			return &p, nil
		},
		func(ctx context.Context) (*Problem, error) {
			return c.fetchProblem(ctx, problemID)
		})
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, errors.Newf(errors.ProblemNotFound, "problem %d not found", problemID)
	}
	return problem, nil
}

func (c *Client) fetchProblem(ctx context.Context, problemID int64) (*Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE id = ? AND published = 1"
	row := c.db.QueryRow(ctx, query, problemID)
	problem, err := scanProblem(row)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return problem, nil
}

// SelectRandom picks count distinct published problems, optionally filtered
// by difficulty. Used by matchmaking to assemble a match's problem set.
func (c *Client) SelectRandom(ctx context.Context, difficulty string, count int) ([]*Problem, error) {
	if count <= 0 {
		return nil, errors.New(errors.InvalidParams).WithMessage("count must be positive")
	}
	query := "SELECT " + problemColumns + " FROM problems WHERE published = 1"
	args := make([]interface{}, 0, 2)
	if difficulty != "" {
		query += " AND difficulty = ?"
		args = append(args, difficulty)
	}
	query += " ORDER BY RAND() LIMIT ?"
	args = append(args, count)

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	defer rows.Close()

	problems := make([]*Problem, 0, count)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.DatabaseError)
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	if len(problems) < count {
		return nil, errors.Newf(errors.ProblemNotFound, "need %d problems, found %d", count, len(problems))
	}
	return problems, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProblem(s scanner) (*Problem, error) {
	var p Problem
	var mode string
	if err := s.Scan(&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.TimeLimitMS, &p.MemoryLimitMB, &mode, &p.Tolerance, &p.BundleKey); err != nil {
		return nil, err
	}
	p.ValidatorMode = ValidatorMode(mode)
	return &p, nil
}

// FetchTestCases downloads and decodes the problem's test bundle.
// Small bundles are cached whole; corruption is reported, never guessed at.
func (c *Client) FetchTestCases(ctx context.Context, problem *Problem) ([]TestCase, error) {
	if problem == nil || problem.BundleKey == "" {
		return nil, errors.New(errors.TestDataUnavailable)
	}

	key := testBundleCacheKeyPref + problem.BundleKey
	if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
		var cases []TestCase
		if err := json.Unmarshal([]byte(cached), &cases); err == nil {
			return cases, nil
		}
	}

	reader, err := c.storage.GetObject(ctx, c.bucket, problem.BundleKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.TestDataUnavailable).WithDetail("bundle_key", problem.BundleKey)
	}
	defer reader.Close()

	decoder, err := zstd.NewReader(reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.TestBundleCorrupted)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, errors.Wrap(err, errors.TestBundleCorrupted).WithDetail("bundle_key", problem.BundleKey)
	}

	var cases []TestCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, errors.Wrap(err, errors.TestBundleCorrupted).WithDetail("bundle_key", problem.BundleKey)
	}
	if len(cases) == 0 {
		return nil, errors.Newf(errors.TestBundleCorrupted, "bundle %s has no test cases", problem.BundleKey)
	}

	if data, err := json.Marshal(cases); err == nil {
		_ = c.cache.Set(ctx, key, string(data), cache.JitterTTL(testBundleCacheTTL))
	}
	return cases, nil
}
