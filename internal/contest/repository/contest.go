// Package repository loads contests, problems and test cases from MySQL.
// Contest data is immutable while judging, so reads go through a
// cache-aside layer with null caching for unknown ids.
package repository

import (
	"context"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/contest/model"
	appErr "contestjudge/pkg/errors"
)

const (
	defaultContestTTL      = 10 * time.Minute
	defaultContestEmptyTTL = 30 * time.Second
	contestKeyPrefix       = "contest:"
	problemKeyPrefix       = "problem:"
)

// ContestRepository defines contest catalog persistence.
type ContestRepository interface {
	GetContest(ctx context.Context, contestID string) (model.Contest, error)
	GetProblem(ctx context.Context, problemID string) (model.Problem, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, contest *model.Contest) error
}

// MySQLContestRepository implements ContestRepository with MySQL and a cache.
type MySQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewContestRepository creates a repository with default cache TTLs.
func NewContestRepository(database db.Database, cacheClient cache.Cache) *MySQLContestRepository {
	return NewContestRepositoryWithTTL(database, cacheClient, defaultContestTTL, defaultContestEmptyTTL)
}

// NewContestRepositoryWithTTL creates a repository with explicit cache TTLs.
func NewContestRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLContestRepository {
	if ttl <= 0 {
		ttl = defaultContestTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultContestEmptyTTL
	}
	return &MySQLContestRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// GetContest loads a contest with its problems and every test case.
func (r *MySQLContestRepository) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	if contestID == "" {
		return model.Contest{}, appErr.ValidationError("contestId", "required")
	}
	contest, err := cache.GetWithCached(
		ctx,
		r.cache,
		contestKeyPrefix+contestID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(c *model.Contest) bool { return c == nil },
		cache.JSONMarshal[*model.Contest],
		cache.JSONUnmarshal[*model.Contest],
		func(ctx context.Context) (*model.Contest, error) {
			return r.loadContest(ctx, contestID)
		},
	)
	if err != nil {
		return model.Contest{}, err
	}
	if contest == nil {
		return model.Contest{}, appErr.New(appErr.ContestNotFound)
	}
	return *contest, nil
}

// GetProblem loads one problem with every test case in judging order.
func (r *MySQLContestRepository) GetProblem(ctx context.Context, problemID string) (model.Problem, error) {
	if problemID == "" {
		return model.Problem{}, appErr.ValidationError("problemId", "required")
	}
	problem, err := cache.GetWithCached(
		ctx,
		r.cache,
		problemKeyPrefix+problemID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(p *model.Problem) bool { return p == nil },
		cache.JSONMarshal[*model.Problem],
		cache.JSONUnmarshal[*model.Problem],
		func(ctx context.Context) (*model.Problem, error) {
			return r.loadProblem(ctx, problemID)
		},
	)
	if err != nil {
		return model.Problem{}, err
	}
	if problem == nil {
		return model.Problem{}, appErr.New(appErr.ProblemNotFound)
	}
	return *problem, nil
}

// Count returns the number of contests.
func (r *MySQLContestRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM contests").Scan(&n); err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "count contests failed")
	}
	return n, nil
}

// Create inserts a contest with its problems and test cases in one transaction.
// Every id must already be assigned.
func (r *MySQLContestRepository) Create(ctx context.Context, contest *model.Contest) error {
	if contest == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("contest is nil")
	}
	if contest.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO contests (id, name, description, start_time, end_time) VALUES (?, ?, ?, ?, ?)",
			contest.ID, contest.Name, contest.Description, contest.StartTime.UTC(), contest.EndTime.UTC(),
		); err != nil {
			return err
		}
		for _, p := range contest.Problems {
			if _, err := tx.Exec(ctx, `
				INSERT INTO problems
				(id, contest_id, title, description, difficulty, time_limit_ms, memory_limit_mb, points, ordinal)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, contest.ID, p.Title, p.Description, string(p.Difficulty), p.TimeLimitMs, p.MemoryMB, p.Points, p.Ordinal,
			); err != nil {
				return err
			}
			for _, tc := range p.TestCases {
				if _, err := tx.Exec(ctx,
					"INSERT INTO test_cases (id, problem_id, input, expected_output, is_sample, ordinal) VALUES (?, ?, ?, ?, ?, ?)",
					tc.ID, p.ID, tc.Input, tc.ExpectedOutput, tc.IsSample, tc.Ordinal,
				); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.TransactionFailed, "create contest failed")
	}
	return nil
}

func (r *MySQLContestRepository) loadContest(ctx context.Context, contestID string) (*model.Contest, error) {
	var contest model.Contest
	row := r.db.QueryRow(ctx,
		"SELECT id, name, description, start_time, end_time FROM contests WHERE id = ? LIMIT 1", contestID)
	if err := row.Scan(&contest.ID, &contest.Name, &contest.Description, &contest.StartTime, &contest.EndTime); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get contest failed")
	}

	problems, err := r.queryProblems(ctx, "contest_id = ?", contestID)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		ids := make([]string, 0, len(problems))
		for _, p := range problems {
			ids = append(ids, p.ID)
		}
		tests, err := r.queryTestCases(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range problems {
			problems[i].TestCases = tests[problems[i].ID]
		}
	}
	contest.Problems = problems
	return &contest, nil
}

func (r *MySQLContestRepository) loadProblem(ctx context.Context, problemID string) (*model.Problem, error) {
	problems, err := r.queryProblems(ctx, "id = ?", problemID)
	if err != nil {
		return nil, err
	}
	if len(problems) == 0 {
		return nil, nil
	}
	problem := problems[0]
	tests, err := r.queryTestCases(ctx, []string{problem.ID})
	if err != nil {
		return nil, err
	}
	problem.TestCases = tests[problem.ID]
	return &problem, nil
}

func (r *MySQLContestRepository) queryProblems(ctx context.Context, where string, args ...interface{}) ([]model.Problem, error) {
	query := `
		SELECT id, contest_id, title, description, difficulty, time_limit_ms, memory_limit_mb, points, ordinal
		FROM problems
		WHERE ` + where + `
		ORDER BY ordinal ASC, id ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query problems failed")
	}
	defer rows.Close()

	var problems []model.Problem
	for rows.Next() {
		var (
			p          model.Problem
			difficulty string
		)
		if err := rows.Scan(&p.ID, &p.ContestID, &p.Title, &p.Description, &difficulty,
			&p.TimeLimitMs, &p.MemoryMB, &p.Points, &p.Ordinal); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan problem failed")
		}
		p.Difficulty = model.Difficulty(difficulty)
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate problems failed")
	}
	return problems, nil
}

func (r *MySQLContestRepository) queryTestCases(ctx context.Context, problemIDs []string) (map[string][]model.TestCase, error) {
	args := make([]interface{}, 0, len(problemIDs))
	for _, id := range problemIDs {
		args = append(args, id)
	}
	query := `
		SELECT id, problem_id, input, expected_output, is_sample, ordinal
		FROM test_cases
		WHERE problem_id IN (` + db.Placeholders(len(problemIDs)) + `)
		ORDER BY problem_id ASC, ordinal ASC, id ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query test cases failed")
	}
	defer rows.Close()

	out := make(map[string][]model.TestCase, len(problemIDs))
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.IsSample, &tc.Ordinal); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		out[tc.ProblemID] = append(out[tc.ProblemID], tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return out, nil
}
