package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contestjudge/internal/contest/model"
	"contestjudge/internal/contest/repository"
	"contestjudge/pkg/utils/logger"
)

// Seeder inserts a demo contest into an empty database.
type Seeder struct {
	repo  repository.ContestRepository
	now   func() time.Time
	newID func() string
}

// NewSeeder creates a seeder.
func NewSeeder(repo repository.ContestRepository) *Seeder {
	return &Seeder{repo: repo, now: time.Now, newID: uuid.NewString}
}

// Seed creates the demo contest when no contest exists and returns its id.
// It returns "" when the database already holds contests.
func (s *Seeder) Seed(ctx context.Context) (string, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return "", err
	}
	if n > 0 {
		logger.Info(ctx, "contests already present, skip seeding", zap.Int("contests", n))
		return "", nil
	}

	contest := s.demoContest()
	if err := s.repo.Create(ctx, &contest); err != nil {
		return "", fmt.Errorf("seed demo contest: %w", err)
	}
	logger.Info(ctx, "seeded demo contest",
		zap.String("contest_id", contest.ID),
		zap.String("name", contest.Name),
		zap.Int("problems", len(contest.Problems)),
	)
	return contest.ID, nil
}

type seedCase struct {
	input, output string
	sample        bool
}

func (s *Seeder) demoContest() model.Contest {
	now := s.now().UTC().Truncate(time.Second)
	contest := model.Contest{
		ID:          s.newID(),
		Name:        "Spring Code Sprint 2025",
		Description: "Welcome to the Spring Code Sprint! Solve algorithmic problems and climb the leaderboard.",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(3 * time.Hour),
	}
	contest.Problems = []model.Problem{
		s.problem(contest.ID, 1, "Two Sum", twoSumText, model.DifficultyEasy, 100, []seedCase{
			{"2 7 11 15\n9", "0 1", true},
			{"3 2 4\n6", "1 2", true},
			{"1 5 3 7 9\n12", "2 4", false},
			{"10 20 30 40\n50", "1 2", false},
		}),
		s.problem(contest.ID, 2, "Reverse String", reverseStringText, model.DifficultyEasy, 100, []seedCase{
			{"hello", "olleh", true},
			{"world", "dlrow", true},
			{"racecar", "racecar", false},
			{"programming", "gnimmargorp", false},
			{"a", "a", false},
		}),
		s.problem(contest.ID, 3, "Valid Parentheses", validParenthesesText, model.DifficultyMedium, 200, []seedCase{
			{"()", "true", true},
			{"()[]{}", "true", true},
			{"(]", "false", false},
			{"([)]", "false", false},
			{"{[]}", "true", false},
			{"((()))", "true", false},
		}),
	}
	return contest
}

func (s *Seeder) problem(contestID string, ordinal int, title, text string, difficulty model.Difficulty, points int, cases []seedCase) model.Problem {
	p := model.Problem{
		ID:          s.newID(),
		ContestID:   contestID,
		Title:       title,
		Description: text,
		Difficulty:  difficulty,
		TimeLimitMs: model.DefaultTimeLimitMs,
		MemoryMB:    model.DefaultMemoryLimitMB,
		Points:      points,
		Ordinal:     ordinal,
	}
	for i, c := range cases {
		p.TestCases = append(p.TestCases, model.TestCase{
			ID:             s.newID(),
			ProblemID:      p.ID,
			Input:          c.input,
			ExpectedOutput: c.output,
			IsSample:       c.sample,
			Ordinal:        i + 1,
		})
	}
	return p
}

const twoSumText = `Given an array of integers and a target, return indices of two numbers that add up to target.

Input Format:
First line: space-separated integers (the array)
Second line: target integer

Output Format:
Two space-separated indices (0-indexed)

Example:
Input:
2 7 11 15
9

Output:
0 1
`

const reverseStringText = `Write a program that reverses a given string.

Input Format:
A single line containing a string (no spaces)

Output Format:
The reversed string

Example:
Input:
hello

Output:
olleh
`

const validParenthesesText = `Given a string containing '(', ')', '{', '}', '[' and ']', determine if it's valid.

Rules:
- Open brackets must be closed by same type
- Open brackets must be closed in correct order

Input Format:
A single line containing the string

Output Format:
Print 'true' if valid, 'false' otherwise

Example:
Input:
()[]{}

Output:
true
`
