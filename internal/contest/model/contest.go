// Package model defines contests, problems and test cases.
package model

import "time"

// Difficulty grades a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

const (
	DefaultTimeLimitMs   = 2000
	DefaultMemoryLimitMB = 256
)

// Contest is a time-boxed set of problems.
type Contest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Problems    []Problem `json:"problems"`
}

// Open reports whether now falls inside the contest window.
func (c Contest) Open(now time.Time) bool {
	return !now.Before(c.StartTime) && now.Before(c.EndTime)
}

// Problem returns the problem with id if it belongs to the contest.
func (c Contest) Problem(id string) (Problem, bool) {
	for _, p := range c.Problems {
		if p.ID == id {
			return p, true
		}
	}
	return Problem{}, false
}

// Problem is one task of a contest. TestCases are in judging order.
type Problem struct {
	ID          string     `json:"id"`
	ContestID   string     `json:"contestId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	TimeLimitMs int        `json:"timeLimit"`
	MemoryMB    int        `json:"memoryLimit"`
	Points      int        `json:"points"`
	Ordinal     int        `json:"ordinal"`
	TestCases   []TestCase `json:"testCases,omitempty"`
}

// TestCase is one input and expected output of a problem.
type TestCase struct {
	ID             string `json:"id"`
	ProblemID      string `json:"problemId"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsSample       bool   `json:"isSample"`
	Ordinal        int    `json:"ordinal"`
}

// ContestView is the public contest body. Only sample tests are included.
type ContestView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Problems    []ProblemView `json:"problems"`
}

// ProblemView is a problem as shown to contestants.
type ProblemView struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Difficulty      Difficulty     `json:"difficulty"`
	TimeLimit       int            `json:"timeLimit"`
	MemoryLimit     int            `json:"memoryLimit"`
	Points          int            `json:"points"`
	SampleTestCases []TestCaseView `json:"sampleTestCases"`
}

// TestCaseView is a sample test case.
type TestCaseView struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsSample       bool   `json:"isSample"`
}

// PublicView strips hidden test cases from c.
func (c Contest) PublicView() ContestView {
	view := ContestView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		Problems:    make([]ProblemView, 0, len(c.Problems)),
	}
	for _, p := range c.Problems {
		pv := ProblemView{
			ID:              p.ID,
			Title:           p.Title,
			Description:     p.Description,
			Difficulty:      p.Difficulty,
			TimeLimit:       p.TimeLimitMs,
			MemoryLimit:     p.MemoryMB,
			Points:          p.Points,
			SampleTestCases: make([]TestCaseView, 0),
		}
		for _, tc := range p.TestCases {
			if !tc.IsSample {
				continue
			}
			pv.SampleTestCases = append(pv.SampleTestCases, TestCaseView{
				ID:             tc.ID,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				IsSample:       true,
			})
		}
		view.Problems = append(view.Problems, pv)
	}
	return view
}
