// Package service derives contest leaderboards from committed terminal
// submissions.
package service

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	contestmodel "contestjudge/internal/contest/model"
	judgemodel "contestjudge/internal/judge/model"
	submitmodel "contestjudge/internal/submit/model"
)

// Entry is one ranked row of a contest leaderboard.
type Entry struct {
	Rank           int        `json:"rank"`
	Username       string     `json:"username"`
	TotalScore     int        `json:"totalScore"`
	ProblemsSolved int        `json:"problemsSolved"`
	LastAcceptedAt *time.Time `json:"lastAcceptedAt,omitempty"`
}

type standing struct {
	solved        mapset.Set[string]
	firstAccepted map[string]time.Time
}

// Compute ranks every user with at least one terminal submission. A problem
// counts once, on its first ACCEPTED submission, and non-terminal
// submissions are ignored. The result is deterministic for the same input.
func Compute(problems []contestmodel.Problem, submissions []submitmodel.Submission) []Entry {
	points := make(map[string]int, len(problems))
	for _, p := range problems {
		points[p.ID] = p.Points
	}

	standings := make(map[string]*standing)
	for _, sub := range submissions {
		if !sub.Status.IsTerminal() {
			continue
		}
		st, ok := standings[sub.Username]
		if !ok {
			st = &standing{solved: mapset.NewThreadUnsafeSet[string](), firstAccepted: make(map[string]time.Time)}
			standings[sub.Username] = st
		}
		if sub.Status != judgemodel.StatusAccepted {
			continue
		}
		if _, known := points[sub.ProblemID]; !known {
			continue
		}
		st.solved.Add(sub.ProblemID)
		if first, seen := st.firstAccepted[sub.ProblemID]; !seen || sub.SubmittedAt.Before(first) {
			st.firstAccepted[sub.ProblemID] = sub.SubmittedAt
		}
	}

	entries := make([]Entry, 0, len(standings))
	for username, st := range standings {
		entry := Entry{Username: username, ProblemsSolved: st.solved.Cardinality()}
		for _, problemID := range st.solved.ToSlice() {
			entry.TotalScore += points[problemID]
			at := st.firstAccepted[problemID].UTC()
			if entry.LastAcceptedAt == nil || at.After(*entry.LastAcceptedAt) {
				entry.LastAcceptedAt = &at
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return ranksBefore(entries[i], entries[j]) })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func ranksBefore(a, b Entry) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.ProblemsSolved != b.ProblemsSolved {
		return a.ProblemsSolved > b.ProblemsSolved
	}
	switch {
	case a.LastAcceptedAt != nil && b.LastAcceptedAt == nil:
		return true
	case a.LastAcceptedAt == nil && b.LastAcceptedAt != nil:
		return false
	case a.LastAcceptedAt != nil && !a.LastAcceptedAt.Equal(*b.LastAcceptedAt):
		return a.LastAcceptedAt.Before(*b.LastAcceptedAt)
	}
	return a.Username < b.Username
}
