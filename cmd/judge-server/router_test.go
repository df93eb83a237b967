package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"contestjudge/internal/common/cache"
	commonmw "contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	contestmodel "contestjudge/internal/contest/model"
	contestservice "contestjudge/internal/contest/service"
	judgemodel "contestjudge/internal/judge/model"
	judgerepo "contestjudge/internal/judge/repository"
	"contestjudge/internal/judge/sandbox/language"
	leaderboardservice "contestjudge/internal/leaderboard/service"
	submitmodel "contestjudge/internal/submit/model"
	submitservice "contestjudge/internal/submit/service"
	appErr "contestjudge/pkg/errors"
)

type stubContestRepo struct {
	contest contestmodel.Contest
}

func (r stubContestRepo) GetContest(ctx context.Context, id string) (contestmodel.Contest, error) {
	if id != r.contest.ID {
		return contestmodel.Contest{}, appErr.New(appErr.ContestNotFound)
	}
	return r.contest, nil
}

func (r stubContestRepo) GetProblem(ctx context.Context, id string) (contestmodel.Problem, error) {
	if p, ok := r.contest.Problem(id); ok {
		return p, nil
	}
	return contestmodel.Problem{}, appErr.New(appErr.ProblemNotFound)
}

func (r stubContestRepo) Count(ctx context.Context) (int, error) { return 1, nil }

func (r stubContestRepo) Create(ctx context.Context, c *contestmodel.Contest) error { return nil }

type stubSubmissions struct {
	mu   sync.Mutex
	subs map[string]submitmodel.Submission
}

func (s *stubSubmissions) Create(ctx context.Context, sub *submitmodel.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = *sub
	return nil
}

func (s *stubSubmissions) Get(ctx context.Context, id string) (submitmodel.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return submitmodel.Submission{}, appErr.New(appErr.SubmissionNotFound)
	}
	return sub, nil
}

func (s *stubSubmissions) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, nil
}

func (s *stubSubmissions) ResumeRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, nil
}

func (s *stubSubmissions) CommitTerminal(ctx context.Context, id string, r judgemodel.Result, at time.Time) (bool, error) {
	return false, nil
}

func (s *stubSubmissions) ListStale(ctx context.Context, before time.Time, limit int) ([]submitmodel.Submission, error) {
	return nil, nil
}

func (s *stubSubmissions) ListTerminalByContest(ctx context.Context, contestID string) ([]submitmodel.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []submitmodel.Submission
	for _, sub := range s.subs {
		if sub.ContestID == contestID && sub.Status.IsTerminal() {
			out = append(out, sub)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, checks ...healthCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })
	queue := mq.NewMemoryQueue(mq.MemoryConfig{Buffer: 8})
	t.Cleanup(func() { _ = queue.Close() })

	now := time.Now()
	repo := stubContestRepo{contest: contestmodel.Contest{
		ID:        "c1",
		Name:      "Sprint",
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		Problems: []contestmodel.Problem{{
			ID:        "p1",
			ContestID: "c1",
			Title:     "Echo",
			Points:    100,
			TestCases: []contestmodel.TestCase{
				{ID: "t1", Input: "1", ExpectedOutput: "1", IsSample: true},
				{ID: "t2", Input: "2", ExpectedOutput: "2"},
			},
		}},
	}}
	contests, err := contestservice.NewContestService(repo, time.Second)
	if err != nil {
		t.Fatalf("contest service: %v", err)
	}
	subs := &stubSubmissions{subs: make(map[string]submitmodel.Submission)}
	submitSvc, err := submitservice.NewSubmitService(submitservice.Config{
		Contests:       contests,
		SubmissionRepo: subs,
		StatusRepo:     judgerepo.NewStatusRepository(redisCache, time.Hour),
		Tasks:          judgerepo.NewTaskPublisher(queue, "judge.tasks", 3),
		Cache:          redisCache,
	})
	if err != nil {
		t.Fatalf("submit service: %v", err)
	}
	board, err := leaderboardservice.NewService(leaderboardservice.Config{
		Contests:    contests,
		Submissions: subs,
		Cache:       redisCache,
	})
	if err != nil {
		t.Fatalf("leaderboard service: %v", err)
	}
	return buildRouter(routerDeps{
		CORS:        commonmw.DefaultCORSConfig(),
		Contests:    contests,
		Submit:      submitSvc,
		Languages:   language.NewRegistry(nil, language.Profiles{}, nil),
		Leaderboard: board,
		Checks:      checks,
	})
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestContestEndpointHidesHiddenTests(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/contests/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte(`"t2"`)) {
		t.Fatalf("hidden test case leaked: %s", w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/contests/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestSubmitAndPollEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/submissions", submitmodel.CreateRequest{
		Username:  "alice",
		ContestID: "c1",
		ProblemID: "p1",
		Language:  "PYTHON",
		Code:      "print(input())",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created submitmodel.CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SubmissionID == "" || created.Message != submitservice.QueuedMessage {
		t.Fatalf("unexpected response: %+v", created)
	}

	w = do(router, http.MethodGet, "/api/submissions/"+created.SubmissionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap judgemodel.StatusSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != judgemodel.StatusPending {
		t.Fatalf("expected PENDING, got %s", snap.Status)
	}

	w = do(router, http.MethodPost, "/api/submissions", submitmodel.CreateRequest{
		Username: "alice", ContestID: "c1", ProblemID: "p1", Language: "RUST", Code: "fn main() {}",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported language, got %d", w.Code)
	}

	w = do(router, http.MethodGet, "/api/submissions/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLeaderboardAndLanguagesEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/contests/c1/leaderboard", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("expected empty leaderboard, got %d %s", w.Code, w.Body.String())
	}
	w = do(router, http.MethodGet, "/api/contests/nope/leaderboard", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = do(router, http.MethodGet, "/api/languages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var langs []struct {
		Language string `json:"language"`
		Scaffold string `json:"scaffold"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &langs); err != nil {
		t.Fatalf("decode languages: %v", err)
	}
	if len(langs) != 3 || langs[0].Language != "JAVA" || langs[1].Language != "PYTHON" || langs[2].Language != "CPP" {
		t.Fatalf("unexpected languages: %+v", langs)
	}
	for _, l := range langs {
		if l.Scaffold == "" {
			t.Fatalf("expected scaffold for %s", l.Language)
		}
	}
}

func TestHealthz(t *testing.T) {
	ok := healthCheck{name: "redis", ping: func(ctx context.Context) error { return nil }}
	down := healthCheck{name: "mysql", ping: func(ctx context.Context) error { return errors.New("refused") }}

	if w := do(newTestRouter(t, ok), http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(newTestRouter(t, ok, down), http.MethodGet, "/healthz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
