package main

import (
	"context"
	"net/http"
	"time"

	commonmw "contestjudge/internal/common/http/middleware"
	contestcontroller "contestjudge/internal/contest/controller"
	contestservice "contestjudge/internal/contest/service"
	leaderboardcontroller "contestjudge/internal/leaderboard/controller"
	leaderboardservice "contestjudge/internal/leaderboard/service"
	submitcontroller "contestjudge/internal/submit/controller"
	submitservice "contestjudge/internal/submit/service"
	"contestjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type healthCheck struct {
	name string
	ping func(ctx context.Context) error
}

type routerDeps struct {
	CORS        commonmw.CORSConfig
	Contests    *contestservice.ContestService
	Submit      *submitservice.SubmitService
	Languages   submitcontroller.LanguageCatalog
	Leaderboard *leaderboardservice.Service
	Limiter     *commonmw.RateLimiter
	SubmitLimit commonmw.RateLimitPolicy
	Checks      []healthCheck
}

func buildRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(deps.CORS))
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", healthHandler(deps.Checks))

	api := router.Group("/api")
	contestController := contestcontroller.NewContestController(deps.Contests)
	submitController := submitcontroller.NewSubmitController(deps.Submit, deps.Languages)
	leaderboardController := leaderboardcontroller.NewLeaderboardController(deps.Leaderboard)

	api.GET("/contests/:contestId", contestController.Get)
	api.GET("/contests/:contestId/leaderboard", leaderboardController.Get)
	api.POST("/submissions", commonmw.RateLimitMiddleware(deps.Limiter, "submissions", deps.SubmitLimit), submitController.Create)
	api.GET("/submissions/:submissionId", submitController.Get)
	api.GET("/languages", submitController.Languages)
	return router
}

func healthHandler(checks []healthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		status := make(map[string]string, len(checks))
		healthy := true
		for _, check := range checks {
			if err := check.ping(ctx); err != nil {
				healthy = false
				status[check.name] = "down"
				logger.Warn(ctx, "health check failed", zap.String("dependency", check.name), zap.Error(err))
				continue
			}
			status[check.name] = "up"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"healthy": healthy, "checks": status})
	}
}
