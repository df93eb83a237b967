package controller

import (
	"strings"

	"contestjudge/internal/leaderboard/service"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LeaderboardController handles leaderboard HTTP endpoints.
type LeaderboardController struct {
	leaderboard *service.Service
}

// NewLeaderboardController creates a new LeaderboardController.
func NewLeaderboardController(leaderboard *service.Service) *LeaderboardController {
	return &LeaderboardController{leaderboard: leaderboard}
}

// Get returns the ranked leaderboard of a contest.
func (h *LeaderboardController) Get(c *gin.Context) {
	contestID := strings.TrimSpace(c.Param("contestId"))
	if contestID == "" {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	entries, err := h.leaderboard.Snapshot(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}
