package controller

import (
	"strings"

	"contestjudge/internal/contest/service"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ContestController handles contest HTTP endpoints.
type ContestController struct {
	contestService *service.ContestService
}

// NewContestController creates a new ContestController.
func NewContestController(contestService *service.ContestService) *ContestController {
	return &ContestController{contestService: contestService}
}

// Get returns a contest with sample test cases only.
func (h *ContestController) Get(c *gin.Context) {
	contestID := strings.TrimSpace(c.Param("contestId"))
	if contestID == "" {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	view, err := h.contestService.GetPublicContest(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}
