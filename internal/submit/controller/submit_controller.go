package controller

import (
	"strings"

	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/language"
	"contestjudge/internal/submit/model"
	"contestjudge/internal/submit/service"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LanguageCatalog lists the registered language adapters.
type LanguageCatalog interface {
	All() []language.Adapter
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
	languages     LanguageCatalog
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService, languages LanguageCatalog) *SubmitController {
	return &SubmitController{submitService: submitService, languages: languages}
}

// Create handles submission requests.
func (h *SubmitController) Create(c *gin.Context) {
	var req model.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submissionID, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		Code:           req.Code,
		Language:       req.Language,
		Username:       req.Username,
		ProblemID:      req.ProblemID,
		ContestID:      req.ContestID,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, model.CreateResponse{
		SubmissionID: submissionID,
		Message:      service.QueuedMessage,
	})
}

// Get returns the current view of one submission.
func (h *SubmitController) Get(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("submissionId"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	snap, err := h.submitService.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// Languages lists supported languages with their starter code.
func (h *SubmitController) Languages(c *gin.Context) {
	items := make([]LanguageResponse, 0, len(judgemodel.SupportedLanguages))
	if h.languages != nil {
		for _, a := range h.languages.All() {
			items = append(items, LanguageResponse{
				Language:   a.Language(),
				SourceFile: a.SourceFile(),
				Compiled:   a.Compiled(),
				Scaffold:   a.Scaffold(),
			})
		}
	}
	response.Success(c, items)
}

// LanguageResponse describes one supported language.
type LanguageResponse struct {
	Language   judgemodel.Language `json:"language"`
	SourceFile string              `json:"sourceFile"`
	Compiled   bool                `json:"compiled"`
	Scaffold   string              `json:"scaffold"`
}
