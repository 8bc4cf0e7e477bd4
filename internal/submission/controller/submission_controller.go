package controller

import (
	"context"
	"strconv"
	"strings"
	"time"

	"coderank/internal/gateway/middleware"
	"coderank/internal/submission/model"
	"coderank/internal/submission/repository"
	"coderank/internal/submission/service"
	"coderank/pkg/utils/response"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
)

const defaultStatsWindow = 24 * time.Hour

// Submissions is the service surface the controller needs.
type Submissions interface {
	Submit(ctx context.Context, in service.SubmitInput) (*model.Submission, error)
	Get(ctx context.Context, id, requester string) (*model.Submission, error)
	List(ctx context.Context, owner string, page, size int) (repository.Page, error)
	CountSince(ctx context.Context, owner string, since time.Time) (int64, error)
	Languages(ctx context.Context) []service.LanguageInfo
}

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submissions Submissions
	stream      StreamConfig
	now         func() time.Time
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissions Submissions, stream StreamConfig) *SubmissionController {
	stream.setDefaults()
	return &SubmissionController{submissions: submissions, stream: stream, now: time.Now}
}

// RegisterRoutes mounts the API on r. Callers install auth on r first.
func (h *SubmissionController) RegisterRoutes(r gin.IRouter) {
	r.POST("/execute", h.Execute)
	r.GET("/submissions", h.List)
	r.GET("/submissions/stats", h.Stats)
	r.GET("/submissions/:id", h.Get)
	r.GET("/submissions/:id/stream", h.Stream)
	r.GET("/languages", h.Languages)
}

// Execute accepts a submission.
func (h *SubmissionController) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submission, err := h.submissions.Submit(c.Request.Context(), service.SubmitInput{
		OwnerID:  middleware.OwnerID(c),
		Role:     middleware.Role(c),
		Language: req.Language,
		Source:   req.Code,
		Stdin:    req.Input,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if submission.Status.Terminal() {
		response.Success(c, toView(submission, false))
		return
	}
	response.Accepted(c, toView(submission, false))
}

// Get returns one submission of the caller.
func (h *SubmissionController) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submissions.Get(c.Request.Context(), id, middleware.OwnerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toView(submission, true))
}

// List returns the caller's submissions, newest first.
func (h *SubmissionController) List(c *gin.Context) {
	page, err := queryInt(c, "page", 0)
	if err != nil {
		response.BadRequest(c, "Invalid page")
		return
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		response.BadRequest(c, "Invalid size")
		return
	}
	result, err := h.submissions.List(c.Request.Context(), middleware.OwnerID(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, toViews(result.Items), result.Total, result.Page, result.Size)
}

// Stats counts the caller's submissions since the given instant, the last 24 hours by default.
func (h *SubmissionController) Stats(c *gin.Context) {
	since := h.now().Add(-defaultStatsWindow)
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil {
			response.BadRequest(c, "Invalid since")
			return
		}
		since = parsed
	}
	count, err := h.submissions.CountSince(c.Request.Context(), middleware.OwnerID(c), since)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, StatsResponse{Since: since.UTC(), Count: count})
}

// Languages lists the languages this host can run.
func (h *SubmissionController) Languages(c *gin.Context) {
	response.Success(c, h.submissions.Languages(c.Request.Context()))
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
