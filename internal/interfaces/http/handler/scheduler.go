package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopops/automator/internal/infrastructure/scheduler"
	"github.com/shopops/automator/internal/interfaces/http/dto"
)

// SchedulerHandler exposes the configured jobs and a manual trigger for
// off-schedule runs
type SchedulerHandler struct {
	BaseHandler
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// RegisterRoutes registers scheduler routes on the API group
func (h *SchedulerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	jobs := rg.Group("/scheduler")
	{
		jobs.GET("/jobs", h.ListJobs)
		jobs.POST("/jobs/:name/trigger", h.TriggerJob)
	}
}

// ListJobs reports every configured job with its schedule state
func (h *SchedulerHandler) ListJobs(c *gin.Context) {
	h.Success(c, gin.H{
		"running": h.scheduler.IsRunning(),
		"jobs":    h.scheduler.Jobs(),
	})
}

// TriggerJob fires the named job immediately. The submission runs in the
// background, so the answer is 202.
func (h *SchedulerHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.scheduler.TriggerNow(name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			h.NotFound(c, err.Error())
		case errors.Is(err, scheduler.ErrSchedulerNotRunning):
			h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState, err.Error())
		default:
			h.InternalError(c, err.Error())
		}
		return
	}
	h.Accepted(c, gin.H{"job": name, "triggered": true})
}
