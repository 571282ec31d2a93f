package handler

import (
	"context"
	"net/http"

	hkService "anoa.com/lostfound/internal/modules/housekeeping/service"
	"anoa.com/lostfound/pkg/response"
	"github.com/gin-gonic/gin"
)

// JobRunner runs registered background jobs on demand.
type JobRunner interface {
	RunByName(ctx context.Context, name string) error
	JobNames() []string
}

type HousekeepingHandler struct {
	service hkService.HousekeepingService
	jobs    JobRunner
}

func NewHousekeepingHandler(service hkService.HousekeepingService, jobs JobRunner) *HousekeepingHandler {
	return &HousekeepingHandler{service: service, jobs: jobs}
}

func (h *HousekeepingHandler) GetStats(c *gin.Context) {
	stats, err := h.service.ItemStats(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HousekeepingHandler) GetWeeklySummary(c *gin.Context) {
	summary, err := h.service.WeeklySummary(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *HousekeepingHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.jobs.JobNames()})
}

func (h *HousekeepingHandler) RunJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.RunByName(c.Request.Context(), name); err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job " + name + " completed"})
}
