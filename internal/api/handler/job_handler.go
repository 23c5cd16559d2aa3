package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/verse-journal/internal/api/dto"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/gin-gonic/gin"
)

// JobHandler exposes job snapshots for clients that missed realtime events
type JobHandler struct {
	logger *slog.Logger
	jobs   Jobs
}

func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, jobs: deps.Jobs}
}

// GetJob handles GET /api/v1/jobs/:jobId
func (h *JobHandler) GetJob(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	id, err := jobid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "jobId is not a valid job id"})
		return
	}

	handle, err := h.jobs.Lookup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeError(c, h.logger, domain.NotFound("job not found"))
			return
		}
		writeError(c, h.logger, domain.Infrastructure(err, "failed to load job"))
		return
	}

	// Another user's job is reported as missing
	if handle.RequestedBy != uid {
		writeError(c, h.logger, domain.NotFound("job not found"))
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(handle))
}
