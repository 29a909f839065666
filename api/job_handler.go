package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

func (a *API) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, fmt.Errorf("%w: invalid request body: %w", tempo.ErrValidation, err))
		return
	}

	p := job.CreateParams{
		Type:       req.Type,
		Payload:    req.Payload,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
	}
	if req.ScheduledAt != nil {
		p.ScheduledAt = *req.ScheduledAt
	}

	j, err := a.eng.Manager().Create(c.Request.Context(), p)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (a *API) getJob(c *gin.Context) {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		a.fail(c, tempo.ErrJobNotFound)
		return
	}

	j, err := a.eng.Manager().Get(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) listJobs(c *gin.Context) {
	var opts job.ListOpts

	if s := c.Query("status"); s != "" {
		status, err := job.ParseStatus(s)
		if err != nil {
			a.fail(c, err)
			return
		}
		opts.Status = status
	}

	var err error
	if opts.Limit, err = queryInt(c, "limit"); err != nil {
		a.fail(c, err)
		return
	}
	if opts.Offset, err = queryInt(c, "offset"); err != nil {
		a.fail(c, err)
		return
	}

	jobs, err := a.eng.Manager().List(c.Request.Context(), opts)
	if err != nil {
		a.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) cancelJob(c *gin.Context) {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		a.fail(c, tempo.ErrJobNotFound)
		return
	}

	j, err := a.eng.Manager().Cancel(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) listHandlers(c *gin.Context) {
	c.JSON(http.StatusOK, HandlersResponse{Types: a.eng.Registry().Types()})
}

func (a *API) healthz(c *gin.Context) {
	if err := a.eng.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// queryInt parses a non-negative integer query parameter. Absent means 0.
func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, tempo.Validationf("%s must be a non-negative integer", name)
	}
	return n, nil
}
