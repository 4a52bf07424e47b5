package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
	"github.com/1509Chamma/ukenergydashboard/internal/query"
)

var validate = validator.New()

// rangeParams holds the common filter parameters of the data endpoints.
type rangeParams struct {
	Family  models.Family
	Regions []int
	Start   time.Time `validate:"required"`
	End     time.Time `validate:"required,gtefield=Start"`
}

func (p *rangeParams) bind(c *gin.Context) error {
	family, ok := models.ParseFamily(c.Param("family"))
	if !ok {
		return errors.New("unknown family; expected demand, carbon or weather")
	}
	p.Family = family

	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}

	start, err := parseTime(startStr, false)
	if err != nil {
		return err
	}
	end, err := parseTime(endStr, true)
	if err != nil {
		return err
	}
	p.Start = start
	p.End = end

	if regionsStr := c.Query("regions"); regionsStr != "" {
		for _, part := range strings.Split(regionsStr, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return errors.New("regions must be a comma-separated list of region ids")
			}
			p.Regions = append(p.Regions, id)
		}
	}

	return validate.Struct(p)
}

// parseTime accepts RFC3339 or a bare date. A bare end date extends to the
// end of that day so an inclusive day range behaves as users expect.
func parseTime(s string, isEnd bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse("2006-01-02", s); err == nil {
		if isEnd {
			return day.Add(24*time.Hour - time.Second).UTC(), nil
		}
		return day.UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or YYYY-MM-DD")
}

func (s *Server) handleQuery(c *gin.Context) {
	var params rangeParams
	if err := params.bind(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	key := query.CacheKey("table", params.Family, params.Regions, params.Start, params.End)
	result, err := s.cache.GetOrCompute(key, func() (any, error) {
		return s.queries.Query(ctx, params.Family, params.Regions, params.Start, params.End)
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSummary(c *gin.Context) {
	var params rangeParams
	if err := params.bind(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	key := query.CacheKey("summary", params.Family, params.Regions, params.Start, params.End)
	result, err := s.cache.GetOrCompute(key, func() (any, error) {
		return s.queries.Summary(ctx, params.Family, params.Regions, params.Start, params.End)
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"regions":   models.Regions(),
		"countries": models.Countries(),
	})
}

func (s *Server) handleBounds(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	min, max, ok, err := s.queries.Bounds(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": true, "min": min, "max": max})
}

func (s *Server) handleRefreshStatus(c *gin.Context) {
	last := s.refresh.LastCycle()
	if last == nil {
		c.JSON(http.StatusOK, gin.H{"completed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": true, "cycle": last})
}

// renderError maps caller-contract violations to 400 and everything else,
// store outages included, to an explicit 500 rather than a silent empty
// result.
func (s *Server) renderError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
