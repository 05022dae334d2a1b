package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/mlssync/internal/entities"
)

// StatsResponse holds store totals for operators.
type StatsResponse struct {
	Listings int64 `json:"listings"`
	Active   int64 `json:"active"`
	Pending  int64 `json:"pending"`
	Sold     int64 `json:"sold"`
	Removed  int64 `json:"removed"`
	Agents   int64 `json:"agents"`
}

type StatsController struct {
	listings ListingCounter
	agents   AgentCounter
}

func NewStatsController(listings ListingCounter, agents AgentCounter) *StatsController {
	return &StatsController{listings: listings, agents: agents}
}

// GetStats handles GET /api/admin/stats.
func (s *StatsController) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := s.listings.Count(ctx)
	if err != nil {
		respondInternalError(c, err, "count listings")
		return
	}
	byStatus, err := s.listings.CountByStatus(ctx)
	if err != nil {
		respondInternalError(c, err, "count listings by status")
		return
	}
	agents, err := s.agents.Count(ctx)
	if err != nil {
		respondInternalError(c, err, "count agents")
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Listings: total,
		Active:   byStatus[entities.PropertyStatusActive],
		Pending:  byStatus[entities.PropertyStatusPending],
		Sold:     byStatus[entities.PropertyStatusSold],
		Removed:  byStatus[entities.PropertyStatusRemoved],
		Agents:   agents,
	})
}
