package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/utils"
)

// StatsController provides marketplace statistics such as counts and page views.
type StatsController struct {
	site     SiteStats
	listings ListingStats
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(site SiteStats, listings ListingStats) *StatsController {
	return &StatsController{site: site, listings: listings}
}

// GetStats returns aggregate statistics. Failed counts read as 0.
func (s *StatsController) GetStats(ctx *gin.Context) {
	utils.Success(ctx, s.site.Stats(ctx.Request.Context()))
}

// GetListingStats returns the all-time page views of one listing.
func (s *StatsController) GetListingStats(ctx *gin.Context) {
	st, err := s.listings.Stats(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, st)
}
