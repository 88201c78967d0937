package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/utils"
)

// ConfigController serves public, config-driven marketplace settings.
type ConfigController struct {
	cfg config.AppConfig
}

func NewConfigController(cfg config.AppConfig) *ConfigController {
	return &ConfigController{cfg: cfg}
}

// GetMarketplace returns the limits a client needs to validate input up front.
func (c *ConfigController) GetMarketplace(ctx *gin.Context) {
	cfg := c.cfg
	providers := []string{}
	if cfg.GitHubClientID != "" {
		providers = append(providers, "github")
	}
	if cfg.GoogleClientID != "" {
		providers = append(providers, "google")
	}
	utils.Success(ctx, gin.H{
		"posts_limit":     cfg.PostsLimit,
		"vip_posts_limit": cfg.VIPPostsLimit,
		"listings": gin.H{
			"page_size":     cfg.ListingsPageSize,
			"max_page_size": cfg.ListingsMaxPageSize,
		},
		"images": gin.H{
			"max_per_listing": cfg.MaxImagesPerListing,
			"max_size_mb":     cfg.MaxImageSizeMB,
			"max_megapixels":  cfg.MaxImageMegapixels,
			"types":           []string{"image/jpeg", "image/png"},
		},
		"report_comment_policy": cfg.ReportCommentPolicy,
		"captcha_enabled":       cfg.RegisterCaptchaEnabled,
		"oauth_providers":       providers,
	})
}
