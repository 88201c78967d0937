package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/controllers"
	"github.com/cppla/classifieds/middleware"
	"github.com/cppla/classifieds/utils"
)

// Deps carries everything the router wires together.
type Deps struct {
	Tokens middleware.TokenVerifier
	Users  middleware.UserLookup
	Views  middleware.ViewRecorder

	Auth       *controllers.AuthController
	Profiles   *controllers.ProfileController
	Listings   *controllers.ListingController
	Categories *controllers.CategoryController
	Reports    *controllers.ReportController
	Admin      *controllers.AdminController
	Stats      *controllers.StatsController
	Config     *controllers.ConfigController
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, d Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if driver := strings.ToLower(cfg.StorageDriver); driver == "" || driver == "local" {
		r.Static(cfg.StoragePublicURL, cfg.StorageLocalDir)
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authed := middleware.AuthRequired(d.Tokens)
	account := middleware.LoadUser(d.Users)
	activated := middleware.RequireActivated(d.Users)
	staff := middleware.RequireStaff(d.Users)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	authGroup.POST("/signup", d.Auth.Signup)
	authGroup.GET("/verify", d.Auth.Verify)
	authGroup.POST("/resend-verification", authed, account, d.Auth.ResendVerification)
	authGroup.POST("/token", d.Auth.Login)
	authGroup.POST("/token/refresh", d.Auth.Refresh)
	authGroup.POST("/logout", authed, d.Auth.Logout)
	authGroup.POST("/password-change", authed, account, d.Auth.ChangePassword)
	authGroup.POST("/password-forgot", d.Auth.ForgotPassword)
	authGroup.POST("/password-reset", d.Auth.ResetPassword)
	authGroup.DELETE("/account", authed, account, d.Auth.DeleteAccount)
	authGroup.GET("/captcha", d.Auth.Captcha)
	authGroup.GET("/oauth/:provider/login", d.Auth.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", d.Auth.OAuthCallback)

	profile := api.Group("/profile", authed, account)
	profile.GET("/me", d.Profiles.Me)
	profile.PATCH("/me", d.Profiles.UpdateMe)
	profile.POST("/avatar", d.Profiles.UploadAvatar)

	api.GET("/users/me/listings", authed, account, d.Listings.Mine)
	api.GET("/users/:username", d.Profiles.PublicProfile)

	categories := api.Group("/categories")
	categories.GET("", d.Categories.Tree)
	categories.GET("/:slug/subcategories", d.Categories.Subcategories)
	categories.POST("", authed, staff, d.Categories.CreateCategory)
	categories.POST("/:slug/subcategories", authed, staff, d.Categories.CreateSubcategory)

	listings := api.Group("/listings")
	listings.GET("", d.Listings.List)
	listings.GET("/:id", middleware.PageViewRecorder(d.Views), d.Listings.Get)
	listings.GET("/:id/stats", d.Stats.GetListingStats)
	listings.POST("", authed, activated, d.Listings.Create)
	listings.PATCH("/:id", authed, activated, d.Listings.Update)
	listings.DELETE("/:id", authed, account, d.Listings.Delete)
	listings.PUT("/:id/images", authed, activated, d.Listings.ReplaceImages)

	reports := api.Group("/reports", authed)
	reports.POST("", activated, d.Reports.Create)
	reports.GET("", staff, d.Reports.ListOpen)
	reports.GET("/:id", account, d.Reports.Get)
	reports.POST("/:id/close", staff, d.Reports.Close)
	reports.POST("/:id/comments", account, d.Reports.AddComment)
	reports.GET("/:id/comments", account, d.Reports.Comments)

	api.GET("/admin/stats", d.Stats.GetStats)
	admin := api.Group("/admin", authed, staff)
	admin.GET("/daily-report", d.Admin.DailyReport)
	admin.POST("/users/:id/vip", d.Admin.GrantVIP)
	admin.DELETE("/users/:id/vip", d.Admin.RevokeVIP)

	api.GET("/config/marketplace", d.Config.GetMarketplace)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
