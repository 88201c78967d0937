package main

import (
	"context"
	"time"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/controllers"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/queue"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/routes"
	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/storage"
	"github.com/cppla/classifieds/tasks"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(models.All()...)
	rc := utils.GetRedis()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		utils.Sugar.Fatalf("storage init failed: %v", err)
	}

	// Mail goes through RabbitMQ when configured, otherwise it is sent inline
	smtp := utils.NewSMTPMailer(cfg)
	var mailer queue.Dispatcher = queue.NewInline(smtp, utils.Logger)
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbit(cfg.AMQPURL, cfg.MailQueue, utils.Logger)
		if err != nil {
			utils.Sugar.Fatalf("mail queue init failed: %v", err)
		}
		go func() {
			if err := rabbit.Consume(ctx, smtp); err != nil {
				utils.Sugar.Errorf("mail consumer stopped: %v", err)
			}
		}()
		mailer = rabbit
	}

	denylistTTL := time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour
	tm, err := tokens.NewManager(tokens.ConfigFrom(cfg), tokens.NewCachedDenylist(repository.NewTokenDenylist(db), rc, denylistTTL))
	if err != nil {
		utils.Sugar.Fatalf("token manager init failed: %v", err)
	}

	users := repository.NewUserRepository(db)
	listings := repository.NewListingRepository(db)
	categories := repository.NewCategoryRepository(db)
	reports := repository.NewReportRepository(db)
	views := repository.NewPageViewRepository(db)
	orphans := repository.NewOrphanRepository(db)

	authSvc := services.NewAuthService(users, tm, mailer, services.RedisGuard(), cfg)
	oauthSvc := services.NewOAuthService(users, tm, cfg)
	profileSvc := services.NewProfileService(users, store, orphans, authSvc, cfg)
	listingSvc := services.NewListingService(listings, categories, users, views, store, orphans, cfg)
	categorySvc := services.NewCategoryService(categories)
	reportSvc := services.NewReportService(reports, users, cfg)
	adminSvc := services.NewAdminService(users, listings, views, mailer, cfg)

	r := routes.SetupRouter(cfg, routes.Deps{
		Tokens:     tm,
		Users:      users,
		Views:      views,
		Auth:       controllers.NewAuthController(authSvc, oauthSvc),
		Profiles:   controllers.NewProfileController(profileSvc),
		Listings:   controllers.NewListingController(listingSvc),
		Categories: controllers.NewCategoryController(categorySvc),
		Reports:    controllers.NewReportController(reportSvc),
		Admin:      controllers.NewAdminController(adminSvc),
		Stats:      controllers.NewStatsController(adminSvc, listingSvc),
		Config:     controllers.NewConfigController(cfg),
	})

	jobs := []tasks.Job{tasks.OrphanCleaner(orphans, store)}
	if cfg.TasksEnabled {
		jobs = append(jobs,
			tasks.FeaturedSync(listings),
			tasks.VIPExpiry(users),
			tasks.DailyReport(adminSvc, cfg.DailyReportHour),
		)
	}
	runner := tasks.NewRunner(jobs...)
	runner.Start(ctx)

	srv := utils.GraceServer(":"+cfg.AppPort, r)
	srv.OnShutdown(func(context.Context) {
		cancel()
		runner.Wait()
	})
	srv.OnShutdown(func(context.Context) {
		if err := mailer.Close(); err != nil {
			utils.Sugar.Warnf("mail queue close: %v", err)
		}
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
