package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classsync/classsync-api/api/swagger"
	"github.com/classsync/classsync-api/internal/handler"
	"github.com/classsync/classsync-api/internal/middleware"
	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/internal/repository"
	"github.com/classsync/classsync-api/internal/service"
	"github.com/classsync/classsync-api/pkg/cache"
	"github.com/classsync/classsync-api/pkg/config"
	"github.com/classsync/classsync-api/pkg/database"
	"github.com/classsync/classsync-api/pkg/logger"
	corsmiddleware "github.com/classsync/classsync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classsync/classsync-api/pkg/middleware/requestid"
)

// @title ClassSync API
// @version 1.0.0
// @description School administration API with substitute-teacher assignment
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	slotRepo := repository.NewScheduleSlotRepository(db)
	substitutionRepo := repository.NewSubstitutionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, slotRepo, validate, logr)
	scheduleService := service.NewScheduleService(slotRepo, schoolRepo, userRepo, validate, logr)
	metricsService := service.NewMetricsService()
	notificationService := service.NewNotificationService(notificationRepo, cacheRepo, cfg.Notifications, metricsService, logr)
	substitutionService := service.NewSubstitutionService(slotRepo, substitutionRepo, userRepo, notificationService, validate, cfg.Engine, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(rootCtx)
	defer notificationService.Stop()

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	substitutionHandler := handler.NewSubstitutionHandler(substitutionService, metricsService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authService))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", staff, userHandler.ListTeachers)
		teachers.GET("/:id", staff, userHandler.GetTeacher)
		teachers.POST("", adminOnly, userHandler.CreateTeacher)
		teachers.PUT("/:id", adminOnly, userHandler.UpdateTeacher)
		teachers.DELETE("/:id", adminOnly, userHandler.DeleteTeacher)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, userHandler.ListStudents)
		students.POST("", staff, userHandler.CreateStudent)
		students.PUT("/:id", staff, userHandler.UpdateStudent)
		students.DELETE("/:id", staff, userHandler.DeleteStudent)
	}

	school := protected.Group("/school")
	{
		school.GET("", staff, scheduleHandler.SchoolSettings)
		school.PUT("", adminOnly, scheduleHandler.UpdateSchoolSettings)
	}

	schedules := protected.Group("/schedules")
	{
		schedules.GET("", staff, scheduleHandler.List)
		schedules.GET("/mine", middleware.RequireRoles(models.RoleTeacher), scheduleHandler.MyTimetable)
		schedules.GET("/teacher/:id", staff, scheduleHandler.TeacherTimetable)
		schedules.POST("", adminOnly, scheduleHandler.Create)
		schedules.PUT("/:id", adminOnly, scheduleHandler.Update)
		schedules.DELETE("/:id", adminOnly, scheduleHandler.Delete)
	}

	substitutions := protected.Group("/substitutions")
	{
		substitutions.POST("/generate", adminOnly, substitutionHandler.Generate)
		substitutions.POST("/override", adminOnly, substitutionHandler.Override)
		substitutions.GET("/mine", middleware.RequireRoles(models.RoleTeacher), substitutionHandler.ListMine)
		substitutions.GET("", adminOnly, substitutionHandler.List)
		substitutions.GET("/export", adminOnly, substitutionHandler.Export)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
