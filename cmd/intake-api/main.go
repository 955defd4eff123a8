package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/madrasa-adp/intake-api/api/swagger"
	"github.com/madrasa-adp/intake-api/internal/handler"
	"github.com/madrasa-adp/intake-api/internal/middleware"
	"github.com/madrasa-adp/intake-api/internal/repository"
	"github.com/madrasa-adp/intake-api/internal/service"
	"github.com/madrasa-adp/intake-api/pkg/cache"
	"github.com/madrasa-adp/intake-api/pkg/config"
	"github.com/madrasa-adp/intake-api/pkg/database"
	"github.com/madrasa-adp/intake-api/pkg/logger"
	corsmiddleware "github.com/madrasa-adp/intake-api/pkg/middleware/cors"
	reqidmiddleware "github.com/madrasa-adp/intake-api/pkg/middleware/requestid"
	"github.com/madrasa-adp/intake-api/pkg/storage"
)

// @title Madrasa Intake API
// @version 1.0.0
// @description Admission intake, enrollment, and transfer lifecycle service
// @BasePath /api/v1
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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, idempotency keys disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	admissionRepo := repository.NewAdmissionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var idemClient = redisClient
	if !cfg.Idempotency.Enabled {
		idemClient = nil
	}
	idemRepo := repository.NewIdempotencyRepository(idemClient, cfg.Idempotency.TTL)

	metricsService := service.NewMetricsService()
	allocatorService := service.NewAllocatorService(studentRepo, catalogRepo, cfg.Intake.NumberPrefixLen, logr)
	admissionService := service.NewAdmissionService(
		admissionRepo, documentRepo, allocatorService, catalogRepo, auditRepo, idemRepo, validate, logr,
		service.WithPatchAfterDecision(cfg.Intake.AllowPatchAfterDecision),
		service.WithAdmissionMetrics(metricsService),
	)
	documentService := service.NewDocumentService(documentRepo, admissionRepo, auditRepo, validate, logr)
	transferService := service.NewTransferService(
		transferRepo, studentRepo, catalogRepo, auditRepo, idemRepo, validate, logr,
		service.WithCatalogValidation(cfg.Transfers.ValidateCatalogRefs),
		service.WithTransferMetrics(metricsService),
	)
	studentService := service.NewStudentService(studentRepo, auditRepo, logr)
	catalogService := service.NewCatalogService(catalogRepo)

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportService = service.NewExportService(service.ExportServiceConfig{
			Admissions:      admissionRepo,
			Students:        studentRepo,
			Transfers:       transferRepo,
			Storage:         store,
			Signer:          signer,
			InstitutionName: cfg.InstitutionName,
			Workers:         cfg.Exports.WorkerConcurrency,
			Retries:         cfg.Exports.WorkerRetries,
			Logger:          logr,
		})
		exportService.Start(ctx)
		defer exportService.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					exportService.CleanupExpired(cfg.Exports.SignedURLTTL)
				}
			}
		}()
	}

	tokenValidator := middleware.NewTokenValidator(cfg.JWT.Secret)

	admissionHandler := handler.NewAdmissionHandler(admissionService, allocatorService)
	documentHandler := handler.NewDocumentHandler(documentService)
	studentHandler := handler.NewStudentHandler(studentService)
	transferHandler := handler.NewTransferHandler(transferService, exportService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	exportHandler := handler.NewExportHandler(exportService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.JWT.Required {
		api.Use(middleware.JWT(tokenValidator))
	} else {
		api.Use(middleware.OptionalJWT(tokenValidator))
	}

	admissions := api.Group("/admissions")
	{
		admissions.GET("", admissionHandler.List)
		admissions.POST("", admissionHandler.Create)
		admissions.GET("/number-suggestion", admissionHandler.SuggestNumber)
		admissions.GET("/:id", admissionHandler.Get)
		admissions.PATCH("/:id", admissionHandler.Patch)
		admissions.POST("/:id/advance", admissionHandler.Advance)
		admissions.POST("/:id/decision", admissionHandler.Decide)
		admissions.GET("/:id/documents", documentHandler.List)
		admissions.POST("/:id/documents", documentHandler.Add)
		admissions.PATCH("/:id/documents/:docId", documentHandler.Update)
		admissions.DELETE("/:id/documents/:docId", documentHandler.Remove)
	}

	students := api.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.GET("/:id/audit", studentHandler.AuditTrail)
		students.GET("/:id/transfers", transferHandler.List)
		students.POST("/:id/transfers", transferHandler.Apply)
		if exportService != nil {
			students.GET("/:id/transfers/:transferId/certificate", transferHandler.Certificate)
		}
	}

	catalog := api.Group("/catalog")
	{
		catalog.GET("/departments", catalogHandler.Departments)
		catalog.GET("/classes", catalogHandler.Classes)
		catalog.GET("/sections", catalogHandler.Sections)
		catalog.GET("/halaqahs", catalogHandler.Halaqahs)
	}

	if exportService != nil {
		exports := api.Group("/exports")
		exports.POST("/admissions", exportHandler.AdmissionRegister)
		exports.POST("/students", exportHandler.StudentRoster)
		exports.GET("/download", exportHandler.Download)
		exports.GET("/:id", exportHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
