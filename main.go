package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svrlab/video-archiver/internal/api"
	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/ingest"
	"github.com/svrlab/video-archiver/internal/media"
	"github.com/svrlab/video-archiver/internal/middleware"
	"github.com/svrlab/video-archiver/internal/secretbox"
)

// Config holds application configuration
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig creates a new configuration from environment variables
func NewConfig() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		Port:            port,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	config := NewConfig()

	logger.Info("initializing database")
	dbConn, err := db.InitDB(logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// Secretbox is optional: without a key, encrypted secrets are rejected
	// but plaintext ones still work.
	var box *secretbox.Box
	if key := os.Getenv("SECRETBOX_KEY"); key != "" {
		box, err = secretbox.New(key)
		if err != nil {
			logger.Fatal("failed to initialize secretbox", zap.Error(err))
		}
	} else {
		logger.Warn("SECRETBOX_KEY not set, encrypted secrets unavailable")
	}

	logger.Info("initializing ingest service")
	ingestConfig := ingest.DefaultConfig()
	ffmpeg := media.NewFFmpeg()
	fetcher := ingest.NewFetcher(ingestConfig, logger)
	splitter := ingest.NewSplitter(ffmpeg, ffmpeg, ingestConfig)

	ingestService, err := ingest.NewService(dbConn, fetcher, splitter, box, ingestConfig, logger)
	if err != nil {
		logger.Fatal("failed to create ingest service", zap.Error(err))
	}
	if err := ingestService.Start(); err != nil {
		logger.Fatal("failed to start ingest service", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "video-archiver",
		})
	})

	r.POST("/auth/register", api.RegisterHandler(dbConn))
	r.POST("/auth/login", api.LoginHandler(dbConn))

	authorized := r.Group("/")
	authorized.Use(middleware.JWTRequired())
	{
		authorized.POST("/sources", api.PostSourceHandler(dbConn, ingestService, logger))
		authorized.GET("/sources", api.ListSourcesHandler(dbConn))
		authorized.GET("/sources/:id", api.GetSourceHandler(dbConn))
		authorized.GET("/sources/:id/chunks", api.ListChunksHandler(dbConn))
		authorized.DELETE("/sources/:id", api.DeleteSourceHandler(dbConn, ingestConfig.ChunksDir))
	}

	admin := r.Group("/")
	admin.Use(middleware.JWTRequired(), middleware.AdminRequired())
	{
		admin.POST("/sources/:id/reset", api.ResetSourceHandler(dbConn, ingestService))
		admin.POST("/secrets/:name", api.CreateSecretHandler(dbConn, box))
		admin.PUT("/secrets/:name", api.UpdateSecretHandler(dbConn, box))
		admin.GET("/secrets/:name", api.GetSecretHandler(dbConn))
	}

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", zap.String("port", config.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if err := ingestService.Stop(); err != nil {
		logger.Error("failed to stop ingest service", zap.Error(err))
	}

	logger.Info("server exited")
}
