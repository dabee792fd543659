package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/graph"
	"github.com/mmdatafocus/erp_core/handlers"
	"github.com/mmdatafocus/erp_core/middlewares"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

func main() {
	logger := config.GetLogger()
	port := config.ListenPort()

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Listen before dependencies are up so the platform health check passes; app routes answer 503 until then.
	srv := &http.Server{Addr: ":" + port, Handler: newRouter(logger)}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	// Run DDL as a separate job (ledgerctl migrate) when SKIP_MIGRATIONS=true.
	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	setReadCommitted(db, logger)

	// Ledger events leave the process only after the posting transaction committed.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger, workflow.NewEventPublisherFromEnv()).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{"info": "Connection Established"}).Info("listening on :", port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	config.ClosePubSub()
	config.CloseKafka()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(func(c *gin.Context) {
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	if config.IsProduction() {
		// Production requires an explicit allowlist.
		corsConfig.AllowOrigins = config.AllowedOrigins()
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "Idempotency-Key", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	if enabled, limit, window := config.RateLimit(); enabled {
		limiter := middlewares.NewRateLimiter(config.NewRedisClient(os.Getenv("REDIS_ADDRESS")), limit, window)
		r.Use(limiter.RateLimitMiddleware)
	}
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/", middlewares.AuthMiddleware())
	handlers.RegisterRoutes(api)
	api.POST("/query", middlewares.LoaderMiddleware(), graphqlHandler())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// graphqlHandler serves the read and orchestration surface over GraphQL.
func graphqlHandler() gin.HandlerFunc {
	h := graph.NewServer(&graph.Resolver{Tracer: otel.Tracer("erp_core/graph")})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// setReadCommitted retries until the session isolation level is set. Posting relies on row locks, not
// repeatable-read snapshots.
func setReadCommitted(db *gorm.DB, logger *logrus.Logger) {
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			return
		}
		wait := config.RetryDelay(attempt)
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + wait.String() + ": " + err.Error())
		time.Sleep(wait)
	}
}
