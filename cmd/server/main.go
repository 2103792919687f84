package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/FeliciaLa/coldcall-pro/internal/broker"
	handlers "github.com/FeliciaLa/coldcall-pro/internal/handler"
	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/internal/scorecard"
	"github.com/FeliciaLa/coldcall-pro/pkg/config"
	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/metrics"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig

	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("checked config",
		zap.String("addr", cfg.Addr),
		zap.String("db-driver", cfg.DBDriver),
		zap.String("mode", cfg.Mode))
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; session and scorecard endpoints will return 503")
	}
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout endpoint will return 503")
	}

	// 4. Load Data Source
	db, err := models.OpenDatabase(os.Stdout, cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	// 5. Build the domain services
	models.FreeCallLimit = cfg.FreeCallLimit
	models.PurchaseCreditAmount = cfg.PurchaseCredits
	var minter broker.SecretMinter
	if cfg.OpenAIAPIKey != "" {
		minter = realtime.NewClient(cfg.OpenAIAPIKey, realtime.WithBaseURL(cfg.OpenAIBaseURL))
	}
	b := broker.New(db, minter, cfg.RealtimeModel)
	evaluator := scorecard.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ScorecardModel)

	// 6. Initialize Gin Routing
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// 7. use middleware
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.LoggerMiddleware(logger.Lg))

	// 8. Register Routes
	handlers.NewHandlers(db, b, evaluator, cfg).Register(r)
	r.GET("/metrics", metrics.Handler())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 9. Start HTTP Server
	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	logger.Info("Starting HTTP server", zap.String("addr", cfg.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server run failed", zap.Error(err))
	}
}
