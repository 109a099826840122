package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/controller"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/provider"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/repository"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/service"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/webhook"
	"github.com/danielnogueira8/whopBetTracker-sub000/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for checkouts, purchase confirmation, and the Whop webhook.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, purchaseService, whopFactory, cleanup := mustCreatePurchaseService()
	defer cleanup()

	purchaseController := controller.NewPurchaseController(purchaseService)
	validator := webhook.NewValidator(cfg.Whop.WebhookSecret, cfg.Whop.SignatureToleranceSeconds)
	webhookController := controller.NewWebhookController(purchaseService, validator, cfg.Whop.WebhookSecret != "")

	e := setupHTTPServer(purchaseController, webhookController, whopFactory)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	purchaseController *controller.PurchaseController,
	webhookController *controller.WebhookController,
	verifier controller.TokenVerifier,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", purchaseController.Health)

	// The webhook endpoint authenticates with the HMAC signature, not a
	// bearer token.
	webhooks := e.Group("/webhooks")
	webhooks.GET("/whop", webhookController.Liveness)
	webhooks.POST("/whop", webhookController.HandleEvent)

	purchases := e.Group("/:resourceType/:id", controller.RequireBuyerAuth(verifier))
	purchases.POST("/checkout", purchaseController.CreateCheckout)
	purchases.POST("/confirm", purchaseController.ConfirmPurchase)
	purchases.GET("/access", purchaseController.CheckAccess)

	return e
}

func mustCreatePurchaseService() (*config.Config, *service.PurchaseService, provider.Client, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	purchaseRepo := repository.NewPurchaseRepository(db)
	listingRepo := repository.NewListingRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	eventRepo := repository.NewPurchaseEventRepository(db)

	whopFactory := provider.NewWhopFactory(provider.WhopConfig{
		APIKey:      cfg.Whop.APIKey,
		BaseURL:     cfg.Whop.APIBaseURL,
		HTTPTimeout: cfg.Whop.HTTPTimeout,
	})

	purchaseService := service.NewPurchaseService(
		purchaseRepo,
		listingRepo,
		entitlementRepo,
		eventRepo,
		whopFactory,
		cfg.Purchases,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, purchaseService, whopFactory.ClientFor(""), cleanup
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
