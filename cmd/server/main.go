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

	"github.com/monad-arcade/paygate/internal/config"
	"github.com/monad-arcade/paygate/internal/content"
	"github.com/monad-arcade/paygate/internal/observability/otel"
	"github.com/monad-arcade/paygate/pkg/facilitator"
	paygate "github.com/monad-arcade/paygate/pkg/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := otel.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	shutdownMeter, err := otel.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	metrics, err := otel.NewMetrics("paygate/server")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	settler, err := facilitator.NewClient(&facilitator.Config{
		URL:                 cfg.Facilitator.URL,
		SecretKey:           cfg.Facilitator.SecretKey,
		ServerWalletAddress: cfg.Payment.PayTo,
		Timeout:             cfg.Facilitator.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to create facilitator client: %v", err)
	}

	paymentGate, err := paygate.PaymentMiddleware(settler, cfg.Payment.PayTo,
		paygate.WithNetwork(cfg.Payment.Network()),
		paygate.WithPrice(cfg.Payment.Price),
		paygate.WithResourceBaseURL(cfg.Payment.ResourceBaseURL),
		paygate.WithReplayTTL(cfg.Payment.ReplayTTL),
		paygate.WithRecorder(metrics),
	)
	if err != nil {
		log.Fatalf("Failed to create payment middleware: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), paygate.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := content.NewHandler(nil)
	api := router.Group("/api")
	api.Use(paymentGate)
	api.GET("/paid-content", handler.Premium)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
