package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/metrics"
	"github.com/sokoline/sokoline-backend/internal/modules/auth"
	"github.com/sokoline/sokoline-backend/internal/modules/commission"
	"github.com/sokoline/sokoline-backend/internal/modules/delivery"
	"github.com/sokoline/sokoline-backend/internal/modules/listing"
	"github.com/sokoline/sokoline-backend/internal/modules/order"
	"github.com/sokoline/sokoline-backend/internal/modules/payment"
	"github.com/sokoline/sokoline-backend/internal/modules/payout"
	"github.com/sokoline/sokoline-backend/internal/modules/user"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
	"github.com/sokoline/sokoline-backend/internal/notify"
	"github.com/sokoline/sokoline-backend/internal/validation"
	"github.com/sokoline/sokoline-backend/internal/ws"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, relying on environment")
	}

	db, err := sql.Open("postgres", os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("failed to reach database")
	}
	logger.Info("connected to database")

	validate := validation.New()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	bus := events.NewBus(logger, metrics.EventsDroppedTotal.Inc)

	// ── Identity ────────────────────────────────────────────
	userRepo := user.NewPostgresRepository(db)
	userService := user.NewService(userRepo)
	userHandler := user.NewHandler(userService, validate)

	authService := auth.NewService(userRepo, os.Getenv("JWT_SECRET"))

	// ── Vendors & Commission ────────────────────────────────
	vendorTierRepo := vendor.NewTierPostgresRepository(db)
	vendorRepo := vendor.NewPostgresRepository(db)
	vendorService := vendor.NewService(vendorRepo, vendorTierRepo)
	vendorHandler := vendor.NewHandler(vendorService, validate)

	calc := commission.NewCalculator(envFloat("PLATFORM_FEE_PCT", commission.DefaultPlatformFeePct))

	// ── Listings ────────────────────────────────────────────
	listingRepo := listing.NewPostgresRepository(db)
	listingService := listing.NewService(listingRepo, vendorRepo)
	listingHandler := listing.NewHandler(listingService, validate, logger)

	// ── Orders ──────────────────────────────────────────────
	orderRepo := order.NewPostgresRepository(db)
	orderService := order.NewService(orderRepo, vendorRepo, vendorService, calc, bus, logger)
	orderHandler := order.NewHandler(orderService, validate, logger)

	authHandler := auth.NewHandler(authService, orderService)

	// ── Delivery Dispatch ───────────────────────────────────
	deliveryRepo := delivery.NewPostgresRepository(db)
	providerRepo := delivery.NewPostgresProviderRepository(db)
	deliveryService := delivery.NewService(deliveryRepo, providerRepo, orderService, vendorRepo, bus, logger)
	deliveryHandler := delivery.NewHandler(deliveryService, validate, logger)

	// ── Pluggable Payments ──────────────────────────────────
	gateways := payment.GatewayRegistry{
		payment.ProviderMpesa: payment.NewMpesaGateway(
			os.Getenv("MPESA_CONSUMER_KEY"),
			os.Getenv("MPESA_CONSUMER_SECRET"),
			os.Getenv("MPESA_SHORT_CODE"),
			os.Getenv("MPESA_BASE_URL"),
			os.Getenv("MPESA_ENV"),
		),
		payment.ProviderPaystack: payment.NewPaystackGateway(
			os.Getenv("PAYSTACK_SECRET_KEY"),
			os.Getenv("PAYSTACK_BASE_URL"),
			os.Getenv("PAYSTACK_ENV"),
		),
		payment.ProviderCash: payment.NewCashGateway(),
	}
	paymentRepo := payment.NewPostgresRepository(db)
	paymentService := payment.NewService(paymentRepo, gateways, orderService, logger)
	paymentHandler := payment.NewHandler(paymentService, validate, logger)

	// ── Payouts ─────────────────────────────────────────────
	var transfers payout.TransferGateway
	switch os.Getenv("PAYOUT_RAIL") {
	case "mpesa":
		transfers = payment.NewMpesaB2CGateway(
			os.Getenv("MPESA_CONSUMER_KEY"),
			os.Getenv("MPESA_CONSUMER_SECRET"),
			os.Getenv("MPESA_B2C_SHORT_CODE"),
			os.Getenv("MPESA_BASE_URL"),
			os.Getenv("MPESA_ENV"),
		)
	default:
		transfers = payment.NewPaystackTransferGateway(
			os.Getenv("PAYSTACK_SECRET_KEY"),
			os.Getenv("PAYSTACK_BASE_URL"),
			os.Getenv("PAYSTACK_ENV"),
		)
	}
	payoutRepo := payout.NewPostgresRepository(db)
	payoutService := payout.NewService(payoutRepo, vendorRepo, transfers, bus, logger,
		envFloat("PAYOUT_MIN_AMOUNT", payout.DefaultMinAmount))
	payoutHandler := payout.NewHandler(payoutService, validate, logger)

	// ── Event Consumers ─────────────────────────────────────
	sms := notify.NewAfricasTalkingSMS(
		os.Getenv("AT_API_KEY"),
		os.Getenv("AT_USERNAME"),
		os.Getenv("AT_SENDER_ID"),
		logger,
	)
	email := notify.NewSMTPEmail(
		os.Getenv("SMTP_HOST"),
		os.Getenv("SMTP_FROM"),
		os.Getenv("SMTP_PASSWORD"),
		logger,
	)
	directory := notify.NewDirectory(userRepo, vendorRepo)
	dispatcher := notify.NewDispatcher(sms, email, directory, authService, os.Getenv("PUBLIC_BASE_URL"), logger)

	hub := ws.NewHub(logger)

	bus.Register(dispatcher)
	bus.Register(hub)
	bus.Register(delivery.NewAutoDispatcher(deliveryService, logger))

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		sink, err := events.NewKafkaSink(brokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Kafka")
		}
		defer sink.Close()
		bus.Register(sink)
	}

	go bus.Run()

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Mount("/users", userHandler.Routes())
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/vendors", vendorHandler.Routes())
		r.Mount("/listings", listingHandler.Routes())
		r.Mount("/orders", orderHandler.Routes())
		r.Mount("/deliveries", deliveryHandler.Routes())
		r.Mount("/payments", paymentHandler.Routes())
		r.Mount("/payouts", payoutHandler.Routes())
	})
	router.Mount("/webhooks/payments", paymentHandler.WebhookRoutes())
	router.Get("/ws", hub.ServeHTTP)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// ── Start Server ────────────────────────────────────────
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		logger.WithField("port", port).Info("Sokoline API starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
	bus.Close()
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
