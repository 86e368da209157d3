package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/checkout"
	"github.com/Loka-Media/store.loka.media-sub004/internal/config"
	"github.com/Loka-Media/store.loka.media-sub004/internal/fulfillment"
	"github.com/Loka-Media/store.loka.media-sub004/internal/httpapi"
	"github.com/Loka-Media/store.loka.media-sub004/internal/identity"
	"github.com/Loka-Media/store.loka.media-sub004/internal/payment"
	"github.com/Loka-Media/store.loka.media-sub004/internal/session"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.NewEntry(logger)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx := context.Background()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	log.Info("redis ping succeeded")

	sessions := session.NewRedisStore(redisClient, cfg.SessionTTL)
	carts := cart.NewRedisStore(redisClient, cfg.SessionTTL)

	authClient := identity.NewHTTPAuthClient(cfg.AuthBaseURL, cfg.ClientTimeout)
	fulfillmentClient := fulfillment.NewClient(
		cfg.FulfillmentBaseURL,
		cfg.FulfillmentAPIKey,
		cfg.ZipLookupBaseURL,
		cfg.ClientTimeout,
		log.WithField("component", "fulfillment"),
	)
	paymentClient := payment.NewClient(cfg.PaymentBaseURL, cfg.ClientTimeout)

	coordinator := identity.NewCoordinator(authClient, sessions, log.WithField("component", "identity"))
	resolver := address.NewResolver(fulfillmentClient, log.WithField("component", "address"))
	orchestrator := checkout.NewOrchestrator(carts, fulfillmentClient, resolver, paymentClient, log.WithField("component", "checkout"))

	authHandler := httpapi.NewAuthHandler(coordinator, orchestrator, cfg.RequestTimeout)
	cartHandler := httpapi.NewCartHandler(carts, coordinator, cfg.RequestTimeout)
	checkoutHandler := httpapi.NewCheckoutHandler(orchestrator, coordinator, resolver, cfg.RequestTimeout)

	// Warm the country reference table; a failure here is not fatal, the
	// resolver retries on first use.
	if _, err := resolver.LoadRegions(ctx); err != nil {
		log.WithError(err).Warn("country reference preload failed")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(httpapi.SessionMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetState)
			r.Post("/start", checkoutHandler.Start)
			r.Post("/merge", checkoutHandler.ResolveMerge)
			r.Get("/regions", checkoutHandler.Regions)
			r.Put("/address/country", checkoutHandler.UpdateCountry)
			r.Put("/address/zip", checkoutHandler.ChangeZip)
			r.Post("/address", checkoutHandler.SubmitAddress)
			r.Post("/inventory", checkoutHandler.ConfirmInventory)
			r.Post("/pay", checkoutHandler.Pay)
		})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("checkout server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down checkout server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	log.Info("checkout server stopped")
}
