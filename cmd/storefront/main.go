package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/cache"
	"github.com/arabiperfum/perfume-store-website/internal/cart"
	"github.com/arabiperfum/perfume-store-website/internal/catalog"
	"github.com/arabiperfum/perfume-store-website/internal/checkout"
	"github.com/arabiperfum/perfume-store-website/internal/config"
	"github.com/arabiperfum/perfume-store-website/internal/consumer"
	"github.com/arabiperfum/perfume-store-website/internal/favorites"
	h "github.com/arabiperfum/perfume-store-website/internal/http"
	"github.com/arabiperfum/perfume-store-website/internal/ledger"
	"github.com/arabiperfum/perfume-store-website/internal/metrics"
	"github.com/arabiperfum/perfume-store-website/internal/publisher"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("storefront starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Relational store: catalog, orders, favorites, outbox
	repo, err := repository.NewRepository(&repository.Credentials{
		Driver:     cfg.DBDriver,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		DBName:     cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Cart sessions live in MongoDB, fronted by Redis
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Client().Disconnect(ctx)
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	if err := repository.EnsureCartIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("Failed to create cart indexes: %v", err)
	}
	cartRepo := repository.NewMongoCartRepository(mongoDB)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalogService := catalog.NewService(repo)
	cartService := cart.NewService(cartRepo, cache.NewRedisCache(redisClient, cache.Options{KeyPrefix: cfg.CacheKeyPrefix, TTL: cfg.CartCacheTTL}), catalogService)
	orders := ledger.New(repo)

	handler := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, h.Services{
		Catalog:   catalogService,
		Carts:     cartService,
		Favorites: favorites.NewSessions(repo),
		Checkout:  checkout.NewSessions(orders, cartService),
		Orders:    orders,
		Auth:      h.NewAuthenticator(cfg.JWTSecret),
		Metrics:   metrics.NewServerMetrics(reg),
		Gatherer:  reg,
	})

	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo, metrics.NewOutboxMetrics(reg), cfg.KafkaBrokers...)
		defer poller.Close()
		go poller.Run(pollerCtx)
		log.Printf("Outbox publisher started for brokers %v", cfg.KafkaBrokers)

		cleaner := consumer.NewCartCleaner(cartService, cfg.KafkaBrokers...)
		defer cleaner.Close()
		go cleaner.Run(pollerCtx)
	} else {
		log.Println("KAFKA_BROKERS not set; outbox events stay in the database")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("storefront listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopPoller()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
