package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/cache"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/config"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/handlers"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/listener"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/lnbits"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/metrics"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/middleware"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/registry"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/services"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/token"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/version"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "server":
		runServer()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Lightning-gated firmware download server")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the firmware server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}

func runServer() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	prometheusMetrics := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}

	deviceCache, err := createDeviceCache(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize device cache: %v", err)
	}

	lnbitsClient, err := lnbits.New(lnbits.Config{
		BaseURL:            cfg.LNbitsURL,
		APIKey:             cfg.LNbitsAPIKey,
		Timeout:            cfg.LNbitsTimeout,
		InsecureSkipVerify: cfg.LNbitsInsecureSkipVerify,
		MaxRetries:         cfg.LNbitsMaxRetries,
		RetryDelay:         cfg.LNbitsRetryDelay,
		MaxRetryDelay:      cfg.LNbitsMaxRetryDelay,
	})
	if err != nil {
		log.Fatalf("Failed to create LNbits client: %v", err)
	}
	log.Printf("LNbits backend: %s", cfg.LNbitsURL)

	firmwareRegistry := registry.New(cfg.FirmwareDir, cfg.DeviceTypes)
	tokenService := token.NewService(cfg.TokenSecret, cfg.TokenTTL, cfg.BaseURL)

	settingsService := services.NewSettingsService(db, cfg.DefaultPrice)
	promoService := services.NewPromoService(db)
	bulletinService := services.NewBulletinService(db)
	flashService := services.NewFlashService(
		db,
		firmwareRegistry,
		tokenService,
		lnbitsClient,
		settingsService,
		promoService,
		prometheusMetrics,
		cfg.InvoiceExpiry,
		cfg.PaymentWindow,
	)
	paymentListener := listener.New(db, tokenService, prometheusMetrics)

	flashHandler := handlers.NewFlashHandler(
		flashService,
		settingsService,
		promoService,
		bulletinService,
		firmwareRegistry,
		db,
		deviceCache,
		cfg.DeviceCacheTTL,
	)
	adminHandler := handlers.NewAdminHandler(
		flashService,
		settingsService,
		promoService,
		bulletinService,
		deviceCache,
	)

	setupGinMode(cfg)
	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(prometheusMetrics))
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", flashHandler.Health)

	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	invoiceLimiter, redisClient := setupRateLimiting(cfg)

	api := r.Group("/api/v1")
	{
		api.GET("/devices", flashHandler.Devices)
		api.GET("/price", flashHandler.Price)
		api.GET("/bulletins", flashHandler.Bulletins)
		api.GET("/promo/validate", flashHandler.ValidatePromo)
		api.POST("/flash/invoice", invoiceLimiter, flashHandler.CreateInvoice)
		api.GET("/flash/status/:payment_hash", flashHandler.Status)
		api.GET("/firmware/:device_type/:version", flashHandler.Download)
		api.POST("/flash/complete/:payment_hash", flashHandler.Complete)
	}

	if cfg.AdminAPIKey == "" {
		log.Printf("Warning: ADMIN_API_KEY not set, admin API will reject all requests")
	}
	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(cfg.AdminAPIKey))
	{
		admin.GET("/requests", adminHandler.ListRequests)
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/price", adminHandler.GetPrice)
		admin.POST("/price", adminHandler.SetPrice)
		admin.GET("/wallet", adminHandler.GetWallet)
		admin.POST("/wallet", adminHandler.SetWallet)
		admin.GET("/bulletins", adminHandler.ListBulletins)
		admin.POST("/bulletins", adminHandler.CreateBulletin)
		admin.PUT("/bulletins/:id", adminHandler.UpdateBulletin)
		admin.DELETE("/bulletins/:id", adminHandler.DeleteBulletin)
		admin.GET("/promo", adminHandler.ListPromoCodes)
		admin.POST("/promo", adminHandler.CreatePromoCode)
		admin.DELETE("/promo/:id", adminHandler.DeletePromoCode)
		admin.POST("/registry/refresh", adminHandler.RefreshRegistry)
	}

	log.Printf("%s starting on %s", version.String(), cfg.ServerAddr)
	log.Printf("Firmware directory: %s (devices: %v)", cfg.FirmwareDir, cfg.DeviceTypes)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // firmware downloads stream large files
		IdleTimeout:       120 * time.Second,
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})

	// Payment confirmation listener, fed by the LNbits SSE stream.
	m.AddRunningJob(func(ctx context.Context) error {
		events := lnbitsClient.SubscribePayments(ctx)
		return paymentListener.Run(ctx, events)
	})

	// Periodic sweep of overdue requests and lapsed tokens.
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := flashService.Sweep(time.Now()); err != nil {
					log.Printf("Sweep failed: %v", err)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})

	if redisClient != nil {
		m.AddShutdownJob(func() error {
			log.Println("Closing Redis connection...")
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing Redis client: %v", err)
				return err
			}
			log.Println("Redis connection closed")
			return nil
		})
	}

	m.AddShutdownJob(func() error {
		if err := deviceCache.Close(); err != nil {
			log.Printf("Error closing device cache: %v", err)
			return err
		}
		return nil
	})

	<-m.Done()
}

// createDeviceCache builds the cache backing the public device listing.
func createDeviceCache(cfg *config.Config) (cache.Cache[[]registry.Device], error) {
	switch cfg.DeviceCacheBackend {
	case config.DeviceCacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRueidisCache[[]registry.Device](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"tnaflasher:",
		)
		if err != nil {
			return nil, err
		}
		log.Printf("Device cache: redis (addr=%s, db=%d)", cfg.RedisAddr, cfg.RedisDB)
		return c, nil
	default:
		log.Println("Device cache: memory (single instance only)")
		return cache.NewMemoryCache[[]registry.Device](), nil
	}
}

// setupRateLimiting returns the middleware guarding the invoice endpoint and
// the optional Redis client that needs closing on shutdown.
func setupRateLimiting(cfg *config.Config) (gin.HandlerFunc, *redis.Client) {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }, nil
	}

	log.Printf("Rate limiting enabled (store: %s, %d req/min)",
		cfg.RateLimitStore, cfg.RateLimitPerMinute)

	limiter, redisClient, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		StoreType:         cfg.RateLimitStore,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}
	return limiter, redisClient
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
		log.Printf("Gin mode: Release (production)")
		return
	}
	gin.SetMode(gin.DebugMode)
	log.Printf("Gin mode: Debug (development)")
}
