package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/djlord-it/easy-trigger/internal/api"
	"github.com/djlord-it/easy-trigger/internal/auth"
	"github.com/djlord-it/easy-trigger/internal/cache"
	"github.com/djlord-it/easy-trigger/internal/config"
	"github.com/djlord-it/easy-trigger/internal/events"
	"github.com/djlord-it/easy-trigger/internal/lifecycle"
	"github.com/djlord-it/easy-trigger/internal/metrics"
	"github.com/djlord-it/easy-trigger/internal/registry"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
	"github.com/djlord-it/easy-trigger/internal/store/postgres"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`trigger-server - event trigger platform

Usage:
  trigger-server <command>

Commands:
  serve      Start the trigger platform server
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  JWT_SECRET                HMAC secret for access tokens (required)
  REDIS_ADDR                Redis address for the event cache (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  SWEEP_INTERVAL            Lifecycle sweep interval (default: "30m")
  ARCHIVE_AFTER             Age at which active events archive (default: "2h")
  DELETE_AFTER              Age at which events delete (default: "48h")
  CACHE_TTL                 Recent-events cache TTL (default: "60s")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_ADDR              Metrics server address (default: ":9090")

  TEST_RATE_PER_MINUTE      Test firings per user per minute, 0 disables (default: "6")
  TEST_RATE_BURST           Test firing burst size (default: "3")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("trigger-server: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	if err := store.EnsureSchema(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
		return exitRuntimeError
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("trigger-server: metrics enabled (addr=%s, path=%s)", cfg.MetricsAddr, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("trigger-server: metrics server listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("trigger-server: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("trigger-server: METRICS_ENABLED not set; metrics disabled")
	}

	// Wire the Redis cache if configured
	var redisClient *redis.Client
	var eventCache *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		eventCache = cache.NewRedis(redisClient)
		log.Printf("trigger-server: event cache enabled (redis=%s, ttl=%s)", cfg.RedisAddr, cfg.CacheTTL)
	} else {
		log.Println("trigger-server: REDIS_ADDR not set; event cache disabled")
	}

	authSvc := auth.NewService(store, []byte(cfg.JWTSecret))

	core := scheduler.New()

	reg := registry.New(store, core)
	if metricsSink != nil {
		reg = reg.WithMetrics(metricsSink)
	}
	if cfg.TestRatePerMinute > 0 {
		reg = reg.WithTestRateLimit(rate.Limit(float64(cfg.TestRatePerMinute)/60), cfg.TestRateBurst)
		log.Printf("trigger-server: test rate limit enabled (%d/min, burst=%d)", cfg.TestRatePerMinute, cfg.TestRateBurst)
	}

	// Rebuild scheduled jobs before accepting requests so firings resume
	// even if the process crashed mid-flight.
	registered, err := reg.ReconcileJobs(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reconcile jobs: %v\n", err)
		return exitRuntimeError
	}
	log.Printf("trigger-server: reconciled %d scheduled trigger(s)", registered)

	sweeper := lifecycle.New(lifecycle.Config{
		Interval:     cfg.SweepInterval,
		ArchiveAfter: cfg.ArchiveAfter,
		DeleteAfter:  cfg.DeleteAfter,
	}, store)
	if eventCache != nil {
		sweeper = sweeper.WithCache(eventCache)
	}
	if metricsSink != nil {
		sweeper = sweeper.WithMetrics(metricsSink)
	}

	eventsSvc := events.New(events.Config{
		ArchiveAfter: cfg.ArchiveAfter,
		DeleteAfter:  cfg.DeleteAfter,
		CacheTTL:     cfg.CacheTTL,
	}, store)
	if eventCache != nil {
		eventsSvc = eventsSvc.WithCache(eventCache)
	}
	if metricsSink != nil {
		eventsSvc = eventsSvc.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(reg, eventsSvc, authSvc).
		WithSweeper(sweeper).
		WithHealthChecker(db)
	if redisClient != nil {
		apiHandler = apiHandler.WithCachePing(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("trigger-server: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("trigger-server: http server error: %v", err)
		}
	}()

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	var sweeperWg sync.WaitGroup

	sweeperWg.Add(1)
	go func() {
		defer sweeperWg.Done()
		sweeper.Run(sweeperCtx)
	}()

	log.Printf("trigger-server: started (sweep=%s, archive_after=%s, delete_after=%s, http=%s)",
		cfg.SweepInterval, cfg.ArchiveAfter, cfg.DeleteAfter, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("trigger-server: received signal %v, shutting down", received)

	// Phase 1: Stop HTTP server so no new triggers or test firings arrive
	log.Println("trigger-server: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("trigger-server: http server shutdown error: %v", err)
	}
	log.Println("trigger-server: http server stopped")

	// Phase 2: Stop the scheduler, waiting for in-flight firings
	log.Println("trigger-server: stopping scheduler...")
	schedShutdownCtx, schedShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer schedShutdownCancel()
	if err := core.Shutdown(schedShutdownCtx); err != nil {
		log.Printf("trigger-server: scheduler shutdown error: %v", err)
	}
	log.Println("trigger-server: scheduler stopped")

	// Phase 3: Stop the lifecycle sweeper
	log.Println("trigger-server: stopping sweeper...")
	cancelSweeper()
	sweeperWg.Wait()
	log.Println("trigger-server: sweeper stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("trigger-server: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("trigger-server: metrics server shutdown error: %v", err)
		}
		log.Println("trigger-server: metrics server stopped")
	}

	log.Println("trigger-server: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("trigger-server version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
