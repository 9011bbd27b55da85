package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsinsight/docservice/handlers"
	"github.com/newsinsight/docservice/internal/analysis"
	"github.com/newsinsight/docservice/internal/config"
	"github.com/newsinsight/docservice/internal/database"
	"github.com/newsinsight/docservice/internal/document/handler"
	"github.com/newsinsight/docservice/internal/document/repository"
	"github.com/newsinsight/docservice/internal/document/service"
	"github.com/newsinsight/docservice/internal/sessions"
	"github.com/newsinsight/docservice/internal/storage"
	"github.com/newsinsight/docservice/internal/tokens"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/metrics"
	"github.com/newsinsight/docservice/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

const connectAttempts = 5

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: storage=%s redis=%v bucket=%q region=%q", cfg.Storage.Driver, cfg.Redis.Host != "", cfg.Blob.Bucket, cfg.Blob.Region)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	// Lightweight CORS for the browser upload form.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// Redis backs sessions, the analysis queue and optionally the rate limiter.
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		} else {
			rdb = client
			defer rdb.Close()
			logger.Infof("connected to Redis: %s", addr)
		}
	}

	r.Use(apiMiddleware(cfg, rdb)...)

	repo, pingRepo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("document storage: %v", err)
	}
	defer closeRepo()

	var blobs service.BlobStore
	var minioStore *storage.MinIOStorage
	if cfg.Blob.Bucket != "" {
		minioStore, err = storage.NewMinIOStorage(ctx, &storage.MinIOConfig{
			Endpoint:      cfg.Blob.Endpoint,
			AccessKey:     cfg.Blob.AccessKey,
			SecretKey:     cfg.Blob.SecretKey,
			UseSSL:        cfg.Blob.UseSSL,
			Bucket:        cfg.Blob.Bucket,
			Region:        cfg.Blob.Region,
			UploadTimeout: cfg.Blob.UploadTimeout,
			KeyPrefix:     cfg.Blob.KeyPrefix,
		})
		if err != nil {
			logger.Warnf("blob store unavailable, uploads will fail: %v", err)
		} else {
			blobs = minioStore
		}
	}

	svc := service.NewService(repo, blobs, storage.S3URLs{Bucket: cfg.Blob.Bucket, Region: cfg.Blob.Region})

	var queue handler.Enqueuer
	var jobs *analysis.Queue
	if rdb != nil && cfg.Analyzer.Enqueue {
		jobs = analysis.NewQueue(rdb, cfg.Analyzer.QueueKey)
		queue = jobs
	} else {
		logger.Warnf("analysis queue disabled; documents stay processing until a result is reported")
	}

	var guards []gin.HandlerFunc
	if cfg.Callback.Secret != "" {
		guards = append(guards, middleware.CallbackAuthMiddleware(tokens.NewCallbackSigner(cfg.Callback.Secret, cfg.Callback.TokenTTL)))
	}
	handler.NewDocumentHandler(svc, queue).Register(r.Group("/documents"), guards...)
	handlers.RegisterSwagger(r)

	sweeper := service.NewSweeper(svc, cfg.Sweep.Interval, cfg.Sweep.StaleTTL)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when the repository answers and, if configured, Redis and the blob store
	r.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}

		deps["storage"] = pingRepo(rctx) == nil
		ready = ready && deps["storage"]
		if cfg.Redis.Host != "" {
			deps["redis"] = rdb != nil && rdb.Ping(rctx).Err() == nil
			ready = ready && deps["redis"]
		}
		if cfg.Blob.Bucket != "" {
			deps["blob"] = minioStore != nil && minioStore.Ping(rctx) == nil
			ready = ready && deps["blob"]
		}

		body := gin.H{"deps": deps, "uptime": time.Since(startTime).String()}
		if jobs != nil {
			if n, err := jobs.Len(rctx); err == nil {
				body["queueDepth"] = n
			}
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		body["status"] = status
		c.JSON(code, body)
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	if jobs != nil {
		prometheus.MustRegister(metrics.NewQueueDepthGauge(jobs.DepthFunc(time.Second)))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting document service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}

// apiMiddleware returns the per-request chain in registration order. The
// session resolves the account first so the rate limiter can key on it;
// anonymous callers are limited by client IP.
func apiMiddleware(cfg *config.Config, rdb *redis.Client) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if rdb != nil {
		chain = append(chain, middleware.SessionMiddleware(sessions.NewRedisRepository(rdb, "session:")))
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			chain = append(chain, middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			chain = append(chain, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	return chain
}

// openRepository builds the document repository selected by STORAGE_DRIVER
// together with a readiness check and a cleanup func.
func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(context.Context) error, func(), error) {
	noop := func() {}
	switch cfg.Storage.Driver {
	case "mongo":
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, connectAttempts)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", connectAttempts, err)
		}
		repo := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database))
		logger.Infof("using MongoDB document storage (db=%s)", cfg.MongoDB.Database)
		ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return repo, ping, func() { _ = client.Disconnect(context.Background()) }, nil
	case "postgres":
		db, err := database.ConnectPostgresWithRetry(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.Timeout, connectAttempts)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("could not connect to Postgres after %d attempts: %w", connectAttempts, err)
		}
		repo := repository.NewPostgresRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, noop, err
		}
		logger.Infof("using Postgres document storage")
		return repo, db.PingContext, func() { _ = db.Close() }, nil
	default:
		logger.Warnf("using in-memory document storage; records are lost on restart")
		return repository.NewMemoryRepo(), func(context.Context) error { return nil }, noop, nil
	}
}
