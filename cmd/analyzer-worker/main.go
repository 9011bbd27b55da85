// Command analyzer-worker drains the analysis queue, calls the PDF analyzer
// for each registered document and reports the outcome back to the document
// API through PATCH /documents/{id}/result.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsinsight/docservice/internal/analysis"
	"github.com/newsinsight/docservice/internal/config"
	"github.com/newsinsight/docservice/internal/tokens"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetService("analyzer-worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	addr := cfg.Redis.Addr()
	if addr == "" {
		logger.Fatalf("REDIS_HOST is required for the analysis queue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to Redis (%s): %v", addr, err)
	}

	var issuer analysis.TokenIssuer
	if cfg.Callback.Secret != "" {
		issuer = tokens.NewCallbackSigner(cfg.Callback.Secret, cfg.Callback.TokenTTL)
	} else {
		logger.Warnf("CALLBACK_JWT_SECRET is not set; callbacks are sent without a token")
	}

	queue := analysis.NewQueue(rdb, cfg.Analyzer.QueueKey)
	w := analysis.NewWorker(
		queue,
		analysis.NewClient(cfg.Analyzer.BaseURL, cfg.Analyzer.Timeout),
		analysis.NewCallbackClient(cfg.Callback.BaseURL, issuer, 0),
		cfg.Analyzer.Workers,
	)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	prometheus.MustRegister(metrics.NewQueueDepthGauge(queue.DepthFunc(time.Second)))
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: cfg.Analyzer.MetricsAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	logger.Infof("analyzer worker started: queue=%s analyzer=%s api=%s", cfg.Analyzer.QueueKey, cfg.Analyzer.BaseURL, cfg.Callback.BaseURL)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("worker stopped: %v", err)
	}
	logger.Infof("analyzer worker stopped")
}
