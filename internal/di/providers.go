package di

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/handler/api"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/repository"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/usecase"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/cache"
	pkgch "github.com/Alwyn-Tan/dma-strategy-backend/pkg/clickhouse"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/config"
	xhttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	applogger "github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/metrics"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/queue"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideCache returns a Redis-backed cache when Redis is enabled, an
// in-process cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	host, port := splitAddr(cfg.Redis.Addr)
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	// Memory layer in front of Redis keeps hot bar sets off the network.
	return cache.NewLayeredCache(c), nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// mirror is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSignalStore creates the ClickHouse persistence layer when the
// client is available.
func ProvideSignalStore(ch *pkgch.Client, log *applogger.Logger) *repository.SignalStore {
	if ch == nil {
		return nil
	}
	store := repository.NewSignalStore(ch)
	store.SetLogger(log)
	return store
}

// ProvideFetcher creates the remote daily-quote fetcher.
func ProvideFetcher(cfg *config.Config) marketdata.Fetcher {
	client := xhttp.NewClient(xhttp.WithTimeout(30 * time.Second))
	var opts []marketdata.FetcherOption
	if cfg.Data.SymbolSuffix != "" {
		opts = append(opts, marketdata.WithSymbolSuffix(cfg.Data.SymbolSuffix))
	}
	return marketdata.NewCSVFetcher(client, cfg.Data.ProviderURL, opts...)
}

// ProvideMarketDataService wires the CSV store, remote fetcher and
// refresh cooldown cache.
func ProvideMarketDataService(
	cfg *config.Config,
	fetcher marketdata.Fetcher,
	cacheSvc cache.Service,
	log *applogger.Logger,
) *marketdata.Service {
	mdCfg := marketdata.Config{
		DataDir:     cfg.Data.Dir,
		AutoRefresh: cfg.Data.AutoRefresh,
		Cooldown:    cfg.Data.Cooldown,
	}
	return marketdata.NewService(mdCfg, marketdata.NewStore(cfg.Data.Dir), fetcher, cacheSvc, log)
}

// ProvideSignalArchiver creates the queue job that mirrors signals into
// ClickHouse; nil when persistence is disabled.
func ProvideSignalArchiver(data *marketdata.Service, store *repository.SignalStore, log *applogger.Logger) *usecase.SignalArchiver {
	if store == nil {
		return nil
	}
	return usecase.NewSignalArchiver(data, store, log)
}

// ProvideQueue creates the Redis job queue with the archive job
// registered; nil when Redis or persistence is disabled.
func ProvideQueue(cfg *config.Config, archiver *usecase.SignalArchiver, log *applogger.Logger) *queue.RedisQueue {
	if !cfg.Redis.Enabled || archiver == nil {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.BufferSize,
		RetryLimit: cfg.Queue.MaxRetries,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(archiver)
	return q
}

// ProvideStockAnalytics creates the endpoint use case.
func ProvideStockAnalytics(
	data *marketdata.Service,
	rec *metrics.Recorder,
	q *queue.RedisQueue,
	log *applogger.Logger,
) *usecase.StockAnalytics {
	uc := usecase.NewStockAnalytics(data, rec, log)
	if q != nil {
		uc.WithArchiveQueue(q)
	}
	return uc
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(log *applogger.Logger, analytics *usecase.StockAnalytics, rec *metrics.Recorder) xhttp.Handler {
	return api.NewStockHandler(log, analytics, rec)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	signalStore *repository.SignalStore,
	worker *queue.RedisQueue,
) *server.App {
	return server.New(cfg, log, handler, chClient, signalStore, worker)
}

func splitAddr(addr string) (string, int) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return addr, 6379
	}
	port := 0
	for _, r := range portStr {
		if r < '0' || r > '9' {
			return host, 6379
		}
		port = port*10 + int(r-'0')
	}
	if port == 0 {
		port = 6379
	}
	return host, port
}
