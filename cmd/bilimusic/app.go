package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openmusicplayer/bilimusic/internal/cache"
	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/db"
	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/health"
	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/lyrics"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
	"github.com/openmusicplayer/bilimusic/internal/relay"
	"github.com/openmusicplayer/bilimusic/internal/storage"
	"github.com/openmusicplayer/bilimusic/internal/tags"
	"github.com/openmusicplayer/bilimusic/internal/ytdlp"
)

// app holds the components shared by serve and get. Optional backends
// (Redis, history database, archive) are nil when not configured or not
// reachable; the app runs without them.
type app struct {
	cfg *config.Config
	log *logger.Logger

	extractor *ytdlp.Service
	scheduler *download.Scheduler
	relay     *relay.Relay
	metrics   *metrics.Metrics

	cache   *cache.Cache
	db      *db.DB
	history *db.HistoryRepository
	storage *storage.Client

	started   bool
	relayDone chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       logger.Default().WithComponent("app"),
		metrics:   metrics.Default(),
		relayDone: make(chan struct{}),
	}

	ytCfg := &ytdlp.Config{
		YtdlpPath:     cfg.YtdlpPath,
		SocketTimeout: cfg.SocketTimeout,
		CookiesFile:   cfg.CookiesFile,
		FfmpegPath:    cfg.FfmpegPath,
		Metrics:       a.metrics,
	}

	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL)
		if err != nil {
			a.log.Warn(ctx, "redis unavailable, continuing without cache and event mirror", map[string]interface{}{"error": err.Error()})
		} else {
			a.cache = c
			ytCfg.Cache = cache.NewMetadataStore(c, cfg.CacheTTL)
		}
	}

	extractor, err := ytdlp.New(ytCfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("%w (set YTDLP_PATH or --ytdlp)", err)
	}
	a.extractor = extractor

	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err == nil {
			err = database.Migrate(ctx)
			if err != nil {
				database.Close()
			}
		}
		if err != nil {
			a.log.Warn(ctx, "history database unavailable, job history disabled", map[string]interface{}{"error": err.Error()})
		} else {
			a.db = database
			a.history = db.NewHistoryRepository(database)
		}
	}

	var archiver storage.Archiver
	if cfg.ArchiveEnabled {
		storeCfg := storage.FromAppConfig(cfg)
		client, err := storage.New(storeCfg)
		if err == nil {
			err = client.EnsureBucket(ctx)
		}
		if err != nil {
			a.log.Warn(ctx, "archive storage unavailable, uploads disabled", map[string]interface{}{"error": err.Error()})
		} else {
			a.storage = client
			archiver = storage.NewS3Storage(storeCfg)
			a.log.Info(ctx, "archiving finished downloads", map[string]interface{}{"bucket": client.Bucket()})
		}
	}

	a.scheduler = download.New(extractor,
		download.WithMaxParallel(cfg.MaxParallel),
		download.WithMaxAttempts(cfg.MaxAttempts),
		download.WithRetryBackoff(cfg.RetryBackoff),
	)

	a.relay = relay.New(
		relay.NewLogSink(nil),
		relay.NewMetricsSink(a.metrics),
		relay.NewPostProcessSink(tags.NewID3Port(), archiver, a.scheduler.Get),
	)
	if a.history != nil {
		a.relay.Add(relay.NewHistorySink(a.history, a.scheduler.Get))
	}
	if a.cache != nil {
		a.relay.Add(relay.NewRedisPublisher(a.cache.Client(), a.scheduler.Get, relay.DefaultFinishedTTL))
	}

	return a, nil
}

// start begins draining the scheduler's events. Sinks must be added before.
func (a *app) start(ctx context.Context) {
	a.started = true
	go func() {
		defer close(a.relayDone)
		a.relay.Run(context.WithoutCancel(ctx), a.scheduler.Events())
	}()
}

func (a *app) redisClient() *redis.Client {
	if a.cache == nil {
		return nil
	}
	return a.cache.Client()
}

func (a *app) lyricsMatcher() *lyrics.Matcher {
	return lyrics.NewMatcher(lyrics.NewLRCLibSource(a.cfg.LyricsEndpoint, &http.Client{Timeout: 15 * time.Second}))
}

func (a *app) healthChecker(version string) *health.Checker {
	hc := &health.CheckerConfig{
		Redis:    a.redisClient(),
		ProbeURL: health.DefaultProbeURL,
		Binaries: map[string]string{"yt-dlp": a.cfg.YtdlpPath, "ffmpeg": a.cfg.FfmpegPath},
		Version:  version,
	}
	if a.db != nil {
		hc.DB = a.db.DB
	}
	if a.storage != nil {
		hc.StorageCheck = a.storage.Ping
	}
	return health.NewChecker(hc)
}

// Close stops the scheduler, waits for the relay to flush and releases the
// backends. Jobs still running are cancelled.
func (a *app) Close(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Close(ctx); err != nil {
			a.log.Warn(ctx, "scheduler did not stop in time", map[string]interface{}{"error": err.Error()})
		}
		if a.started {
			select {
			case <-a.relayDone:
			case <-ctx.Done():
			}
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
