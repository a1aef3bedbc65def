package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavel-fokin/paste-stash/internal/cache"
	"github.com/pavel-fokin/paste-stash/internal/fs"
	"github.com/pavel-fokin/paste-stash/internal/paste"
	"github.com/pavel-fokin/paste-stash/internal/redisstore"
	"github.com/pavel-fokin/paste-stash/internal/sqlite"
	"github.com/pavel-fokin/paste-stash/internal/subscription"
)

type Config struct {
	Addr       string `env:"PASTE_STASH_ADDR" envDefault:":8080"`
	AdminToken string `env:"PASTE_STASH_ADMIN_TOKEN,required"`

	Store         string `env:"PASTE_STASH_STORE" envDefault:"sqlite"`
	DBPath        string `env:"PASTE_STASH_DB_PATH" envDefault:"paste-stash.db"`
	DataDir       string `env:"PASTE_STASH_DATA_DIR" envDefault:"data"`
	RedisAddr     string `env:"PASTE_STASH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"PASTE_STASH_REDIS_PASSWORD"`
	RedisDB       int    `env:"PASTE_STASH_REDIS_DB" envDefault:"0"`

	CacheTTL          time.Duration `env:"PASTE_STASH_CACHE_TTL" envDefault:"30s"`
	CacheSize         int           `env:"PASTE_STASH_CACHE_SIZE" envDefault:"1024"`
	CacheMaxValueSize int           `env:"PASTE_STASH_CACHE_MAX_VALUE_SIZE" envDefault:"65536"`

	MaxSize    int64 `env:"PASTE_STASH_MAX_SIZE" envDefault:"26214400"`
	UploadRate int   `env:"PASTE_STASH_UPLOAD_RATE" envDefault:"30"`

	UpstreamTimeout         time.Duration `env:"PASTE_STASH_UPSTREAM_TIMEOUT" envDefault:"15s"`
	UpstreamUserAgent       string        `env:"PASTE_STASH_UPSTREAM_USER_AGENT" envDefault:"clash-verge/v1.7.7"`
	UpstreamBreakerFailures uint32        `env:"PASTE_STASH_UPSTREAM_BREAKER_FAILURES" envDefault:"5"`
}

// Multipart framing and form fields on top of the payload itself.
const multipartOverhead = 1 << 20

func New(cfg *Config) (*http.Server, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize store, wrapped in the read cache
	backend, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	store := backend
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 {
		store = cache.New(backend, cfg.CacheSize, cfg.CacheTTL, cfg.CacheMaxValueSize)
	}

	upstream := subscription.NewClient(subscription.ClientConfig{
		Timeout:         cfg.UpstreamTimeout,
		UserAgent:       cfg.UpstreamUserAgent,
		MaxBodySize:     cfg.MaxSize,
		BreakerFailures: cfg.UpstreamBreakerFailures,
	})

	// Initialize paste service
	pasteService := paste.NewService(store, upstream, cfg.MaxSize)
	uploads := newRateLimiter(cfg.UploadRate)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /raw/{id}", rawPaste(pasteService))
	mux.HandleFunc("GET /sub/{id}", subPaste(pasteService))
	mux.HandleFunc("POST /api/upload", uploads.limit(limitBody(uploadPaste(pasteService), cfg.MaxSize+multipartOverhead)))
	mux.HandleFunc("GET /api/file/{id}", getPaste(pasteService))
	mux.HandleFunc("GET /api/admin/files", auth(cfg.AdminToken, listPastes(pasteService)))
	mux.HandleFunc("DELETE /api/admin/files/{id}", auth(cfg.AdminToken, deletePaste(pasteService)))
	mux.HandleFunc("POST /api/admin/files/delete", auth(cfg.AdminToken, deletePastes(pasteService)))
	mux.HandleFunc("POST /api/admin/cleanup", auth(cfg.AdminToken, cleanup(pasteService)))

	// Wrap the handler with logging, metrics and CORS middleware
	handler := loggingMiddleware(metricsMiddleware(cors(mux)))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		if err := closer.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	})

	return srv, nil
}

// openStore opens the configured store backend
func openStore(cfg *Config) (paste.Store, io.Closer, error) {
	switch cfg.Store {
	case "sqlite":
		store, err := sqlite.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		return store, store, nil
	case "fs":
		store, err := fs.NewStorage(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize fs store: %w", err)
		}
		return store, store, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
