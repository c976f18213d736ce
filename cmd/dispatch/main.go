package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/banyanstay/notify-dispatch/internal/api"
	"github.com/banyanstay/notify-dispatch/internal/compliance"
	"github.com/banyanstay/notify-dispatch/internal/config"
	"github.com/banyanstay/notify-dispatch/internal/engine"
	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/phone"
	"github.com/banyanstay/notify-dispatch/internal/provider"
	"github.com/banyanstay/notify-dispatch/internal/ratelimit"
	"github.com/banyanstay/notify-dispatch/internal/repo"
	"github.com/banyanstay/notify-dispatch/internal/scheduler"
	"github.com/banyanstay/notify-dispatch/internal/settings"
	"github.com/banyanstay/notify-dispatch/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	settingsStore, err := settings.Load(cfg.Settings.Path)
	if err != nil {
		log.Fatal(err)
	}
	dispatch := settingsStore.Current()

	var (
		messages repo.MessageStore
		events   repo.EventLog
	)
	if cfg.Database.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.Database.PostgresURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatal(err)
		}
		messages = repo.NewPostgresMessageStore(db)
		events = repo.NewPostgresEventLog(db)
	} else {
		slog.Warn("POSTGRES_URL not set, using in-memory stores")
		messages = repo.NewMemoryMessageStore()
		events = repo.NewMemoryEventLog()
	}

	ceilings := func() ratelimit.Ceilings {
		rl := settingsStore.Current().RateLimit
		return ratelimit.Ceilings{
			PerMinute: rl.PerMinute,
			PerHour:   rl.PerHour,
			PerDay:    rl.PerDay,
		}
	}

	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, ceilings)
	} else {
		limiter = ratelimit.NewMemoryLimiter(ceilings)
	}

	gate, err := compliance.NewGate(dispatch.Compliance)
	if err != nil {
		log.Fatal(err)
	}

	registry := provider.NewRegistry()
	registry.Rebuild(dispatch.Providers)

	templates := template.NewMemoryStore()
	for _, tc := range dispatch.Templates {
		templates.Put(&model.Template{
			ID:       tc.ID,
			Category: model.TemplateCategory(tc.Category),
			Body:     tc.Body,
		})
	}

	eng := engine.New(engine.Deps{
		Settings:  settingsStore,
		Messages:  messages,
		Events:    events,
		Templates: templates,
		Registry:  registry,
		Limiter:   limiter,
		Gate:      gate,
		Phones:    phone.NewNormalizer(os.Getenv("PHONE_REGION")),
	})

	sched, err := scheduler.New(cfg.Drain.Interval, func(ctx context.Context) (int, int, int, error) {
		return eng.DrainDue(ctx, cfg.Drain.BatchSize)
	})
	if err != nil {
		log.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.Router(api.NewHandler(eng, sched, messages)),
	}

	go func() {
		slog.Info("dispatch server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
}
