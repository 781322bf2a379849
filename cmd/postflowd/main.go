package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/postflow/modules/api"
	"github.com/dmitrymomot/postflow/pkg/config"
	"github.com/dmitrymomot/postflow/pkg/dispatcher"
	"github.com/dmitrymomot/postflow/pkg/httpserver"
	"github.com/dmitrymomot/postflow/pkg/lock"
	"github.com/dmitrymomot/postflow/pkg/logger"
	"github.com/dmitrymomot/postflow/pkg/media"
	"github.com/dmitrymomot/postflow/pkg/pg"
	"github.com/dmitrymomot/postflow/pkg/postgres"
	"github.com/dmitrymomot/postflow/pkg/publisher"
	"github.com/dmitrymomot/postflow/pkg/publisher/facebook"
	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/requestid"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

type appConfig struct {
	Env          string        `env:"APP_ENV" envDefault:"development"`
	Name         string        `env:"APP_NAME" envDefault:"postflowd"`
	CalendarFile string        `env:"CALENDAR_FILE"`
	RedisURL     string        `env:"REDIS_URL"`
	TickInterval time.Duration `env:"DISPATCH_TICK_INTERVAL" envDefault:"1m"`

	FacebookAppID     string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret string `env:"FACEBOOK_APP_SECRET"`
	FacebookPageID    string `env:"FACEBOOK_PAGE_ID"`
	FacebookPageToken string `env:"FACEBOOK_PAGE_TOKEN"`

	MediaBucket string `env:"MEDIA_S3_BUCKET"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return err
	}
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, appCfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, postgres.MigrationsFS(), log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	cal, err := loadCalendar(ctx, repo, appCfg.CalendarFile, log)
	if err != nil {
		return err
	}

	q, err := queue.New(repo, cal, queue.WithLogger(log))
	if err != nil {
		return err
	}

	registry := publisher.NewRegistry()
	if appCfg.FacebookAppID != "" {
		fb, err := buildFacebook(ctx, appCfg, log)
		if err != nil {
			return err
		}
		registry.Register(fb)
	} else {
		log.Warn("no facebook credentials configured, publishing disabled for facebook")
	}

	dispOpts := []dispatcher.Option{
		dispatcher.WithLogger(log),
		dispatcher.WithRedistributor(q),
		dispatcher.WithTickInterval(appCfg.TickInterval),
	}
	if appCfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		locker, err := lock.NewRedisLocker(client)
		if err != nil {
			return err
		}
		dispOpts = append(dispOpts, dispatcher.WithLocker(locker))
		log.Info("using redis publish locks")
	}

	disp, err := dispatcher.New(repo, registry, dispOpts...)
	if err != nil {
		return err
	}

	apiSvc, err := api.New(q, disp, api.WithLogger(log), api.WithCalendarStore(repo))
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Get("/healthz", httpserver.HealthCheckHandler(log))
	router.Get("/readyz", httpserver.HealthCheckHandler(log, pg.Healthcheck(pool)))
	router.Mount("/", apiSvc.Router())

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(disp.Run(ctx))
	g.Go(func() error {
		return srv.Run(ctx, router)
	})

	log.Info("postflow started",
		slog.String("env", appCfg.Env),
		slog.String("addr", httpCfg.Addr),
		slog.Duration("tick", appCfg.TickInterval))

	return g.Wait()
}

// loadCalendar prefers persisted slots; an empty table is seeded from the
// optional YAML calendar file.
func loadCalendar(ctx context.Context, repo *postgres.Repository, path string, log *slog.Logger) (*slots.Calendar, error) {
	cal, err := repo.LoadCalendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	if len(cal.Platforms()) > 0 || path == "" {
		return cal, nil
	}

	cal, err = slots.LoadCalendarFile(path)
	if err != nil {
		return nil, fmt.Errorf("load calendar file %s: %w", path, err)
	}
	if err := repo.SaveCalendar(ctx, cal); err != nil {
		return nil, fmt.Errorf("persist calendar: %w", err)
	}
	log.Info("calendar seeded from file", slog.String("path", path))
	return cal, nil
}

func buildFacebook(ctx context.Context, cfg appConfig, log *slog.Logger) (*facebook.Client, error) {
	creds := publisher.NewStaticCredentials()
	if cfg.FacebookPageID != "" && cfg.FacebookPageToken != "" {
		creds.Set(facebook.Platform, cfg.FacebookPageID, &oauth2.Token{AccessToken: cfg.FacebookPageToken})
	}

	opts := []facebook.Option{}
	if cfg.MediaBucket != "" {
		var mediaCfg media.S3Config
		if err := config.Load(&mediaCfg); err != nil {
			return nil, err
		}
		resolver, err := media.NewS3Resolver(ctx, mediaCfg)
		if err != nil {
			return nil, fmt.Errorf("build media resolver: %w", err)
		}
		opts = append(opts, facebook.WithMediaResolver(resolver))
		log.Info("media resolver enabled", slog.String("bucket", mediaCfg.Bucket))
	}

	return facebook.New(cfg.FacebookAppID, cfg.FacebookAppSecret, creds, opts...)
}
