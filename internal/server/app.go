// Package server wires the auth service together: database and migrations,
// delivery channels, the SMS throttle, business services, the cleanup
// janitor and the HTTP and gRPC servers. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/function"
	"github.com/dmitrijs2005/eventhub/internal/server/httpserver"
	"github.com/dmitrijs2005/eventhub/internal/server/metrics"
	"github.com/dmitrijs2005/eventhub/internal/server/notify"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"github.com/dmitrijs2005/eventhub/internal/server/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	gs "github.com/dmitrijs2005/eventhub/internal/server/grpc"
)

const tracerName = "github.com/dmitrijs2005/eventhub/internal/server/function"

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry
	handler  *function.Handler
	janitor  *services.Janitor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.DebugMode)

	db, err := dbx.Open(ctx, c.DatabaseDSN, 5)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	store := dbx.NewStore(db)

	app := &App{config: c, logger: logger, db: db, registry: prometheus.NewRegistry()}

	sms, email, err := app.senders(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var limiter services.SendLimiter
	if c.RedisURL != "" {
		app.redis, err = throttle.Connect(c.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		limiter = throttle.NewRedisLimiter(app.redis, c.SMSResendInterval)
	}

	hasher := auth.NewPBKDF2Hasher()
	sessions := services.NewSessionService(store, rm, c)
	codes := services.NewCodeService(store, rm, sms, limiter, c, logger)
	resets := services.NewResetService(store, rm, hasher, sessions, email, c, logger)
	us := services.NewUserService(store, rm, hasher, codes, resets, sessions, c, logger)

	m := metrics.New()
	m.Register(app.registry)
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app.handler = function.NewHandler(us, m, otel.Tracer(tracerName), logger, c.DebugMode)
	app.janitor = services.NewJanitor(store, rm, logger)

	return app, nil
}

// senders picks AWS delivery when a region is configured and falls back to
// writing messages to the log otherwise.
func (app *App) senders(ctx context.Context) (services.SMSSender, services.EmailSender, error) {
	if app.config.AWSRegion == "" {
		app.logger.Warn(ctx, "AWS region not set, SMS and email are written to the log")
		l := notify.NewLogSender(app.logger)
		return l, l, nil
	}

	awsCfg, err := notify.LoadAWSConfig(ctx, app.config)
	if err != nil {
		return nil, nil, fmt.Errorf("aws config error: %w", err)
	}
	return notify.NewSNSSender(awsCfg, app.config.SMSSenderID, app.config.AWSBaseEndpoint),
		notify.NewSESSender(awsCfg, app.config.EmailFrom, app.config.AWSBaseEndpoint),
		nil
}

// Handler returns the action dispatcher, e.g. for a serverless entrypoint.
func (app *App) Handler() *function.Handler {
	return app.handler
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpserver.NewRouter(app.handler, app.db, app.registry, app.logger)
	s := httpserver.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, 0)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.janitor.Run(ctx, app.config.CleanupInterval)
	}()

	wg.Wait()

	app.close(context.Background())
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
