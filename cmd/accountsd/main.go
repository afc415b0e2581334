package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/database"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/middleware/ratelimit"
	"github.com/goliatone/go-accounts/notifier"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	bunDB     *bun.DB
	logger    *glog.BaseLogger
	lifecycle *accounts.Lifecycle
	registry  *prometheus.Registry
	srv       router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	configPath := flag.String("config", os.Getenv("ACCOUNTS_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "accountsd failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	app := &App{
		config:   cfg,
		logger:   newLogger(cfg),
		registry: prometheus.NewRegistry(),
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}
	defer app.bunDB.Close()

	if err := WithLifecycle(ctx, app); err != nil {
		return err
	}

	WithHTTPServer(app)

	logger := app.GetLogger("app")

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Address(), "env", cfg.Server.Env)
		errc <- app.srv.Serve(cfg.Address())
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-exitSignal():
		logger.Info("shutting down", "signal", sig.String())
	}

	return app.srv.WrappedRouter().ShutdownWithTimeout(shutdownTimeout)
}

func newLogger(cfg *config.Config) *glog.BaseLogger {
	if cfg.Server.Debug {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("accountsd"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}

	return glog.NewLogger(
		glog.WithName("accountsd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Open(ctx, app.config.Database)
	if err != nil {
		return err
	}

	if err := database.Migrate(ctx, db.DB, app.config.Database.Driver); err != nil {
		_ = db.Close()
		return err
	}

	app.bunDB = db
	return nil
}

func WithLifecycle(ctx context.Context, app *App) error {
	if app.config.Auth.SigningKey == "" {
		key, err := accounts.RandomOpaqueToken()
		if err != nil {
			return err
		}
		app.config.Auth.SigningKey = key
		app.GetLogger("app").Warn("no signing key configured, using an ephemeral one")
	}

	collector, err := metrics.NewActivityCollector(app.registry)
	if err != nil {
		return err
	}

	if err := app.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	lifecycle, err := accounts.NewLifecycle(accounts.Dependencies{
		Repo:     accounts.NewRepositoryManager(app.bunDB),
		Config:   app.config,
		Notifier: newNotifier(app),
		Activity: accounts.MultiActivitySink{collector, activitymap.LogSink(app.GetLogger("activity"))},
		Logger:   app.GetLogger("lifecycle"),
	})
	if err != nil {
		return err
	}

	created, err := lifecycle.SeedAdmin(ctx, app.config.Admin.Email, app.config.Admin.Password)
	if err != nil {
		return err
	}
	if !created && app.config.Admin.Email != "" {
		app.GetLogger("app").Info("admin account already present", "email", app.config.Admin.Email)
	}

	app.lifecycle = lifecycle
	return nil
}

func newNotifier(app *App) accounts.Notifier {
	ecfg := app.config.Email
	if ecfg.Driver == "smtp" {
		return notifier.NewSMTPNotifier(notifier.SMTPConfig{
			Host:        ecfg.Host,
			Port:        ecfg.Port,
			Username:    ecfg.Username,
			Password:    ecfg.Password,
			From:        ecfg.From,
			FrontendURL: ecfg.FrontendURL,
		})
	}
	return notifier.NewLogNotifier(ecfg.FrontendURL, app.GetLogger("notifier"))
}

func WithHTTPServer(app *App) {
	controller := accounts.NewAccountController(app.lifecycle, app.config,
		accounts.WithControllerDebug(app.config.Server.Debug),
		accounts.WithControllerLogger(app.GetLogger("http")),
	)

	srv, _ := accounts.NewServer(accounts.RouterConfig{
		Controller: controller,
		RateLimit: ratelimit.Config{
			PerSecond: app.config.RateLimit.PerSecond,
			Burst:     app.config.RateLimit.Burst,
		},
		Metrics:     metrics.Handler(app.registry),
		HealthCheck: database.HealthCheck(app.bunDB),
		Logger:      app.GetLogger("http"),
	}, fiber.Config{
		AppName:               "accountsd",
		UnescapePath:          true,
		DisableStartupMessage: app.config.IsProduction(),
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	app.srv = srv
}

func exitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
