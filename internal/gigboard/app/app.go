package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp/google"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/metrics"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/session"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store/drivers/file"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store/drivers/memory"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store/drivers/sqlite"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Options carries the pieces a front-end supplies.
type Options struct {
	Navigator session.Navigator

	// Present shows the identity provider's sign-in URL to the user.
	Present func(authURL string)
}

// Application wires the session controller to its store, backend client,
// metrics and identity provider.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store    store.Store
	pending  *store.PendingStore
	client   *marketsdk.SDKClient
	registry *prometheus.Registry
	metrics  *metrics.Collector

	controller *session.Controller
	google     *google.Loader

	metricsServer *http.Server
}

// New creates a new Application with all dependencies initialized.
func New(cfg Config, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gigboard",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.metrics = metrics.NewCollector(app.registry)

	app.pending = store.NewPendingStore(cfg.PendingTTL)

	app.client = marketsdk.NewSDKClient(cfg.APIURL)
	app.client.HTTPClient = marketsdk.NewHTTPClient(cfg.HTTPTimeout, cfg.AuthRateLimit, app.logger)

	app.controller = session.New(session.Config{
		Client:    app.client,
		Store:     app.store,
		Pending:   app.pending,
		Navigator: opts.Navigator,
		Metrics:   app.metrics,
		Logger:    app.logger,
	})

	if cfg.GoogleClientID != "" {
		app.google = google.NewLoader(google.Config{
			Issuer:       cfg.GoogleIssuer,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackAddr: cfg.GoogleCallbackAddr,
			HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout, Transport: slogx.NewTransport(http.DefaultTransport, app.logger)},
			Present:      opts.Present,
			Logger:       app.logger,
		})
	}

	if cfg.MetricsAddr != "" {
		app.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.NewRouter(app.registry),
			ReadHeaderTimeout: 3 * time.Second,
		}
	}

	return app, nil
}

func (app *Application) Logger() *slog.Logger { return app.logger }

func (app *Application) Controller() *session.Controller { return app.controller }

// Registry exposes the metrics registry, mostly for tests.
func (app *Application) Registry() *prometheus.Registry { return app.registry }

// Start restores any persisted session, begins identity provider discovery
// and starts the metrics listener when configured.
func (app *Application) Start(ctx context.Context) error {
	if app.metricsServer != nil {
		go func() {
			if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("metrics server failed", "error", err)
			}
		}()
		app.logger.Info("metrics server listening", "addr", app.cfg.MetricsAddr)
	}

	if app.google != nil {
		app.google.Start(ctx)
	}

	if err := app.controller.Restore(ctx); err != nil {
		// A rejected or unreachable profile call is already reflected in
		// the snapshot; the caller decides what to show.
		app.logger.Debug("session restore incomplete", "error", err)
	}
	return nil
}

// NewBridge returns a bridge that forwards provider credentials into the
// controller. done receives the outcome exactly once unless the bridge is
// unmounted first: nil or the login error after a credential, or the bridge
// error when the provider never became usable.
func (app *Application) NewBridge(ctx context.Context, done func(error)) *idp.Bridge {
	var loader idp.Loader
	if app.google != nil {
		loader = app.google
	}

	return idp.NewBridge(idp.Config{
		ClientID:     app.cfg.GoogleClientID,
		PollInterval: app.cfg.IDPPollInterval,
		Timeout:      app.cfg.IDPTimeout,
		Loader:       loader,
		OnCredential: func(credential string) {
			done(app.controller.LoginWithIdentityProvider(ctx, credential))
		},
		OnError: func(err error) {
			if lerr := app.googleErr(); lerr != nil {
				err = fmt.Errorf("%w: %w", err, lerr)
			}
			done(err)
		},
		Metrics: app.metrics,
		Logger:  app.logger,
	})
}

func (app *Application) googleErr() error {
	if app.google == nil {
		return nil
	}
	return app.google.Err()
}

// Shutdown stops the metrics listener and closes the token store.
func (app *Application) Shutdown() error {
	if app.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()

		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("graceful metrics shutdown failed", "error", err)
			_ = app.metricsServer.Close()
		}
	}

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing token store", "error", err)
		return err
	}
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.TokenStore {
	case StoreMemory:
		app.store = memory.NewStore()
	case StoreFile:
		s, err := file.NewStore(app.cfg.TokenStorePath, app.cfg.TokenStorePassphrase)
		if err != nil {
			return fmt.Errorf("failed to initialize token file: %w", err)
		}
		app.store = s
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(app.cfg.TokenStorePath), 0o700); err != nil {
			return fmt.Errorf("failed to create token database directory: %w", err)
		}
		s, err := sqlite.NewStore(fmt.Sprintf("file:%s", app.cfg.TokenStorePath))
		if err != nil {
			return fmt.Errorf("failed to initialize token database: %w", err)
		}
		app.store = s
	}

	app.logger.Debug("token store ready", "driver", app.cfg.TokenStore)
	return nil
}
