// Package app builds the session core from configuration. The daemon, the
// CLI and the mobile bindings all start from here.
package app

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/firenet/internal/api"
	"github.com/harrylevesque/firenet/internal/auth"
	"github.com/harrylevesque/firenet/internal/certs"
	"github.com/harrylevesque/firenet/internal/client"
	"github.com/harrylevesque/firenet/internal/config"
	"github.com/harrylevesque/firenet/internal/crypto"
	"github.com/harrylevesque/firenet/internal/device"
	"github.com/harrylevesque/firenet/internal/dispatch"
	"github.com/harrylevesque/firenet/internal/files"
	"github.com/harrylevesque/firenet/internal/prefs"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
	"github.com/harrylevesque/firenet/internal/store"
	"github.com/harrylevesque/firenet/internal/transport"
	"github.com/harrylevesque/firenet/internal/utils"
	"github.com/harrylevesque/firenet/internal/workers"
)

// Options override platform collaborators. Zero values pick the desktop defaults.
type Options struct {
	HardwareID device.HardwareIDProvider
	Transport  transport.Stopper
	// Deliver runs UI callbacks. Defaults to a serial executor.
	Deliver statussync.Deliverer
	// Logger replaces the configured log output.
	Logger *slog.Logger
}

// App is the wired session core.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store  prefs.Store
	Secure prefs.Store

	Dispatcher  *dispatch.Dispatcher
	Client      *client.Client
	Device      *device.Resolver
	Session     *auth.SessionStore
	Cache       *statussync.Cache
	Sync        *statussync.Synchronizer
	Service     *auth.Service
	Board       *api.Board
	Invalidator *push.Invalidator
	Push        *push.Handler
	Listener    *push.Listener
	Refresher   *statussync.Refresher

	logFile *utils.Logger
	pool    *workers.Pool
	serial  *workers.Serial
}

// New builds the graph. Close releases it.
func New(cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Logger = opts.Logger
	if a.Logger == nil {
		a.logFile, err = utils.NewLogger(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		a.Logger = a.logFile.Logger
	}
	logger := a.Logger

	if a.Store, a.Secure, err = openStores(cfg, logger); err != nil {
		return nil, err
	}

	var roots *x509.CertPool
	dopts := []dispatch.Option{
		dispatch.WithAttemptTimeout(cfg.Remote.AttemptTimeout),
		dispatch.WithLogger(logger),
	}
	if cfg.Remote.CADir != "" {
		roots, err = certs.NewCertManager(cfg.Remote.CADir).Pool(logger)
		if err != nil {
			return nil, fmt.Errorf("load CA dir: %w", err)
		}
		dopts = append(dopts, dispatch.WithRootCAs(roots))
	}
	a.Dispatcher = dispatch.New(cfg.Remote.Domains, dopts...)
	a.Client = client.New(a.Dispatcher, logger)

	hw := opts.HardwareID
	if hw == nil {
		hw = utils.HardwareIDProvider{}
	}
	model := cfg.App.DeviceModel
	if model == "" {
		model = utils.DeviceModel()
	}
	a.Device = device.NewResolver(hw, model, a.Store.Group(prefs.GroupDevice), logger)

	a.Session = auth.NewSessionStore(a.Store.Group(prefs.GroupAuth), logger)
	a.Cache = statussync.NewCache(a.Secure.Group(prefs.GroupSecure), logger)

	a.pool = workers.NewPool(cfg.Workers.MaxConcurrent, logger)
	deliver := opts.Deliver
	if deliver == nil {
		a.serial = workers.NewSerial()
		deliver = a.serial
	}

	a.Sync = statussync.New(statussync.Config{
		Fetcher:  a.Client,
		Cache:    a.Cache,
		Session:  a.Session,
		Secure:   a.Secure,
		Tokens:   a.Session,
		Pool:     a.pool,
		Deliver:  deliver,
		Deadline: cfg.Sync.Deadline,
		Logger:   logger,
	})

	a.Board = api.NewBoard(0, logger)
	if cred, cerr := a.Session.Credential(); cerr == nil && cred.Valid() {
		a.Board.Restore(cred.Username)
	}

	a.Service = auth.NewService(auth.Config{
		Remote:     a.Client,
		Session:    a.Session,
		Sync:       a.Sync,
		Device:     a.Device,
		AppPrefs:   a.Store.Group(prefs.GroupApp),
		Secure:     a.Secure,
		Sink:       a.Board,
		Pool:       a.pool,
		Deliver:    deliver,
		AppVersion: cfg.App.Version,
		Platform:   cfg.App.Platform,
		Logger:     logger,
	})

	stopper := opts.Transport
	if stopper == nil {
		if len(cfg.Transport.StopCommand) > 0 {
			stopper = transport.NewCommandStopper(cfg.Transport.StopCommand, logger)
		} else {
			stopper = transport.Nop{}
		}
	}
	a.Invalidator = push.NewInvalidator(push.InvalidatorConfig{
		Secure:    a.Secure,
		Session:   a.Session,
		Transport: stopper,
		Notifier:  a.Board,
		Sink:      a.Board,
		AppName:   cfg.App.Name,
		Logger:    logger,
	})
	a.Push = push.NewHandler(a.Invalidator, a.Board, cfg.App.Name, logger)

	if cfg.Push.Enabled {
		a.Listener = push.NewListener(push.ListenerConfig{
			Domains:        cfg.Remote.Domains,
			Path:           cfg.Push.Path,
			Token:          a.Session.Token,
			Handler:        a.Push,
			ReconnectDelay: cfg.Push.ReconnectDelay,
			RootCAs:        roots,
			Logger:         logger,
		})
	}

	a.Refresher = statussync.NewRefresher(statussync.RefresherConfig{
		Refresh: func(ctx context.Context) {
			if a.Session.Token() == "" {
				return
			}
			o := a.Service.Refresh(ctx)
			logger.Debug("background refresh", "outcome", o.Kind.String(), "cached", o.Cached)
		},
		KeepAlive:         a.Service.KeepAlive,
		Interval:          cfg.Sync.RefreshInterval,
		KeepAliveInterval: cfg.Sync.KeepAliveInterval,
		ManualInterval:    cfg.Sync.ManualRefreshInterval,
		Logger:            logger,
	})
	return a, nil
}

// openStores opens the plain prefs store and the sealed store behind it.
// The sealed store is a separate backend namespace, so wiping it leaves the
// device identity and app prefs alone.
func openStores(cfg *config.Config, logger *slog.Logger) (prefs.Store, prefs.Store, error) {
	plain, inner, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (prefs.Store, prefs.Store, error) {
		_ = plain.Close()
		_ = inner.Close()
		return nil, nil, err
	}

	master, err := masterKey(cfg)
	if err != nil {
		return fail(err)
	}
	secure, err := prefs.NewSealed(inner, master)
	if err != nil {
		return fail(err)
	}
	logger.Debug("stores opened", "backend", cfg.Storage.Backend)
	return plain, secure, nil
}

func openBackend(cfg *config.Config) (prefs.Store, prefs.Store, error) {
	s := cfg.Storage
	switch s.Backend {
	case config.BackendMemory:
		return prefs.NewMemory(), prefs.NewMemory(), nil
	case config.BackendFile:
		plain, err := files.NewPrefsStore(s.Dir)
		if err != nil {
			return nil, nil, err
		}
		inner, err := files.NewPrefsStore(filepath.Join(s.Dir, "secure"))
		if err != nil {
			return nil, nil, err
		}
		return plain, inner, nil
	case config.BackendSQLite:
		if err := utils.EnsureDir(filepath.Dir(s.SQLitePath)); err != nil {
			return nil, nil, err
		}
		plain, err := store.NewSQLiteStore(s.SQLitePath, "prefs")
		if err != nil {
			return nil, nil, err
		}
		inner, err := store.NewSQLiteStore(s.SQLitePath, prefs.GroupSecure)
		if err != nil {
			_ = plain.Close()
			return nil, nil, err
		}
		return plain, inner, nil
	case config.BackendRedis:
		plain, err := store.NewRedisStore(s.RedisAddr, s.RedisDB, s.RedisPrefix+":plain")
		if err != nil {
			return nil, nil, err
		}
		inner, err := store.NewRedisStore(s.RedisAddr, s.RedisDB, s.RedisPrefix+":secure")
		if err != nil {
			_ = plain.Close()
			return nil, nil, err
		}
		return plain, inner, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}

// masterKey returns an ephemeral key for the memory backend and the
// persisted one otherwise.
func masterKey(cfg *config.Config) ([]byte, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return crypto.GenerateKey(), nil
	}
	if err := utils.EnsureDir(filepath.Dir(cfg.Secure.MasterKeyFile)); err != nil {
		return nil, err
	}
	return files.LoadOrCreateMasterKey(cfg.Secure.MasterKeyFile, cfg.Secure.GenerateKey)
}

// Handler returns the control API.
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Service:   a.Service,
		Board:     a.Board,
		Push:      a.Push,
		Refresher: a.Refresher,
		Logger:    a.Logger,
	})
}

// RunBackground runs the refresher and, when enabled, the push listener
// until ctx is cancelled.
func (a *App) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Refresher.Run(ctx) })
	if a.Listener != nil {
		g.Go(func() error { return a.Listener.Run(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reopen reopens the log file after rotation.
func (a *App) Reopen() error {
	if a.logFile == nil {
		return nil
	}
	return a.logFile.Reopen()
}

// Close stops the workers and closes the stores and the log file.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.serial != nil {
		a.serial.Close()
	}
	var errs []error
	if a.Secure != nil {
		errs = append(errs, a.Secure.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
