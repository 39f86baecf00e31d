package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asaskevich/EventBus"

	apiadapter "github.com/ericfisherdev/qrsignin/internal/adapter/driven/api"
	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/camera"
	redisadapter "github.com/ericfisherdev/qrsignin/internal/adapter/driven/redis"
	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/secretbox"
	sqliteadapter "github.com/ericfisherdev/qrsignin/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/qrsignin/internal/application"
	"github.com/ericfisherdev/qrsignin/internal/config"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// app is the composition root shared by every command.
type app struct {
	cfg        *config.Config
	session    *application.SessionController
	permission *application.PermissionGate
	scanner    *application.ScanService
	status     *application.StatusService
	bus        EventBus.Bus

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	box, err := secretbox.New(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	if cfg.SecretKey == nil {
		slog.Warn("QRSIGNIN_SECRET_KEY not set, the credential cannot be stored")
	}

	store, err := a.openStore(ctx, box)
	if err != nil {
		a.Close()
		return nil, err
	}

	httpClient := apiadapter.NewHTTPClient(cfg.HTTPTimeout)

	authClient, err := apiadapter.NewClient(httpClient, cfg.APIURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	dispatcher, err := apiadapter.NewDispatcher(httpClient, cfg.ConfirmMode, cfg.ConfirmURL, cfg.AllowedHosts)
	if err != nil {
		a.Close()
		return nil, err
	}

	var access driven.CameraAccess = camera.AlwaysGranted{}
	if cfg.HasCameraDevice() {
		access = camera.NewDeviceAccess(cfg.CameraDevice)
	}

	a.bus = EventBus.New()
	a.session = application.NewSessionController(store, authClient, cfg.DeviceName)
	a.permission = application.NewPermissionGate(access)
	a.scanner = application.NewScanService(
		a.session,
		a.permission,
		dispatcher,
		application.NewScanDebouncer(cfg.Cooldown),
		a.bus,
	)
	a.status = application.NewStatusService(a.session, a.permission, a.scanner, cfg.ConfirmMode)

	return a, nil
}

// openStore opens the configured credential backend and registers its closer.
func (a *app) openStore(ctx context.Context, box *secretbox.Box) (driven.CredentialStore, error) {
	switch a.cfg.Store {
	case config.StoreRedis:
		client, err := redisadapter.Dial(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		slog.Debug("credential store opened", "backend", "redis")
		return redisadapter.New(client, box, redisadapter.DefaultKey), nil

	case config.StoreSQLite:
		// Open database (dual reader/writer with WAL mode).
		db, err := sqliteadapter.NewDB(ctx, a.cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return nil, err
		}
		slog.Debug("credential store opened", "backend", "sqlite", "path", db.Path())
		return sqliteadapter.NewCredentialRepo(db, box), nil

	default:
		return nil, fmt.Errorf("unknown credential store %q", a.cfg.Store)
	}
}

// Close releases the credential store.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("error closing credential store", "error", err)
		}
	}
	a.closers = nil
}
