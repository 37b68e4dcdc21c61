// Package app arma el servicio a partir de la configuración: backend remoto, storage,
// verifier, métricas, controller y router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pet-health-sync/internal/adapters/auth/jwtverifier"
	"pet-health-sync/internal/adapters/remote/rest"
	"pet-health-sync/internal/adapters/remote/sqlstore"
	"pet-health-sync/internal/adapters/storage/memory"
	"pet-health-sync/internal/adapters/storage/s3"
	"pet-health-sync/internal/config"
	"pet-health-sync/internal/controller"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/mapper"
	"pet-health-sync/internal/metrics"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/auth"
	"pet-health-sync/internal/ports/remote"
	"pet-health-sync/internal/ports/storage"
	"pet-health-sync/internal/router"
	"pet-health-sync/internal/store"
)

type App struct {
	Controller *controller.Controller
	Handler    http.Handler
	Metrics    *prometheus.Registry

	log     logger.Logger
	closers []func() error
}

func Build(ctx context.Context, cfg config.AppConfig, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	reg := schema.Default()
	a := &App{log: log}

	rc, err := a.buildRemote(ctx, cfg.Remote, reg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	st, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	verifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if verifier == nil {
		log.Warn("auth.jwt_secret not set: accepting X-Debug-User-ID headers", nil)
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sm, err := metrics.NewSyncMetrics(a.Metrics)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("sync metrics: %w", err)
	}

	mapOpts := []mapper.Option{mapper.WithLogger(log)}
	ctlOpts := []controller.Option{
		controller.WithLogger(log),
		controller.WithMetrics(sm),
		controller.WithTimeout(cfg.SyncTimeout),
	}
	if st != nil {
		mapOpts = append(mapOpts, mapper.WithURLRefresher(mapper.NewURLRefresher(st, 0)))
		ctlOpts = append(ctlOpts, controller.WithStorage(st))
	}

	a.Controller = controller.New(store.New(reg), rc, mapper.New(reg, mapOpts...), ctlOpts...)
	a.Handler = router.NewRouter(router.Options{
		Controller:   a.Controller,
		AuthVerifier: verifier,
		Logger:       log,
		Metrics:      a.Metrics,
	})

	log.Info("app wired", map[string]any{
		"remote":  cfg.Remote.Driver,
		"storage": cfg.Storage.Driver,
	})
	return a, nil
}

// Close libera conexiones abiertas (pool SQL).
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildRemote devuelve nil para "none": el controller lo trata como no configurado y usa el seed.
func (a *App) buildRemote(ctx context.Context, cfg config.RemoteConfig, reg *schema.Registry) (remote.Client, error) {
	switch cfg.Driver {
	case config.RemoteNone:
		return nil, nil

	case config.RemoteREST:
		c, err := rest.NewClient(reg, rest.Config{BaseURL: cfg.URL, APIKey: cfg.APIKey, Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("rest remote: %w", err)
		}
		if !c.IsConfigured() {
			a.log.Warn("rest remote missing url or api key: sessions will be seed-backed", nil)
		}
		return c, nil

	case config.RemotePostgres, config.RemoteSQLite:
		d, err := sqlstore.DialectByName(cfg.Driver)
		if err != nil {
			return nil, err
		}
		db, err := sqlstore.Open(d, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d.Name, err)
		}
		s := sqlstore.New(db, d, reg)
		a.closers = append(a.closers, s.Close)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
}

func buildStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.StorageNone:
		return nil, nil
	case config.StorageMemory:
		return memory.NewBlobs("", cfg.URLTTL), nil
	case config.StorageS3:
		s, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			URLTTL:    cfg.URLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func buildVerifier(cfg config.AuthConfig) (auth.AuthVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, nil
	}
	v, err := jwtverifier.New(jwtverifier.Config{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer})
	if err != nil {
		return nil, err
	}
	return v, nil
}
