package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metabridge/catalogd/internal/clusterinfo"
	"github.com/metabridge/catalogd/internal/config"
	"github.com/metabridge/catalogd/internal/dispatcher"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/ident"
	"github.com/metabridge/catalogd/internal/idgen"
	"github.com/metabridge/catalogd/internal/lock"
	"github.com/metabridge/catalogd/internal/logging"
	"github.com/metabridge/catalogd/internal/metrics"
)

// runServe wires configuration, logging, metrics, the entity store, the
// catalog registry and the dispatcher core together, then serves the
// ops-only health/metrics surface until an interrupt or error shuts it
// down. The dispatcher itself is a library entry point for a caller
// embedding this process (e.g. an internal RPC façade outside this
// module's scope); this command stands up its dependencies and exercises
// it only through the health checker below.
func runServe(configPath string) error {
	watcher, err := config.WatchFile(configPath, nil)
	if err != nil {
		return err
	}
	defer watcher.Close()
	cfg := watcher.Current()

	logger, closeLogging, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLogging()

	instance := clusterinfo.New()
	logger.Info("starting catalogd",
		"instance_id", instance.Metadata().InstanceID,
		"version", clusterinfo.Version,
		"entity_store", cfg.EntityStore.Type,
	)

	store, err := buildEntityStore(cfg)
	if err != nil {
		logger.Error("failed to open entity store", "error", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("entity store close error", "error", err)
		}
	}()

	registry, backendClosers, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to register catalogs", "error", err)
		return err
	}
	defer func() {
		for _, c := range backendClosers {
			if err := c.Close(); err != nil {
				logger.Error("catalog backend close error", "error", err)
			}
		}
	}()

	m := metrics.New()
	locks := lock.New()
	ids := idgen.New(0)
	d := dispatcher.New(registry, store, locks, ids, logger, m)

	instance.RegisterChecker("entity_store", storeChecker(store))
	for _, cc := range cfg.Catalogs {
		instance.RegisterChecker("catalog:"+cc.Name, dispatcherChecker(d, cc.Name))
	}

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      opsRouter(instance, m),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("ops server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("ops server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// storeChecker pings the entity store with a lookup that is expected to
// miss; ErrNotFound proves the store responded, any other error means it
// is unreachable.
func storeChecker(store entitystore.Store) clusterinfo.Checker {
	return func() error {
		_, err := store.Get(context.Background(), "catalogd.internal.healthcheck-probe")
		if err == nil || errors.Is(err, entitystore.ErrNotFound) {
			return nil
		}
		return err
	}
}

// dispatcherChecker exercises the full read path — router resolution,
// the hierarchical read lock and the backend's ListSchemas — for one
// registered catalog, proving the dispatcher can actually reach it.
func dispatcherChecker(d *dispatcher.Dispatcher, catalogName string) clusterinfo.Checker {
	return func() error {
		name, err := ident.Parse(catalogName)
		if err != nil {
			return err
		}
		_, err = d.ListSchemas(context.Background(), name)
		return err
	}
}
