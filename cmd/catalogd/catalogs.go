package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalog/filesystem"
	"github.com/metabridge/catalogd/internal/catalog/lakehouse"
	"github.com/metabridge/catalogd/internal/catalog/relational"
	"github.com/metabridge/catalogd/internal/catalog/stream"
	"github.com/metabridge/catalogd/internal/config"
	"github.com/metabridge/catalogd/internal/ident"
	"github.com/metabridge/catalogd/internal/principal"
	"github.com/metabridge/catalogd/internal/propertymeta"
)

// buildRegistry registers every configured catalog against its driver's
// reference backend, returning the populated registry plus the set of
// backends that hold resources worth releasing on shutdown.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*catalog.Registry, []io.Closer, error) {
	registry := catalog.NewRegistry()
	var closers []io.Closer

	for _, cc := range cfg.Catalogs {
		name, err := ident.Parse(cc.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog %s: %w", cc.Name, err)
		}
		if name.Len() != 2 {
			return nil, nil, fmt.Errorf("catalog %s: expected a two-level catalog identifier", cc.Name)
		}

		meta, err := buildPropertiesMeta(cc)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog %s: %w", cc.Name, err)
		}

		var handle catalog.Handle
		switch cc.Driver {
		case "relational":
			backend, err := relational.Open(cc.Relational.DriverName, cc.Relational.DSN, relational.Dialect(cc.Relational.Dialect))
			if err != nil {
				return nil, nil, fmt.Errorf("catalog %s: %w", cc.Name, err)
			}
			closers = append(closers, backend)
			handle = &catalog.SimpleHandle{
				Ops:    backend,
				Meta:   meta,
				Cap:    catalog.Capability{Managed: false},
				Hidden: meta.HiddenKeys,
			}

		case "lakehouse":
			backend := lakehouse.New(func() string { return principal.Anonymous }, time.Now)
			handle = &catalog.SimpleHandle{
				Ops:    backend,
				Meta:   meta,
				Cap:    catalog.Capability{Managed: true},
				Hidden: meta.HiddenKeys,
			}

		case "stream":
			backend, err := stream.Open(cc.Stream.Hosts, cc.Stream.Keyspace)
			if err != nil {
				return nil, nil, fmt.Errorf("catalog %s: %w", cc.Name, err)
			}
			closers = append(closers, closerFunc(backend.Close))
			handle = &catalog.SimpleHandle{
				Ops:    backend,
				Meta:   meta,
				Cap:    catalog.Capability{Managed: false},
				Hidden: meta.HiddenKeys,
			}

		case "filesystem":
			backend, err := filesystem.Open(cc.Filesystem.Root, logger.With("catalog", cc.Name))
			if err != nil {
				return nil, nil, fmt.Errorf("catalog %s: %w", cc.Name, err)
			}
			closers = append(closers, backend)
			handle = &catalog.SimpleHandle{
				Ops:    backend,
				Meta:   meta,
				Cap:    catalog.Capability{Managed: false},
				Hidden: meta.HiddenKeys,
			}

		default:
			return nil, nil, fmt.Errorf("catalog %s: unsupported driver %q", cc.Name, cc.Driver)
		}

		registry.Register(name, handle)
		logger.Info("registered catalog", "name", cc.Name, "driver", cc.Driver)
	}

	return registry, closers, nil
}

func buildPropertiesMeta(cc config.CatalogConfig) (*propertymeta.Validator, error) {
	if cc.PropertiesSchema == "" {
		return propertymeta.Unrestricted(), nil
	}
	return propertymeta.Compile([]byte(cc.PropertiesSchema))
}

// closerFunc adapts a plain func() to io.Closer, since stream.Backend's
// Close takes no error return while the others do.
type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
