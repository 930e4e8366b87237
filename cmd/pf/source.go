package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/catalog/postgres"
	"github.com/alfredjeanlab/pipefilter/internal/compiler"
	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/naming"
)

// catalogSpec says where the catalog lives. Source wins over DatabaseURL.
type catalogSpec struct {
	Source      string
	DatabaseURL string
	S3Region    string
	S3Endpoint  string
}

func (s catalogSpec) String() string {
	if s.Source != "" {
		return s.Source
	}
	return "postgres"
}

func loadCatalog(ctx context.Context, spec catalogSpec) (*catalog.Static, error) {
	switch {
	case spec.Source != "":
		if src, ok := catalog.ParseS3URL(spec.Source); ok {
			src.Region, src.Endpoint = spec.S3Region, spec.S3Endpoint
			return catalog.LoadS3(ctx, src)
		}
		return catalog.LoadFile(spec.Source)
	case spec.DatabaseURL != "":
		store, err := postgres.Open(spec.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(ctx)
	}
	return nil, fmt.Errorf("no catalog: set --catalog or --database-url")
}

// compilerSpec gathers what buildCompiler needs.
type compilerSpec struct {
	Catalog   catalogSpec
	Filters   string
	Names     string
	Logger    *slog.Logger
	Publisher events.Publisher
}

func buildCompiler(ctx context.Context, spec compilerSpec) (*compiler.Compiler, error) {
	if spec.Filters == "" {
		return nil, fmt.Errorf("no filter configuration: set --filters")
	}
	names, ok := naming.ByName(spec.Names)
	if !ok {
		return nil, fmt.Errorf("unknown name converter %q", spec.Names)
	}
	cat, err := loadCatalog(ctx, spec.Catalog)
	if err != nil {
		return nil, err
	}
	file, err := compiler.LoadFile(spec.Filters)
	if err != nil {
		return nil, err
	}
	opts := []compiler.Option{compiler.WithLogger(spec.Logger), compiler.WithNameConverter(names)}
	if spec.Publisher != nil {
		opts = append(opts, compiler.WithPublisher(spec.Publisher))
	}
	return compiler.New(cat, file, opts...)
}

// localCompiler builds a compiler from the global flags.
func localCompiler(ctx context.Context) (*compiler.Compiler, error) {
	return buildCompiler(ctx, compilerSpec{
		Catalog: flagCatalogSpec(catalogSource),
		Filters: filtersPath,
		Names:   nameConverter,
		Logger:  logger,
	})
}
