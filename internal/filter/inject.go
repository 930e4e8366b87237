package filter

import (
	"errors"
	"log/slog"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/naming"
)

// Collaborators are the services handed to filters that ask for them.
type Collaborators struct {
	Catalog catalog.Catalog
	Logger  *slog.Logger
	Names   naming.Converter
}

// Inject hands collaborators to f and, recursively, to the filters it wraps.
func Inject(f Filter, c Collaborators) {
	if f == nil {
		return
	}
	if a, ok := f.(CatalogAware); ok && c.Catalog != nil {
		a.SetCatalog(c.Catalog)
	}
	if a, ok := f.(LoggerAware); ok && c.Logger != nil {
		a.SetLogger(c.Logger)
	}
	if a, ok := f.(NameConverterAware); ok && c.Names != nil {
		a.SetNameConverter(c.Names)
	}
	if comp, ok := f.(Composite); ok {
		for _, inner := range comp.Inner() {
			Inject(inner, c)
		}
	}
}

// Validate runs the configuration checks of f and every filter it wraps.
func Validate(f Filter) error {
	if f == nil {
		return &ConfigError{Filter: "unknown", Err: ErrMissingFilter}
	}
	var errs []error
	if v, ok := f.(Validator); ok {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if comp, ok := f.(Composite); ok {
		for _, inner := range comp.Inner() {
			if err := Validate(inner); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
