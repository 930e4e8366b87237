package filter

import (
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/naming"
)

// base carries the collaborators and property allow-list shared by the
// property-bag filters.
type base struct {
	// properties maps enabled properties to per-property configuration
	// (strategy, default direction, null mode). Nil enables every
	// top-level property.
	properties map[string]string
	catalog    catalog.Catalog
	logger     *slog.Logger
	names      naming.Converter
}

func newBase(properties map[string]string) base {
	return base{properties: properties}
}

func (b *base) SetCatalog(c catalog.Catalog)        { b.catalog = c }
func (b *base) SetLogger(l *slog.Logger)            { b.logger = l }
func (b *base) SetNameConverter(c naming.Converter) { b.names = c }

func (b *base) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// reject logs discarded user input.
func (b *base) reject(filter, property string, value any, reason string) {
	b.log().Info("invalid filter ignored",
		"filter", filter,
		"property", property,
		"value", value,
		"reason", reason,
	)
}

func (b *base) denormalize(property string) string {
	return naming.DenormalizePath(b.names, property)
}

func (b *base) normalize(property string) string {
	return naming.NormalizePath(b.names, property)
}

// enabled reports whether property may be filtered. Nested properties need
// an explicit allow-list entry.
func (b *base) enabled(property string) bool {
	if b.properties == nil {
		return !strings.Contains(property, ".")
	}
	_, ok := b.properties[property]
	return ok
}

// config returns the per-property configuration value.
func (b *base) config(property string) string {
	return b.properties[property]
}

func (b *base) resolve(entity, property string) (PropertyPath, bool) {
	if b.catalog == nil {
		return PropertyPath{}, false
	}
	pp, err := Resolve(b.catalog, entity, property)
	if err != nil {
		return PropertyPath{}, false
	}
	return pp, true
}

// described lists the resolvable properties for documentation, keeping the
// ones accept allows. Without an allow-list every top-level property of
// entity is considered.
func (b *base) described(entity string, accept func(PropertyPath) bool) []string {
	var candidates []string
	if b.properties == nil {
		if b.catalog != nil {
			candidates = b.catalog.Properties(entity)
		}
	} else {
		candidates = sortedKeys(b.properties)
	}
	var out []string
	for _, p := range candidates {
		pp, ok := b.resolve(entity, p)
		if !ok || (accept != nil && !accept(pp)) {
			continue
		}
		out = append(out, p)
	}
	return out
}
