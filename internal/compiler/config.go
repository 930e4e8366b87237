package compiler

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
)

// File is the TOML filter configuration:
//
//	[[resource]]
//	name = "books"
//	entity = "Book"
//
//	  [[resource.filter]]
//	  kind = "search"
//	  properties = { title = "ipartial", "author.name" = "exact" }
//
//	  [[resource.parameter]]
//	  key = "q"
//	  properties = ["title", "description"]
//	  filter = { kind = "free_text", filter = { kind = "partial" } }
type File struct {
	Resources []ResourceSpec `toml:"resource"`
}

// ResourceSpec binds filters to an entity under a resource name.
type ResourceSpec struct {
	Name   string `toml:"name"`
	Entity string `toml:"entity"`
	// Filters read the whole query bag.
	Filters []FilterSpec `toml:"filter"`
	// Parameters bind one query key to one filter each.
	Parameters []ParameterSpec `toml:"parameter"`
}

// FilterSpec configures one filter. Properties maps enabled properties to
// their per-property setting; leaving it out enables every top-level
// property. Options hold kind-specific settings.
type FilterSpec struct {
	Kind       string            `toml:"kind"`
	Properties map[string]string `toml:"properties"`
	Options    map[string]any    `toml:"options"`
	// Filter is the decorated filter of "comparison" and "free_text".
	Filter *FilterSpec `toml:"filter"`
	// Filters are the branches of "or".
	Filters []FilterSpec `toml:"filters"`
}

// ParameterSpec binds a query key to a parameter filter.
type ParameterSpec struct {
	Key         string     `toml:"key"`
	Property    string     `toml:"property"`
	Properties  []string   `toml:"properties"`
	Required    bool       `toml:"required"`
	Description string     `toml:"description"`
	Filter      FilterSpec `toml:"filter"`
}

// LoadFile decodes a filter configuration from path.
func LoadFile(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode filters %s: %w", path, err)
	}
	if undecoded := unknownKeys(md); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode filters %s: unknown keys %v", path, undecoded)
	}
	return &f, nil
}

// Load decodes a filter configuration from r.
func Load(r io.Reader) (*File, error) {
	var f File
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	if undecoded := unknownKeys(md); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode filters: unknown keys %v", undecoded)
	}
	return &f, nil
}

// unknownKeys returns the keys toml could not place. Keys nested inside an
// options table are left to decodeOptions, which knows the kind's fields.
func unknownKeys(md toml.MetaData) []toml.Key {
	var out []toml.Key
	for _, key := range md.Undecoded() {
		if !slices.Contains(key[:max(len(key)-1, 0)], "options") {
			out = append(out, key)
		}
	}
	return out
}

// ErrUnknownKind is returned for a filter kind the compiler cannot build.
var ErrUnknownKind = errors.New("unknown filter kind")

// Filter kinds accepted in FilterSpec.Kind.
const (
	KindSearch     = "search"
	KindRange      = "range"
	KindDate       = "date"
	KindBoolean    = "boolean"
	KindNumeric    = "numeric"
	KindExists     = "exists"
	KindOrder      = "order"
	KindUUIDRange  = "uuid_range"
	KindExact      = "exact"
	KindPartial    = "partial"
	KindIri        = "iri"
	KindFullText   = "full_text"
	KindComparison = "comparison"
	KindFreeText   = "free_text"
	KindOr         = "or"
)

type existsOptions struct {
	ParameterName string `mapstructure:"parameter_name"`
}

type orderOptions struct {
	ParameterName   string `mapstructure:"parameter_name"`
	NullsComparison string `mapstructure:"nulls_comparison"`
}

type freeTextOptions struct {
	Properties []string `mapstructure:"properties"`
}

// decodeOptions decodes raw into out, rejecting keys out does not declare.
func decodeOptions(kind string, raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%s options: %w", kind, err)
	}
	return nil
}

// build constructs the filter tree of spec. now, when set, anchors relative
// dates in filters that parse them.
func build(spec FilterSpec, now func() time.Time) (filter.Filter, error) {
	noOptions := func() error { return decodeOptions(spec.Kind, spec.Options, &struct{}{}) }

	switch spec.Kind {
	case KindSearch:
		f := filter.NewSearchFilter(spec.Properties)
		f.Now = now
		return f, noOptions()
	case KindRange:
		return filter.NewRangeFilter(spec.Properties), noOptions()
	case KindDate:
		f := filter.NewDateFilter(spec.Properties)
		f.Now = now
		return f, noOptions()
	case KindBoolean:
		return filter.NewBooleanFilter(spec.Properties), noOptions()
	case KindNumeric:
		return filter.NewNumericFilter(spec.Properties), noOptions()
	case KindUUIDRange:
		return filter.NewUUIDRangeFilter(spec.Properties), noOptions()
	case KindExists:
		var opts existsOptions
		if err := decodeOptions(spec.Kind, spec.Options, &opts); err != nil {
			return nil, err
		}
		f := filter.NewExistsFilter(spec.Properties)
		if opts.ParameterName != "" {
			f.ParameterName = opts.ParameterName
		}
		return f, nil
	case KindOrder:
		var opts orderOptions
		if err := decodeOptions(spec.Kind, spec.Options, &opts); err != nil {
			return nil, err
		}
		nulls, err := filter.ParseNullsComparison(opts.NullsComparison)
		if err != nil {
			return nil, fmt.Errorf("order options: %w", err)
		}
		f := filter.NewOrderFilter(spec.Properties)
		if opts.ParameterName != "" {
			f.ParameterName = opts.ParameterName
		}
		f.NullsComparison = nulls
		return f, nil
	case KindExact:
		f := filter.NewExactFilter()
		f.Now = now
		return f, noOptions()
	case KindPartial:
		return filter.NewPartialSearchFilter(), noOptions()
	case KindIri:
		return filter.NewIriFilter(), noOptions()
	case KindFullText:
		var opts filter.FullTextOptions
		if err := decodeOptions(spec.Kind, spec.Options, &opts); err != nil {
			return nil, err
		}
		return filter.NewFullTextFilter(opts), nil
	case KindComparison:
		inner, err := buildInner(spec, now)
		if err != nil {
			return nil, err
		}
		return filter.NewComparisonFilter(inner), noOptions()
	case KindFreeText:
		var opts freeTextOptions
		if err := decodeOptions(spec.Kind, spec.Options, &opts); err != nil {
			return nil, err
		}
		inner, err := buildInner(spec, now)
		if err != nil {
			return nil, err
		}
		return filter.NewFreeTextQueryFilter(inner, opts.Properties), nil
	case KindOr:
		branches := make([]filter.Filter, 0, len(spec.Filters))
		for i, s := range spec.Filters {
			f, err := build(s, now)
			if err != nil {
				return nil, fmt.Errorf("or branch %d: %w", i, err)
			}
			branches = append(branches, f)
		}
		return filter.NewOrFilter(branches...), noOptions()
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, spec.Kind)
}

// buildInner builds the decorated filter; a missing one is left nil so that
// validation reports it as a configuration error.
func buildInner(spec FilterSpec, now func() time.Time) (filter.Filter, error) {
	if spec.Filter == nil {
		return nil, nil
	}
	inner, err := build(*spec.Filter, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Kind, err)
	}
	return inner, nil
}
