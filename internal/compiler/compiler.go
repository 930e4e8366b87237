// Package compiler turns a filter configuration and a request query into an
// aggregation pipeline. A Compiler is built once from a catalog and a
// configuration and is safe for concurrent use; every Compile call gets its
// own pipeline and filter context.
package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/idgen"
	"github.com/alfredjeanlab/pipefilter/internal/naming"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

var (
	// ErrUnknownResource is returned for a resource name with no configuration.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrMissingParameter is returned when a required parameter is absent.
	ErrMissingParameter = errors.New("missing required parameter")
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger handed to filters and used for compiler notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithNameConverter sets the property name converter handed to filters.
func WithNameConverter(n naming.Converter) Option {
	return func(c *Compiler) { c.names = n }
}

// WithClock anchors relative date keywords such as "today".
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// WithPublisher announces every compilation on the given publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *Compiler) { c.publisher = p }
}

// Compiler dispatches compilations to the filters configured per resource.
type Compiler struct {
	catalog   catalog.Catalog
	logger    *slog.Logger
	names     naming.Converter
	now       func() time.Time
	publisher events.Publisher

	resources map[string]*resource
	order     []string
}

type resource struct {
	name    string
	entity  string
	filters []filter.Filter
	params  []*binding
}

type binding struct {
	spec   ParameterSpec
	filter filter.Filter
	schema *jsonschema.Schema
	// validator is nil when the filter does not describe a schema.
	validator *gojsonschema.Schema
}

func (b *binding) parameter(value any) filter.Parameter {
	return filter.Parameter{
		Key:        b.spec.Key,
		Property:   b.spec.Property,
		Properties: slices.Clone(b.spec.Properties),
		Value:      value,
	}
}

// New builds every configured filter, injects its collaborators and checks
// its configuration. Configuration mistakes are reported here rather than
// on the first request.
func New(cat catalog.Catalog, file *File, opts ...Option) (*Compiler, error) {
	c := &Compiler{
		catalog:   cat,
		logger:    slog.Default(),
		names:     naming.Identity{},
		publisher: events.NoopPublisher{},
		resources: make(map[string]*resource),
	}
	for _, opt := range opts {
		opt(c)
	}
	collab := filter.Collaborators{Catalog: cat, Logger: c.logger, Names: c.names}
	entities := cat.Entities()

	for _, rs := range file.Resources {
		if rs.Name == "" {
			return nil, fmt.Errorf("resource name is required")
		}
		if _, dup := c.resources[rs.Name]; dup {
			return nil, fmt.Errorf("resource %q defined twice", rs.Name)
		}
		if !slices.Contains(entities, rs.Entity) {
			return nil, fmt.Errorf("resource %q: unknown entity %q", rs.Name, rs.Entity)
		}
		r := &resource{name: rs.Name, entity: rs.Entity}

		for i, spec := range rs.Filters {
			f, err := c.prepare(spec, collab)
			if err != nil {
				return nil, fmt.Errorf("resource %q filter %d (%s): %w", rs.Name, i, spec.Kind, err)
			}
			r.filters = append(r.filters, f)
		}

		seen := make(map[string]bool, len(rs.Parameters))
		for _, ps := range rs.Parameters {
			if ps.Key == "" {
				return nil, fmt.Errorf("resource %q: parameter key is required", rs.Name)
			}
			if seen[ps.Key] {
				return nil, fmt.Errorf("resource %q: parameter %q bound twice", rs.Name, ps.Key)
			}
			seen[ps.Key] = true
			f, err := c.prepare(ps.Filter, collab)
			if err != nil {
				return nil, fmt.Errorf("resource %q parameter %q: %w", rs.Name, ps.Key, err)
			}
			b := &binding{spec: ps, filter: f}
			if err := b.compileSchema(); err != nil {
				return nil, fmt.Errorf("resource %q parameter %q: %w", rs.Name, ps.Key, err)
			}
			r.params = append(r.params, b)
		}

		c.resources[rs.Name] = r
		c.order = append(c.order, rs.Name)
	}
	return c, nil
}

func (c *Compiler) prepare(spec FilterSpec, collab filter.Collaborators) (filter.Filter, error) {
	f, err := build(spec, c.now)
	if err != nil {
		return nil, err
	}
	filter.Inject(f, collab)
	if err := filter.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *binding) compileSchema() error {
	d, ok := b.filter.(filter.SchemaDescriber)
	if !ok {
		return nil
	}
	b.schema = d.DescribeSchema(b.parameter(nil))
	if b.schema == nil {
		return nil
	}
	raw, err := json.Marshal(b.schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	v, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b.validator = v
	return nil
}

// validate reports the schema violations of value, if any.
func (b *binding) validate(value any) ([]string, error) {
	if b.validator == nil {
		return nil, nil
	}
	result, err := b.validator.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, fmt.Errorf("validate parameter %q: %w", b.spec.Key, err)
	}
	if result.Valid() {
		return nil, nil
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}

// Resources lists configured resource names in configuration order.
func (c *Compiler) Resources() []string {
	return slices.Clone(c.order)
}

// Result is one compiled pipeline.
type Result struct {
	ID       string             `json:"id"`
	Resource string             `json:"resource"`
	Entity   string             `json:"entity"`
	Pipeline *pipeline.Pipeline `json:"pipeline"`
	// Sort is the accumulated sort order, also reflected by the pipeline's
	// $sort stage.
	Sort []filter.SortKey `json:"-"`
}

// Compile runs the resource's filters, then its parameter bindings, against
// values. op names the operation being served and is passed to filters.
// Rejected user input never fails a compilation; configuration errors and
// missing required parameters do.
func (c *Compiler) Compile(ctx context.Context, resourceName, op string, values *query.Values) (*Result, error) {
	id, err := idgen.New()
	if err != nil {
		return nil, err
	}
	res, err := c.compile(ctx, id, resourceName, op, values)
	if err != nil {
		c.publish(ctx, events.TopicPipelineFailed, events.PipelineFailed{
			ID:        id,
			Resource:  resourceName,
			Operation: op,
			Error:     err.Error(),
			At:        time.Now().UTC(),
		})
		return nil, err
	}

	raw, err := json.Marshal(res.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline: %w", err)
	}
	c.publish(ctx, events.TopicPipelineCompiled, events.PipelineCompiled{
		ID:        id,
		Resource:  res.Resource,
		Entity:    res.Entity,
		Operation: op,
		Stages:    res.Pipeline.Len(),
		Pipeline:  raw,
		At:        time.Now().UTC(),
	})
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, id, resourceName, op string, values *query.Values) (*Result, error) {
	r, ok := c.resources[resourceName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownResource, resourceName)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := pipeline.New()
	fc := filter.NewContext(values)
	operation := &filter.Operation{Resource: r.name, Name: op}

	for _, f := range r.filters {
		if err := f.Apply(p, r.entity, operation, fc); err != nil {
			return nil, fmt.Errorf("resource %q: %w", r.name, err)
		}
	}

	for _, b := range r.params {
		raw, ok := query.Lookup(fc.Filters, b.spec.Key)
		if !ok || isBlank(raw) {
			if b.spec.Required {
				return nil, fmt.Errorf("%w %q", ErrMissingParameter, b.spec.Key)
			}
			continue
		}
		problems, err := b.validate(raw)
		if err != nil {
			return nil, err
		}
		if len(problems) > 0 {
			c.logger.Info("invalid parameter ignored",
				"resource", r.name,
				"parameter", b.spec.Key,
				"problems", strings.Join(problems, "; "),
			)
			continue
		}
		param := b.parameter(raw)
		if err := fc.WithParameter(&param, func() error {
			return b.filter.Apply(p, r.entity, operation, fc)
		}); err != nil {
			return nil, fmt.Errorf("resource %q parameter %q: %w", r.name, b.spec.Key, err)
		}
	}

	return &Result{
		ID:       id,
		Resource: r.name,
		Entity:   r.entity,
		Pipeline: p,
		Sort:     fc.SortOrder(),
	}, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func (c *Compiler) publish(ctx context.Context, topic string, event any) {
	if err := c.publisher.Publish(ctx, topic, event); err != nil {
		c.logger.Warn("publish event", "topic", topic, "error", err)
	}
}

// Describe lists the query parameters a resource understands: those of its
// property-bag filters followed by its parameter bindings.
func (c *Compiler) Describe(resourceName string) ([]filter.ParameterDescriptor, error) {
	r, ok := c.resources[resourceName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownResource, resourceName)
	}
	var out []filter.ParameterDescriptor
	for _, f := range r.filters {
		if d, ok := f.(filter.PropertyDescriber); ok {
			out = append(out, d.Describe(r.entity)...)
		}
	}
	for _, b := range r.params {
		d, ok := b.filter.(filter.ParameterDescriber)
		if !ok {
			out = append(out, filter.ParameterDescriptor{Name: b.spec.Key, In: "query", Type: "string"})
			continue
		}
		for _, desc := range d.DescribeParameters(b.parameter(nil)) {
			desc.Required = b.spec.Required && desc.Name == b.spec.Key
			if b.spec.Description != "" {
				desc.Description = b.spec.Description
			}
			out = append(out, desc)
		}
	}
	return out, nil
}

// Schema returns the JSON schema of every parameter binding of a resource,
// keyed by parameter.
func (c *Compiler) Schema(resourceName string) (*jsonschema.Schema, error) {
	r, ok := c.resources[resourceName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownResource, resourceName)
	}
	props := jsonschema.NewProperties()
	var required []string
	for _, b := range r.params {
		s := b.schema
		if s == nil {
			s = &jsonschema.Schema{Type: "string"}
		}
		props.Set(b.spec.Key, s)
		if b.spec.Required {
			required = append(required, b.spec.Key)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Title:      r.name,
		Properties: props,
		Required:   required,
	}, nil
}
