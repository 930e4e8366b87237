package filter

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

// DefaultSearchIndex is the search index used when none is configured.
const DefaultSearchIndex = "default"

// SearchOperator is a full-text search operator.
type SearchOperator string

const (
	OperatorText         SearchOperator = "text"
	OperatorAutocomplete SearchOperator = "autocomplete"
	OperatorPhrase       SearchOperator = "phrase"
	OperatorWildcard     SearchOperator = "wildcard"
)

// Fuzzy configures approximate matching for text and autocomplete.
type Fuzzy struct {
	MaxEdits      int `mapstructure:"max_edits"`
	PrefixLength  int `mapstructure:"prefix_length"`
	MaxExpansions int `mapstructure:"max_expansions"`
}

func (fz *Fuzzy) document() pipeline.M {
	doc := pipeline.M{}
	if fz.MaxEdits > 0 {
		doc["maxEdits"] = fz.MaxEdits
	}
	if fz.PrefixLength > 0 {
		doc["prefixLength"] = fz.PrefixLength
	}
	if fz.MaxExpansions > 0 {
		doc["maxExpansions"] = fz.MaxExpansions
	}
	return doc
}

// FullTextOptions configures a FullTextFilter.
type FullTextOptions struct {
	Index    string                              `mapstructure:"index"`
	Operator string                              `mapstructure:"operator"`
	Occur    string                              `mapstructure:"occur"`
	Paths    []string                            `mapstructure:"paths"`
	Fuzzy    *Fuzzy                              `mapstructure:"fuzzy"`
	Facets   map[string]pipeline.FacetDefinition `mapstructure:"facets"`
}

// FullTextFilter adds a clause for the parameter value to the request's
// shared $search stage. Several full-text filters in one request contribute
// to the same compound query.
type FullTextFilter struct {
	base
	opts FullTextOptions
}

// NewFullTextFilter returns a full-text filter.
func NewFullTextFilter(opts FullTextOptions) *FullTextFilter {
	if opts.Index == "" {
		opts.Index = DefaultSearchIndex
	}
	if opts.Operator == "" {
		opts.Operator = string(OperatorText)
	}
	return &FullTextFilter{opts: opts}
}

// Validate checks the operator and occurrence names.
func (f *FullTextFilter) Validate() error {
	switch SearchOperator(f.opts.Operator) {
	case OperatorText, OperatorAutocomplete, OperatorPhrase, OperatorWildcard:
	default:
		return configError("full_text", fmt.Errorf("unknown operator %q", f.opts.Operator))
	}
	if _, err := pipeline.ParseOccurrence(f.opts.Occur); err != nil {
		return configError("full_text", err)
	}
	if SearchOperator(f.opts.Operator) == OperatorAutocomplete && len(f.opts.Paths) > 1 {
		return configError("full_text", fmt.Errorf("autocomplete takes a single path"))
	}
	return nil
}

func (f *FullTextFilter) Apply(p *pipeline.Pipeline, _ string, _ *Operation, fc *Context) error {
	if err := f.Validate(); err != nil {
		return err
	}
	param := fc.Parameter
	if param == nil {
		return nil
	}
	values, ok := searchValues(param.Value)
	if !ok {
		f.reject("full_text", param.Key, param.Value, "values must be strings")
		return nil
	}
	var terms []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			terms = append(terms, v)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	paths := f.paths(param)
	if len(paths) == 0 {
		f.reject("full_text", param.Key, param.Value, "no search path")
		return nil
	}

	body := pipeline.M{"path": pathValue(paths)}
	if len(terms) == 1 {
		body["query"] = terms[0]
	} else {
		body["query"] = terms
	}
	op := SearchOperator(f.opts.Operator)
	if f.opts.Fuzzy != nil && (op == OperatorText || op == OperatorAutocomplete) {
		body["fuzzy"] = f.opts.Fuzzy.document()
	}
	if op == OperatorWildcard {
		body["allowAnalyzedField"] = true
	}

	occ, _ := pipeline.ParseOccurrence(f.opts.Occur)
	search := fc.SearchBuilder(p, f.opts.Index)
	search.AddFacets(f.opts.Facets)
	search.AddClause(occ, pipeline.M{string(op): body}, len(f.opts.Facets) > 0)
	return nil
}

func (f *FullTextFilter) paths(param *Parameter) []string {
	if len(f.opts.Paths) > 0 {
		return f.opts.Paths
	}
	var raw []string
	if len(param.Properties) > 0 {
		raw = param.Properties
	} else if t := param.TargetProperty(); t != "" {
		raw = []string{t}
	}
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = f.denormalize(r)
	}
	return out
}

func pathValue(paths []string) any {
	if len(paths) == 1 {
		return paths[0]
	}
	return paths
}

func (f *FullTextFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	return describeParameter(param, "string", false)
}

func (f *FullTextFilter) DescribeSchema(Parameter) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}
