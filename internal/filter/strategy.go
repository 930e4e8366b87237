package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

// TextMatch is a text matching strategy.
type TextMatch int

const (
	MatchExact TextMatch = iota
	MatchPartial
	MatchStart
	MatchEnd
	MatchWordStart
)

var matchNames = map[string]TextMatch{
	"exact":      MatchExact,
	"partial":    MatchPartial,
	"start":      MatchStart,
	"end":        MatchEnd,
	"word_start": MatchWordStart,
}

func (m TextMatch) String() string {
	for name, v := range matchNames {
		if v == m {
			return name
		}
	}
	return fmt.Sprintf("TextMatch(%d)", int(m))
}

// Strategy is a match kind plus case sensitivity.
type Strategy struct {
	Match           TextMatch
	CaseInsensitive bool
}

// String renders the configuration name, e.g. "ipartial".
func (s Strategy) String() string {
	if s.CaseInsensitive {
		return "i" + s.Match.String()
	}
	return s.Match.String()
}

// ParseStrategy parses a strategy name. An empty name is "exact"; an "i"
// prefix selects case-insensitive matching.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Strategy{Match: MatchExact}, nil
	}
	if m, ok := matchNames[n]; ok {
		return Strategy{Match: m}, nil
	}
	if rest, ok := strings.CutPrefix(n, "i"); ok {
		if m, ok := matchNames[rest]; ok {
			return Strategy{Match: m, CaseInsensitive: true}, nil
		}
	}
	return Strategy{}, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
}

// Term builds the match value for one string. Case-sensitive exact matches
// compare literally; everything else is a regular expression.
func (s Strategy) Term(value string) any {
	var opts string
	if s.CaseInsensitive {
		opts = "i"
	}
	q := regexp.QuoteMeta(value)
	switch s.Match {
	case MatchExact:
		if !s.CaseInsensitive {
			return value
		}
		return pipeline.Regex{Pattern: "^" + q + "$", Options: opts}
	case MatchPartial:
		return pipeline.Regex{Pattern: q, Options: opts}
	case MatchStart:
		return pipeline.Regex{Pattern: "^" + q, Options: opts}
	case MatchEnd:
		return pipeline.Regex{Pattern: q + "$", Options: opts}
	case MatchWordStart:
		return pipeline.Regex{Pattern: "(^" + q + ".*|.*\\s" + q + ".*)", Options: opts}
	}
	return value
}

// membership builds {field: {$eq: v}} for a single literal and
// {field: {$in: [...]}} otherwise.
func membership(field string, terms []any) pipeline.Expr {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		if _, isRegex := terms[0].(pipeline.Regex); !isRegex {
			return pipeline.Eq(field, terms[0])
		}
	}
	return pipeline.In(field, terms...)
}

// comparisonOps lists range operator names in application order.
var comparisonOps = []struct {
	Name string
	Op   pipeline.Op
}{
	{"gt", pipeline.OpGt},
	{"gte", pipeline.OpGte},
	{"lt", pipeline.OpLt},
	{"lte", pipeline.OpLte},
}

const opBetween = "between"

// dateOps lists date boundary names in application order. Boundaries are
// emitted in this order whatever their order in the query.
var dateOps = []struct {
	Name string
	Op   pipeline.Op
}{
	{"before", pipeline.OpLte},
	{"strictly_before", pipeline.OpLt},
	{"after", pipeline.OpGte},
	{"strictly_after", pipeline.OpGt},
}

// NullMode controls how null dates relate to date boundaries.
type NullMode string

const (
	ExcludeNull               NullMode = "exclude_null"
	IncludeNullBefore         NullMode = "include_null_before"
	IncludeNullAfter          NullMode = "include_null_after"
	IncludeNullBeforeAndAfter NullMode = "include_null_before_and_after"
)

// ParseNullMode validates a null mode. An empty name is ExcludeNull.
func ParseNullMode(name string) (NullMode, error) {
	switch m := NullMode(name); m {
	case "":
		return ExcludeNull, nil
	case ExcludeNull, IncludeNullBefore, IncludeNullAfter, IncludeNullBeforeAndAfter:
		return m, nil
	}
	return "", fmt.Errorf("unknown null mode %q", name)
}

// includes reports whether nulls satisfy the boundary operator.
func (m NullMode) includes(op pipeline.Op) bool {
	before := op == pipeline.OpLt || op == pipeline.OpLte
	switch m {
	case IncludeNullBefore:
		return before
	case IncludeNullAfter:
		return !before
	case IncludeNullBeforeAndAfter:
		return true
	}
	return false
}

// NullsComparison ranks null values when sorting.
type NullsComparison string

const (
	NullsSmallest    NullsComparison = "nulls_smallest"
	NullsLargest     NullsComparison = "nulls_largest"
	NullsAlwaysFirst NullsComparison = "nulls_always_first"
	NullsAlwaysLast  NullsComparison = "nulls_always_last"
)

// ParseNullsComparison validates a nulls comparison. The short forms
// "smallest", "largest", "always_first" and "always_last" are accepted.
func ParseNullsComparison(name string) (NullsComparison, error) {
	if name == "" {
		return "", nil
	}
	if !strings.HasPrefix(name, "nulls_") {
		name = "nulls_" + name
	}
	switch c := NullsComparison(name); c {
	case NullsSmallest, NullsLargest, NullsAlwaysFirst, NullsAlwaysLast:
		return c, nil
	}
	return "", fmt.Errorf("unknown nulls comparison %q", name)
}

// rankDirection returns the direction of the null rank key (0 for null, 1
// otherwise) placed before a field sorted in dir.
func (c NullsComparison) rankDirection(dir pipeline.Direction) pipeline.Direction {
	switch c {
	case NullsLargest:
		if dir == pipeline.Ascending {
			return pipeline.Descending
		}
		return pipeline.Ascending
	case NullsAlwaysFirst:
		return pipeline.Ascending
	case NullsAlwaysLast:
		return pipeline.Descending
	}
	return dir
}
