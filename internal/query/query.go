// Package query decodes deep-object query strings such as
// "order[title]=desc&tags[]=a&tags[]=b" into nested, ordered value bags.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Values is an ordered bag. Values are strings, []any lists, or nested
// *Values.
type Values = orderedmap.OrderedMap[string, any]

// New returns an empty bag.
func New() *Values {
	return orderedmap.New[string, any]()
}

// Decode parses a raw query string. Key order follows first appearance; a
// repeated scalar key keeps its first position and its last value.
func Decode(raw string) (*Values, error) {
	raw = strings.TrimPrefix(raw, "?")
	v := New()
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, val, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("decode query key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(val)
		if err != nil {
			return nil, fmt.Errorf("decode query value for %q: %w", key, err)
		}
		name, path := splitKey(key)
		if name == "" {
			continue
		}
		set(v, name, path, value)
	}
	return v, nil
}

// MustDecode is Decode for literals known to be valid.
func MustDecode(raw string) *Values {
	v, err := Decode(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// splitKey splits "a[b][]" into "a" and ["b", ""]. A key with unbalanced
// brackets is taken literally.
func splitKey(key string) (string, []string) {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return key, nil
	}
	name, rest := key[:open], key[open:]
	var path []string
	for rest != "" {
		if rest[0] != '[' {
			return key, nil
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return key, nil
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return name, path
}

func set(v *Values, name string, path []string, value string) {
	if len(path) == 0 {
		v.Set(name, value)
		return
	}
	if path[0] == "" {
		existing, _ := v.Get(name)
		list, _ := existing.([]any)
		v.Set(name, append(list, build(path[1:], value)))
		return
	}
	existing, _ := v.Get(name)
	child, ok := existing.(*Values)
	if !ok {
		child = New()
		v.Set(name, child)
	}
	set(child, path[0], path[1:], value)
}

func build(path []string, value string) any {
	if len(path) == 0 {
		return value
	}
	child := New()
	set(child, path[0], path[1:], value)
	return child
}

// FromMap converts a plain map into a bag, recursively. Map keys carry no
// order, so they are sorted.
func FromMap(m map[string]any) *Values {
	v := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Set(k, fromAny(m[k]))
	}
	return v
}

func fromAny(x any) any {
	switch t := x.(type) {
	case map[string]any:
		return FromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromAny(e)
		}
		return out
	}
	return x
}

// Entry is one key/value pair of a bag.
type Entry struct {
	Key   string
	Value any
}

// Entries lists the pairs of a *Values in order, or of a map[string]any in
// key order. It reports false for any other value.
func Entries(x any) ([]Entry, bool) {
	switch t := x.(type) {
	case *Values:
		if t == nil {
			return nil, false
		}
		out := make([]Entry, 0, t.Len())
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, Entry{Key: pair.Key, Value: pair.Value})
		}
		return out, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k, Value: t[k]}
		}
		return out, true
	}
	return nil, false
}

// Lookup returns the value stored under key in a *Values or map[string]any.
func Lookup(x any, key string) (any, bool) {
	switch t := x.(type) {
	case *Values:
		if t == nil {
			return nil, false
		}
		return t.Get(key)
	case map[string]any:
		v, ok := t[key]
		return v, ok
	}
	return nil, false
}

// IsBag reports whether x is a nested bag.
func IsBag(x any) bool {
	switch x.(type) {
	case *Values, map[string]any:
		return true
	}
	return false
}
