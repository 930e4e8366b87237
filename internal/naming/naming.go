// Package naming maps externally visible property names to the names used by
// the catalog.
package naming

import (
	"strings"
	"unicode"
)

// Converter translates between internal and external property names.
type Converter interface {
	// Normalize turns an internal name into its external form.
	Normalize(name string) string
	// Denormalize turns an external name into its internal form.
	Denormalize(name string) string
}

// Identity leaves names untouched.
type Identity struct{}

func (Identity) Normalize(name string) string   { return name }
func (Identity) Denormalize(name string) string { return name }

// SnakeCase exposes camelCase catalog names as snake_case.
type SnakeCase struct{}

// Normalize converts "publishedAt" to "published_at".
func (SnakeCase) Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && runes[i-1] != '_')) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Denormalize converts "published_at" to "publishedAt".
func (SnakeCase) Denormalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	upper := false
	for i, r := range name {
		if r == '_' && i > 0 {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DenormalizePath applies c to every segment of a dotted property path.
// A nil converter returns the path unchanged.
func DenormalizePath(c Converter, path string) string {
	if c == nil {
		return path
	}
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = c.Denormalize(s)
	}
	return strings.Join(segments, ".")
}

// NormalizePath is the inverse of DenormalizePath.
func NormalizePath(c Converter, path string) string {
	if c == nil {
		return path
	}
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = c.Normalize(s)
	}
	return strings.Join(segments, ".")
}

// ByName returns the converter registered under name: "identity" (or empty)
// and "snake_case".
func ByName(name string) (Converter, bool) {
	switch name {
	case "", "identity":
		return Identity{}, true
	case "snake_case":
		return SnakeCase{}, true
	}
	return nil, false
}
