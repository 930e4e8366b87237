package filter

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
)

// Join describes one $lookup needed to reach a nested property.
type Join struct {
	Association  string
	Target       string
	From         string
	LocalField   string
	ForeignField string
	Alias        string
}

// PropertyPath is a dotted property resolved against the catalog.
type PropertyPath struct {
	// Property is the dotted path as requested.
	Property string
	// Entity owns the leaf segment.
	Entity string
	// Field is the leaf segment name.
	Field string
	// MatchField is the stored path usable in predicates once Joins ran.
	MatchField   string
	Associations []string
	Joins        []Join
	// Leaf describes a scalar leaf. It is zero when the leaf is an
	// association.
	Leaf            catalog.Field
	LeafAssociation *catalog.Association
}

// IsAssociation reports whether the leaf segment is an association.
func (pp PropertyPath) IsAssociation() bool {
	return pp.LeafAssociation != nil
}

// IsNested reports whether the path traverses associations.
func (pp PropertyPath) IsNested() bool {
	return len(pp.Associations) > 0
}

// Resolve maps a dotted property of entity to its match field and the joins
// required to reach it. Every segment but the last must be an association.
// Reference associations produce joins aliased "<prefix><name>_lkup";
// embedded ones only extend the dotted prefix.
func Resolve(cat catalog.Catalog, entity, path string) (PropertyPath, error) {
	pp := PropertyPath{Property: path}
	if path == "" {
		return pp, fmt.Errorf("%w: empty path", ErrNotResolvable)
	}
	segments := strings.Split(path, ".")
	current := entity
	prefix := ""
	for _, seg := range segments[:len(segments)-1] {
		a, ok := cat.Association(current, seg)
		if !ok {
			return pp, fmt.Errorf("%w: %s has no association %q", ErrNotResolvable, current, seg)
		}
		switch a.Kind {
		case catalog.KindEmbed:
			prefix += seg + "."
		case catalog.KindReference:
			alias := prefix + seg + "_lkup"
			j := Join{
				Association: seg,
				Target:      a.Target,
				From:        cat.Collection(a.Target),
				Alias:       alias,
			}
			if a.OwningSide() {
				j.LocalField = prefix + seg
				j.ForeignField = identifierStoredName(cat, a.Target)
			} else {
				j.LocalField = prefix + identifierStoredName(cat, current)
				j.ForeignField = a.MappedBy
			}
			pp.Joins = append(pp.Joins, j)
			prefix = alias + "."
		}
		pp.Associations = append(pp.Associations, seg)
		current = a.Target
	}

	leaf := segments[len(segments)-1]
	pp.Entity = current
	pp.Field = leaf
	if f, ok := cat.Field(current, leaf); ok {
		pp.Leaf = f
		pp.MatchField = prefix + f.StoredName()
		return pp, nil
	}
	if a, ok := cat.Association(current, leaf); ok {
		pp.LeafAssociation = &a
		pp.MatchField = prefix + leaf
		return pp, nil
	}
	return pp, fmt.Errorf("%w: %s has no property %q", ErrNotResolvable, current, leaf)
}

func identifierStoredName(cat catalog.Catalog, entity string) string {
	for _, name := range cat.IdentifierFields(entity) {
		if f, ok := cat.Field(entity, name); ok {
			return f.StoredName()
		}
	}
	return "_id"
}
