// Package catalog describes the document schema the filter compiler resolves
// property paths against: entities, their typed fields and their associations.
package catalog

import (
	"fmt"
	"slices"
)

// FieldType is the storage type of a field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInt        FieldType = "int"
	TypeFloat      FieldType = "float"
	TypeBool       FieldType = "bool"
	TypeDate       FieldType = "date"
	TypeID         FieldType = "id"
	TypeUUID       FieldType = "uuid"
	TypeHash       FieldType = "hash"
	TypeCollection FieldType = "collection"
)

// IsValid checks whether the type is a known value.
func (t FieldType) IsValid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate, TypeID, TypeUUID, TypeHash, TypeCollection:
		return true
	}
	return false
}

// IsNumeric reports whether the type holds integers or floats.
func (t FieldType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Field is a scalar (non-association) property.
type Field struct {
	Name     string    `toml:"name" json:"name"`
	Type     FieldType `toml:"type" json:"type"`
	Nullable bool      `toml:"nullable,omitempty" json:"nullable,omitempty"`
	// DBName is the stored key when it differs from Name.
	DBName string `toml:"db_name,omitempty" json:"db_name,omitempty"`
}

// StoredName returns the key the field is stored under. Identifier fields
// default to "_id".
func (f Field) StoredName() string {
	if f.DBName != "" {
		return f.DBName
	}
	if f.Type == TypeID {
		return "_id"
	}
	return f.Name
}

// AssociationKind distinguishes referenced documents from embedded ones.
type AssociationKind string

const (
	KindReference AssociationKind = "reference"
	KindEmbed     AssociationKind = "embed"
)

// Association links an entity to another one.
type Association struct {
	Name   string          `toml:"name" json:"name"`
	Target string          `toml:"target" json:"target"`
	Kind   AssociationKind `toml:"kind" json:"kind"`
	Many   bool            `toml:"many,omitempty" json:"many,omitempty"`
	// MappedBy names the owning field on the target for inverse-side references.
	MappedBy string `toml:"mapped_by,omitempty" json:"mapped_by,omitempty"`
}

// OwningSide reports whether the reference is stored on this entity.
func (a Association) OwningSide() bool {
	return a.MappedBy == ""
}

// Entity is one document class.
type Entity struct {
	Name         string        `toml:"name" json:"name"`
	Collection   string        `toml:"collection,omitempty" json:"collection"`
	ResourcePath string        `toml:"resource_path,omitempty" json:"resource_path,omitempty"`
	Identifier   []string      `toml:"identifier,omitempty" json:"identifier,omitempty"`
	Fields       []Field       `toml:"field,omitempty" json:"fields,omitempty"`
	Associations []Association `toml:"association,omitempty" json:"associations,omitempty"`
}

// Catalog answers schema questions about entities. Implementations must be
// safe for concurrent reads.
type Catalog interface {
	// HasField reports whether property is a scalar field of entity.
	HasField(entity, property string) bool
	// HasAssociation reports whether property is an association of entity.
	HasAssociation(entity, property string) bool
	// Field returns the field descriptor.
	Field(entity, property string) (Field, bool)
	// FieldType returns the type of a scalar field.
	FieldType(entity, property string) (FieldType, bool)
	// IsNullable reports whether the field or association may hold null.
	IsNullable(entity, property string) bool
	// Association returns the association descriptor.
	Association(entity, property string) (Association, bool)
	// IdentifierFields returns the identifier field names of entity.
	IdentifierFields(entity string) []string
	// Collection returns the storage collection of entity.
	Collection(entity string) string
	// ResourcePath returns the IRI prefix of entity, e.g. "/books".
	ResourcePath(entity string) string
	// Properties enumerates fields then associations of entity.
	Properties(entity string) []string
	// Entities lists entity names in definition order.
	Entities() []string
}

type entry struct {
	entity       Entity
	fields       map[string]Field
	associations map[string]Association
}

// Static is an immutable in-memory catalog.
type Static struct {
	entries map[string]*entry
	order   []string
}

// Compile-time check that Static implements Catalog.
var _ Catalog = (*Static)(nil)

// New validates entities and builds a catalog.
func New(entities ...Entity) (*Static, error) {
	s := &Static{entries: make(map[string]*entry, len(entities))}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("entity name is required")
		}
		if _, dup := s.entries[e.Name]; dup {
			return nil, fmt.Errorf("entity %q defined twice", e.Name)
		}
		en := &entry{
			entity:       e,
			fields:       make(map[string]Field, len(e.Fields)),
			associations: make(map[string]Association, len(e.Associations)),
		}
		for _, f := range e.Fields {
			if !f.Type.IsValid() {
				return nil, fmt.Errorf("entity %q field %q: invalid type %q", e.Name, f.Name, f.Type)
			}
			en.fields[f.Name] = f
		}
		for _, a := range e.Associations {
			if _, clash := en.fields[a.Name]; clash {
				return nil, fmt.Errorf("entity %q: %q is both a field and an association", e.Name, a.Name)
			}
			if a.Kind != KindReference && a.Kind != KindEmbed {
				return nil, fmt.Errorf("entity %q association %q: invalid kind %q", e.Name, a.Name, a.Kind)
			}
			en.associations[a.Name] = a
		}
		if en.entity.Collection == "" {
			en.entity.Collection = e.Name
		}
		if len(en.entity.Identifier) == 0 {
			if _, ok := en.fields["id"]; ok {
				en.entity.Identifier = []string{"id"}
			}
		}
		s.entries[e.Name] = en
		s.order = append(s.order, e.Name)
	}
	for _, name := range s.order {
		for _, a := range s.entries[name].entity.Associations {
			if _, ok := s.entries[a.Target]; !ok {
				return nil, fmt.Errorf("entity %q association %q: unknown target %q", name, a.Name, a.Target)
			}
		}
	}
	return s, nil
}

func (s *Static) HasField(entity, property string) bool {
	_, ok := s.Field(entity, property)
	return ok
}

func (s *Static) HasAssociation(entity, property string) bool {
	_, ok := s.Association(entity, property)
	return ok
}

func (s *Static) Field(entity, property string) (Field, bool) {
	e, ok := s.entries[entity]
	if !ok {
		return Field{}, false
	}
	f, ok := e.fields[property]
	return f, ok
}

func (s *Static) FieldType(entity, property string) (FieldType, bool) {
	f, ok := s.Field(entity, property)
	return f.Type, ok
}

func (s *Static) IsNullable(entity, property string) bool {
	if f, ok := s.Field(entity, property); ok {
		return f.Nullable
	}
	// References may always be dangling or unset.
	return s.HasAssociation(entity, property)
}

func (s *Static) Association(entity, property string) (Association, bool) {
	e, ok := s.entries[entity]
	if !ok {
		return Association{}, false
	}
	a, ok := e.associations[property]
	return a, ok
}

func (s *Static) IdentifierFields(entity string) []string {
	if e, ok := s.entries[entity]; ok {
		return slices.Clone(e.entity.Identifier)
	}
	return nil
}

func (s *Static) Collection(entity string) string {
	if e, ok := s.entries[entity]; ok {
		return e.entity.Collection
	}
	return ""
}

func (s *Static) ResourcePath(entity string) string {
	if e, ok := s.entries[entity]; ok {
		return e.entity.ResourcePath
	}
	return ""
}

func (s *Static) Properties(entity string) []string {
	e, ok := s.entries[entity]
	if !ok {
		return nil
	}
	props := make([]string, 0, len(e.entity.Fields)+len(e.entity.Associations))
	for _, f := range e.entity.Fields {
		props = append(props, f.Name)
	}
	for _, a := range e.entity.Associations {
		props = append(props, a.Name)
	}
	return props
}

func (s *Static) Entities() []string {
	return slices.Clone(s.order)
}

// Definitions returns a copy of every entity definition in order.
func (s *Static) Definitions() []Entity {
	out := make([]Entity, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].entity)
	}
	return out
}
