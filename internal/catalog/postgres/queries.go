package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntities(ctx context.Context, db executor) ([]catalog.Entity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, collection, resource_path, identifier
		FROM catalog_entities ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []catalog.Entity
	for rows.Next() {
		var (
			e            catalog.Entity
			resourcePath sql.NullString
			identifier   pq.StringArray
		)
		if err := rows.Scan(&e.Name, &e.Collection, &resourcePath, &identifier); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.ResourcePath = resourcePath.String
		if len(identifier) > 0 {
			e.Identifier = []string(identifier)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func queryFields(ctx context.Context, db executor, byName map[string]*catalog.Entity) error {
	rows, err := db.QueryContext(ctx, `
		SELECT entity, name, type, nullable, db_name
		FROM catalog_fields ORDER BY entity, position`)
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entity string
			f      catalog.Field
			dbName sql.NullString
		)
		if err := rows.Scan(&entity, &f.Name, &f.Type, &f.Nullable, &dbName); err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		f.DBName = dbName.String
		e, ok := byName[entity]
		if !ok {
			return fmt.Errorf("field %q references unknown entity %q", f.Name, entity)
		}
		e.Fields = append(e.Fields, f)
	}
	return rows.Err()
}

func queryAssociations(ctx context.Context, db executor, byName map[string]*catalog.Entity) error {
	rows, err := db.QueryContext(ctx, `
		SELECT entity, name, target, kind, many, mapped_by
		FROM catalog_associations ORDER BY entity, position`)
	if err != nil {
		return fmt.Errorf("query associations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entity   string
			a        catalog.Association
			mappedBy sql.NullString
		)
		if err := rows.Scan(&entity, &a.Name, &a.Target, &a.Kind, &a.Many, &mappedBy); err != nil {
			return fmt.Errorf("scan association: %w", err)
		}
		a.MappedBy = mappedBy.String
		e, ok := byName[entity]
		if !ok {
			return fmt.Errorf("association %q references unknown entity %q", a.Name, entity)
		}
		e.Associations = append(e.Associations, a)
	}
	return rows.Err()
}

func replaceAll(ctx context.Context, db executor, entities []catalog.Entity) error {
	// Fields and associations cascade.
	if _, err := db.ExecContext(ctx, `DELETE FROM catalog_entities`); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	for i, e := range entities {
		identifier := e.Identifier
		if identifier == nil {
			identifier = []string{}
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO catalog_entities (name, position, collection, resource_path, identifier)
			VALUES ($1, $2, $3, $4, $5)`,
			e.Name, i, e.Collection, nullString(e.ResourcePath), pq.Array(identifier))
		if err != nil {
			return fmt.Errorf("insert entity %q: %w", e.Name, err)
		}
	}

	for _, e := range entities {
		for i, f := range e.Fields {
			_, err := db.ExecContext(ctx, `
				INSERT INTO catalog_fields (entity, name, position, type, nullable, db_name)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				e.Name, f.Name, i, string(f.Type), f.Nullable, nullString(f.DBName))
			if err != nil {
				return fmt.Errorf("insert field %s.%s: %w", e.Name, f.Name, err)
			}
		}
		for i, a := range e.Associations {
			_, err := db.ExecContext(ctx, `
				INSERT INTO catalog_associations (entity, name, position, target, kind, many, mapped_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.Name, a.Name, i, a.Target, string(a.Kind), a.Many, nullString(a.MappedBy))
			if err != nil {
				return fmt.Errorf("insert association %s.%s: %w", e.Name, a.Name, err)
			}
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
