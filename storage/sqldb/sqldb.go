// Package sqldb adapts a relational database to the storage boundary.
// The mapping is conventional: one table per entity type named by its
// discriminator, one column per declared field, plus id and visibility
// columns. Predicate clauses, visibility filtering, and ordering are
// pushed down into the generated SELECT; eager-load hints become one
// batched query per relation instead of one per record.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/dialect"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/storage"
	"github.com/geoforge/terrane/synth"
)

// validIdentifier validates table and column names derived from
// registered declarations before they are spliced into SQL.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a database/sql implementation of storage.Store.
type Store struct {
	db      *sql.DB
	dialect string
	ledger  *registry.Ledger
}

// Open opens a database connection for the dialect and wraps it.
// Callers are responsible for importing the matching driver.
func Open(dialectName, dsn string, ledger *registry.Ledger) (*Store, error) {
	db, err := sql.Open(dialectName, dsn)
	if err != nil {
		return nil, fmt.Errorf("terrane/sqldb: open %s: %w", dialectName, err)
	}
	return New(db, dialectName, ledger), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, dialectName string, ledger *registry.Ledger) *Store {
	return &Store{db: db, dialect: dialectName, ledger: ledger}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect name.
func (s *Store) Dialect() string { return s.dialect }

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, typeName, id string) (terrane.Entity, error) {
	rec, err := s.ledger.ResolveConcrete(typeName)
	if err != nil {
		return nil, err
	}
	cols, err := columnsOf(rec)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s",
		strings.Join(cols, ", "), rec.Type.Name, dialect.Placeholder(s.dialect, 1))
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("terrane/sqldb: get %s: %w", typeName, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, terrane.ErrNotFound
	}
	return scanEntity(rows, rec.Type.Name, cols)
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, typeName string, opts storage.Options) ([]terrane.Entity, error) {
	rec, err := s.ledger.ResolveConcrete(typeName)
	if err != nil {
		return nil, err
	}
	cols, err := columnsOf(rec)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	next := func() string { return dialect.Placeholder(s.dialect, len(args)) }
	if opts.ExcludePrivate {
		// Rows that never set a visibility are private by default.
		args = append(args, terrane.VisibilityPrivate.String())
		where = append(where, fmt.Sprintf("COALESCE(visibility, 'private') <> %s", next()))
	}
	for _, clause := range opts.Clauses {
		cond, clauseArgs, err := s.condition(clause, len(args))
		if err != nil {
			return nil, err
		}
		where = append(where, cond)
		args = append(args, clauseArgs...)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), rec.Type.Name)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if opts.OrderBy != "" {
		if !rec.Type.HasField(opts.OrderBy) || !validIdentifier.MatchString(opts.OrderBy) {
			return nil, fmt.Errorf("terrane/sqldb: cannot order %s by %q", typeName, opts.OrderBy)
		}
		fmt.Fprintf(&sb, " ORDER BY %s, id", opts.OrderBy)
	} else {
		sb.WriteString(" ORDER BY id")
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("terrane/sqldb: list %s: %w", typeName, err)
	}
	defer rows.Close()

	var out []terrane.Entity
	for rows.Next() {
		e, err := scanEntity(rows, rec.Type.Name, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(opts.Related) > 0 {
		if err := s.prefetch(ctx, rec, out, opts.Related); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// condition renders one predicate clause; argOffset is the number of
// args already bound.
func (s *Store) condition(clause synth.Clause, argOffset int) (string, []any, error) {
	switch clause.Op {
	case synth.OpEQ:
		if !validIdentifier.MatchString(clause.Field) {
			return "", nil, fmt.Errorf("terrane/sqldb: invalid column %q", clause.Field)
		}
		return fmt.Sprintf("%s = %s", clause.Field, dialect.Placeholder(s.dialect, argOffset+1)),
			[]any{clause.Value}, nil
	case synth.OpSearch:
		term, ok := clause.Value.(string)
		if !ok {
			return "", nil, fmt.Errorf("terrane/sqldb: search term must be a string, got %T", clause.Value)
		}
		var (
			ors  []string
			args []any
		)
		for _, f := range clause.Fields {
			if !validIdentifier.MatchString(f) {
				return "", nil, fmt.Errorf("terrane/sqldb: invalid column %q", f)
			}
			args = append(args, "%"+strings.ToLower(term)+"%")
			ors = append(ors, fmt.Sprintf("LOWER(%s) LIKE %s", f, dialect.Placeholder(s.dialect, argOffset+len(args))))
		}
		return "(" + strings.Join(ors, " OR ") + ")", args, nil
	}
	return "", nil, fmt.Errorf("terrane/sqldb: unsupported clause op %q", clause.Op)
}

// prefetch loads each requested relation with one grouped query and
// attaches the related instances under the relation name.
func (s *Store) prefetch(ctx context.Context, rec *registry.Record, parents []terrane.Entity, related []string) error {
	if len(parents) == 0 {
		return nil
	}
	fk := rec.Type.Name + "_id"
	ids := make([]any, len(parents))
	placeholders := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = p.ID()
		placeholders[i] = dialect.Placeholder(s.dialect, i+1)
	}
	for _, name := range related {
		rel, ok := rec.Type.Relation(name)
		if !ok {
			return fmt.Errorf("terrane/sqldb: %q declares no relation %q", rec.Type.Name, name)
		}
		target, err := s.ledger.ResolveConcrete(rel.Target)
		if err != nil {
			return err
		}
		cols, err := columnsOf(target)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY id",
			strings.Join(cols, ", "), target.Type.Name, fk, strings.Join(placeholders, ", "))
		rows, err := s.db.QueryContext(ctx, query, ids...)
		if err != nil {
			return fmt.Errorf("terrane/sqldb: prefetch %s: %w", rel.Name, err)
		}
		grouped := make(map[string][]terrane.Entity)
		for rows.Next() {
			child, err := scanEntity(rows, target.Type.Name, cols)
			if err != nil {
				rows.Close()
				return err
			}
			if owner, ok := child.Get(fk); ok {
				if id, ok := owner.(string); ok {
					grouped[id] = append(grouped[id], child)
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		for _, parent := range parents {
			children := grouped[parent.ID()]
			if children == nil {
				children = []terrane.Entity{}
			}
			if err := parent.Set(rel.Name, children); err != nil {
				return err
			}
		}
	}
	return nil
}

// columnsOf returns the select list for a record: id, visibility, then
// the declared fields in declaration order.
func columnsOf(rec *registry.Record) ([]string, error) {
	cols := []string{"id", "visibility"}
	if !validIdentifier.MatchString(rec.Type.Name) {
		return nil, fmt.Errorf("terrane/sqldb: invalid table %q", rec.Type.Name)
	}
	for _, fd := range rec.Type.Fields {
		if !validIdentifier.MatchString(fd.Name) {
			return nil, fmt.Errorf("terrane/sqldb: invalid column %q", fd.Name)
		}
		cols = append(cols, fd.Name)
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity maps one row onto a Record. Unset columns stay unset on
// the entity; []byte column values become strings.
func scanEntity(row rowScanner, typeName string, cols []string) (terrane.Entity, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("terrane/sqldb: scan %s: %w", typeName, err)
	}
	id, _ := values[0].(string)
	if b, ok := values[0].([]byte); ok {
		id = string(b)
	}
	e := terrane.NewRecordWithID(typeName, id)
	for i := 1; i < len(cols); i++ {
		v := values[i]
		if v == nil {
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if err := e.Set(cols[i], v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

var _ storage.Store = (*Store)(nil)
