// Package sqlstore implementa remote.Client sobre database/sql (Postgres vía pgx o SQLite vía modernc).
// Es el backend "real" más simple: una tabla por entidad, ids uuid asignados acá.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/ports/remote"
)

var (
	ErrNotFound = errors.New("not found")
)

type Store struct {
	db  *sql.DB
	d   Dialect
	reg *schema.Registry
	now func() time.Time
}

var _ remote.Client = (*Store)(nil)

func New(db *sql.DB, d Dialect, reg *schema.Registry) *Store {
	return &Store{db: db, d: d, reg: reg, now: time.Now}
}

// EnsureSchema crea las tablas que falten.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.d.DDL(s.reg) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) List(ctx context.Context, t schema.EntityType, filters ...remote.Filter) ([]remote.Row, error) {
	e, err := s.entity(t)
	if err != nil {
		return nil, err
	}

	where := make([]string, 0, len(filters))
	args := make([]any, 0)
	for _, f := range filters {
		if !known(e, f.Column) {
			return nil, apperr.Schema(string(t), f.Column, "unknown filter column")
		}
		if len(f.Values) == 0 {
			return []remote.Row{}, nil
		}
		ph := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			args = append(args, v)
			ph = append(ph, s.d.placeholder(len(args)))
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", quote(f.Column), strings.Join(ph, ",")))
	}

	q := "SELECT " + selectList(e) + " FROM " + quote(e.Table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + quote(schema.ColumnCreatedAt) + " ASC, " + quote(schema.ColumnID) + " ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]remote.Row, 0)
	for rows.Next() {
		r, err := scanRow(e, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, t schema.EntityType, id string) (remote.Row, bool, error) {
	e, err := s.entity(t)
	if err != nil {
		return nil, false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}

	q := "SELECT " + selectList(e) + " FROM " + quote(e.Table) + " WHERE " + quote(schema.ColumnID) + " = " + s.d.placeholder(1)
	r, err := scanRow(e, s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *Store) Insert(ctx context.Context, t schema.EntityType, row remote.Row) (remote.Row, error) {
	e, err := s.entity(t)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	now := s.d.timeValue(s.now())

	cols := []string{quote(schema.ColumnID), quote(schema.ColumnCreatedAt), quote(schema.ColumnUpdatedAt)}
	args := []any{id, now, now}
	for _, f := range e.Fields {
		v, ok := row[f.Column]
		if !ok {
			continue
		}
		cols = append(cols, quote(f.Column))
		args = append(args, v)
	}
	if err := unknownColumns(e, row); err != nil {
		return nil, err
	}

	ph := make([]string, len(args))
	for i := range args {
		ph[i] = s.d.placeholder(i + 1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(e.Table), strings.Join(cols, ", "), strings.Join(ph, ", "))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, err
	}

	saved, ok, err := s.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("insert %s: row vanished", t)
	}
	return saved, nil
}

func (s *Store) Update(ctx context.Context, t schema.EntityType, id string, row remote.Row) (remote.Row, error) {
	e, err := s.entity(t)
	if err != nil {
		return nil, err
	}
	if err := unknownColumns(e, row); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	for _, f := range e.Fields {
		v, ok := row[f.Column]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, quote(f.Column)+" = "+s.d.placeholder(len(args)))
	}
	// updated_at lo decide el servidor
	args = append(args, s.d.timeValue(s.now()))
	sets = append(sets, quote(schema.ColumnUpdatedAt)+" = "+s.d.placeholder(len(args)))
	args = append(args, id)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", quote(e.Table), strings.Join(sets, ", "), quote(schema.ColumnID), s.d.placeholder(len(args)))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}

	saved, ok, err := s.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return saved, nil
}

func (s *Store) Delete(ctx context.Context, t schema.EntityType, id string) error {
	e, err := s.entity(t)
	if err != nil {
		return err
	}
	q := "DELETE FROM " + quote(e.Table) + " WHERE " + quote(schema.ColumnID) + " = " + s.d.placeholder(1)
	_, err = s.db.ExecContext(ctx, q, id)
	return err
}

func (s *Store) entity(t schema.EntityType) (*schema.Entity, error) {
	e, ok := s.reg.Entity(t)
	if !ok {
		return nil, apperr.Schema(string(t), "", "unknown entity type")
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func columns(e *schema.Entity) []string {
	cols := []string{schema.ColumnID, schema.ColumnCreatedAt, schema.ColumnUpdatedAt}
	for _, f := range e.Fields {
		cols = append(cols, f.Column)
	}
	return cols
}

func selectList(e *schema.Entity) string {
	cols := columns(e)
	for i, c := range cols {
		cols[i] = quote(c)
	}
	return strings.Join(cols, ", ")
}

func scanRow(e *schema.Entity, sc scanner) (remote.Row, error) {
	cols := columns(e)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := sc.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(remote.Row, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[c] = v
	}
	return out, nil
}

func known(e *schema.Entity, column string) bool {
	switch column {
	case schema.ColumnID, schema.ColumnCreatedAt, schema.ColumnUpdatedAt:
		return true
	}
	_, ok := e.FieldByColumn(column)
	return ok
}

func unknownColumns(e *schema.Entity, row remote.Row) error {
	for col := range row {
		if !known(e, col) {
			return apperr.Schema(string(e.Type), col, "unknown column")
		}
	}
	return nil
}
