package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"pet-health-sync/internal/domain/schema"
)

// Dialect agrupa lo que cambia entre Postgres y SQLite: driver, placeholders y tipos de columna.
type Dialect struct {
	Name   string
	Driver string

	types       map[schema.Kind]string
	timestamp   string
	placeholder func(n int) string
	// timeValue convierte un instante al valor que se guarda en created_at/updated_at.
	timeValue func(t time.Time) any
}

var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	types: map[schema.Kind]string{
		schema.KindString:   "TEXT",
		schema.KindURI:      "TEXT",
		schema.KindEnum:     "TEXT",
		schema.KindRef:      "TEXT",
		schema.KindNumber:   "DOUBLE PRECISION",
		schema.KindBool:     "BOOLEAN",
		schema.KindDate:     "DATE",
		schema.KindDateTime: "TIMESTAMPTZ",
	},
	timestamp:   "TIMESTAMPTZ",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	timeValue:   func(t time.Time) any { return t.UTC() },
}

// SQLite guarda fechas como texto ISO-8601 y booleanos como INTEGER; el mapper los coacciona al leer.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	types: map[schema.Kind]string{
		schema.KindString:   "TEXT",
		schema.KindURI:      "TEXT",
		schema.KindEnum:     "TEXT",
		schema.KindRef:      "TEXT",
		schema.KindNumber:   "REAL",
		schema.KindBool:     "INTEGER",
		schema.KindDate:     "TEXT",
		schema.KindDateTime: "TEXT",
	},
	timestamp:   "TEXT",
	placeholder: func(int) string { return "?" },
	timeValue:   func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

// DialectByName acepta "postgres" o "sqlite".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
}

// Open abre el pool con el driver del dialecto y verifica la conexión.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, err
	}

	if d.Name == SQLite.Name {
		// cada conexión a ":memory:" es una base distinta
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if d.Name == SQLite.Name {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return db, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// DDL devuelve los CREATE TABLE en orden de carga. Las FKs solo se declaran hacia tablas
// ya creadas; profile_photo_id queda como columna simple (ciclo canine <-> media).
func (d Dialect) DDL(reg *schema.Registry) []string {
	created := map[schema.EntityType]bool{}
	out := make([]string, 0, len(reg.Types()))
	for _, t := range reg.Types() {
		e := reg.MustEntity(t)
		cols := []string{
			quote(schema.ColumnID) + " TEXT PRIMARY KEY",
			quote(schema.ColumnCreatedAt) + " " + d.timestamp + " NOT NULL",
			quote(schema.ColumnUpdatedAt) + " " + d.timestamp + " NOT NULL",
		}
		for _, f := range e.Fields {
			col := quote(f.Column) + " " + d.types[f.Kind]
			if f.Required {
				col += " NOT NULL"
			}
			if f.IsRef() && created[f.Target] {
				action := "CASCADE"
				if f.OnDelete == schema.SetNull {
					action = "SET NULL"
				}
				col += fmt.Sprintf(" REFERENCES %s(%s) ON DELETE %s", quote(reg.MustEntity(f.Target).Table), quote(schema.ColumnID), action)
			}
			cols = append(cols, col)
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(e.Table), strings.Join(cols, ",\n\t")))
		created[t] = true
	}
	return out
}
