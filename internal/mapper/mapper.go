// Package mapper traduce entre filas remotas (snake_case, nullables) y records de dominio.
package mapper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/remote"
)

type Mapper struct {
	reg       *schema.Registry
	refresher *URLRefresher
	log       logger.Logger
	now       func() time.Time
}

type Option func(*Mapper)

// WithURLRefresher habilita el refresco de URLs firmadas al leer media/adjuntos.
func WithURLRefresher(r *URLRefresher) Option { return func(m *Mapper) { m.refresher = r } }

func WithLogger(l logger.Logger) Option { return func(m *Mapper) { m.log = l } }

func WithClock(now func() time.Time) Option { return func(m *Mapper) { m.now = now } }

func New(reg *schema.Registry, opts ...Option) *Mapper {
	m := &Mapper{
		reg: reg,
		log: logger.NewNop(),
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mapper) Registry() *schema.Registry { return m.reg }

func (m *Mapper) entity(t schema.EntityType) (*schema.Entity, error) {
	e, ok := m.reg.Entity(t)
	if !ok {
		return nil, apperr.Schema(string(t), "", "unknown entity type")
	}
	return e, nil
}

// FromRemote convierte una fila remota en record. Es el único punto del mapping con I/O
// (refresco de URLs firmadas); si el refresco falla se conserva la URL vieja.
func (m *Mapper) FromRemote(ctx context.Context, t schema.EntityType, row remote.Row) (records.Record, error) {
	e, err := m.entity(t)
	if err != nil {
		return records.Record{}, err
	}

	id, _ := asString(row[schema.ColumnID])
	id = strings.TrimSpace(id)
	if id == "" {
		if n, ok := asNumber(row[schema.ColumnID]); ok {
			id = fmt.Sprintf("%.0f", n)
		}
	}
	if id == "" {
		return records.Record{}, apperr.Schema(string(t), "id", "missing id")
	}

	createdAt, ok := parseTimestamp(row[schema.ColumnCreatedAt])
	if !ok {
		return records.Record{}, apperr.Schema(string(t), "createdAt", "missing or invalid timestamp")
	}
	updatedAt, ok := parseTimestamp(row[schema.ColumnUpdatedAt])
	if !ok {
		// algunos backends no mantienen updated_at hasta el primer update
		updatedAt = createdAt
	}

	fields := records.Fields{}
	for _, f := range e.Fields {
		raw, present := row[f.Column]
		if !present || raw == nil {
			if f.Required {
				return records.Record{}, apperr.Schema(string(t), f.Name, "required field missing")
			}
			continue
		}
		v, err := coerce(e, f, raw)
		if err != nil {
			return records.Record{}, err
		}
		if f.Kind == schema.KindRef && v == "" {
			if f.Required {
				return records.Record{}, apperr.Schema(string(t), f.Name, "required reference empty")
			}
			continue
		}
		fields[f.Name] = v
	}

	rec := records.Record{
		Type:      t,
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Fields:    fields,
	}
	m.refreshURLs(ctx, e, &rec)
	return rec, nil
}

func (m *Mapper) refreshURLs(ctx context.Context, e *schema.Entity, rec *records.Record) {
	if m.refresher == nil {
		return
	}
	for _, f := range e.Fields {
		if f.Kind != schema.KindURI || f.StoragePathField == "" {
			continue
		}
		path := rec.String(f.StoragePathField)
		if path == "" || !m.refresher.NeedsRefresh(rec.String(f.Name)) {
			continue
		}
		fresh, err := m.refresher.Fresh(ctx, path)
		if err != nil {
			m.log.Warn("signed url refresh failed", map[string]any{
				"entity": string(rec.Type),
				"id":     rec.ID,
				"field":  f.Name,
				"error":  err,
			})
			continue
		}
		rec.Fields[f.Name] = fresh
	}
}

// ForgetURL descarta la URL cacheada de un path (el blob fue borrado).
func (m *Mapper) ForgetURL(storedPath string) {
	if m.refresher != nil {
		m.refresher.Forget(storedPath)
	}
}

// ToRemote es la fila completa del record (incluye id y timestamps, nulls explícitos).
func (m *Mapper) ToRemote(rec records.Record) (remote.Row, error) {
	e, err := m.entity(rec.Type)
	if err != nil {
		return nil, err
	}
	row := remote.Row{
		schema.ColumnID:        rec.ID,
		schema.ColumnCreatedAt: formatTimestamp(rec.CreatedAt),
		schema.ColumnUpdatedAt: formatTimestamp(rec.UpdatedAt),
	}
	for _, f := range e.Fields {
		if v, ok := rec.Fields[f.Name]; ok {
			row[f.Column] = v
			continue
		}
		row[f.Column] = nil
	}
	return row, nil
}

// ToInsert omite id y created_at (los asigna el servidor); solo manda campos presentes.
func (m *Mapper) ToInsert(t schema.EntityType, fields records.Fields) (remote.Row, error) {
	e, err := m.entity(t)
	if err != nil {
		return nil, err
	}
	row := remote.Row{schema.ColumnUpdatedAt: formatTimestamp(m.now())}
	for _, f := range e.Fields {
		if v, ok := fields[f.Name]; ok && v != nil {
			row[f.Column] = v
		}
	}
	return row, nil
}

// ToUpdate manda solo las columnas del patch (nil = limpiar) y siempre updated_at = now.
func (m *Mapper) ToUpdate(t schema.EntityType, patch map[string]any) (remote.Row, error) {
	e, err := m.entity(t)
	if err != nil {
		return nil, err
	}
	row := remote.Row{schema.ColumnUpdatedAt: formatTimestamp(m.now())}
	for name, v := range patch {
		f, ok := e.Field(name)
		if !ok {
			return nil, apperr.Schema(string(t), name, "unknown field")
		}
		row[f.Column] = v
	}
	return row, nil
}

// Normalize valida y coacciona un payload de escritura que viene de la UI.
// partial=false (create): exige los requeridos y descarta nils.
// partial=true (update): conserva nil como "limpiar", salvo en requeridos.
// id/createdAt/updatedAt se ignoran: son del sistema.
func (m *Mapper) Normalize(t schema.EntityType, input map[string]any, partial bool) (map[string]any, error) {
	e, err := m.entity(t)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(input))
	for name, raw := range input {
		switch name {
		case "id", "createdAt", "updatedAt":
			continue
		}
		f, ok := e.Field(name)
		if !ok {
			return nil, apperr.Schema(string(t), name, "unknown field")
		}
		if raw == nil {
			if f.Required {
				return nil, apperr.Schema(string(t), name, "required field cannot be cleared")
			}
			if partial {
				out[name] = nil
			}
			continue
		}
		v, err := coerce(e, f, raw)
		if err != nil {
			return nil, err
		}
		if f.Kind == schema.KindRef && v == "" {
			if f.Required {
				return nil, apperr.Schema(string(t), name, "required reference empty")
			}
			if partial {
				out[name] = nil
			}
			continue
		}
		if f.Required && f.Kind == schema.KindString {
			if s, _ := v.(string); strings.TrimSpace(s) == "" {
				return nil, apperr.Schema(string(t), name, "required field empty")
			}
		}
		out[name] = v
	}

	if !partial {
		for _, f := range e.Fields {
			if !f.Required {
				continue
			}
			if _, ok := out[f.Name]; !ok {
				return nil, apperr.Schema(string(t), f.Name, "required field missing")
			}
		}
	}
	return out, nil
}
