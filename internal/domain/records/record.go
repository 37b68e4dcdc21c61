// Package records contiene el objeto de dominio genérico que circula entre mapper, store y sync.
package records

import (
	"time"

	"pet-health-sync/internal/domain/schema"
)

// Fields son los valores de dominio por nombre camelCase.
// Un campo ausente equivale a "undefined"; nunca se guarda nil.
// Valores posibles: string (string/enum/date/uri/ref), float64, bool.
type Fields map[string]any

// Record es una entidad en forma de dominio.
type Record struct {
	Type      schema.EntityType
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    Fields
}

func (r Record) Clone() Record {
	cp := r
	cp.Fields = r.Fields.Clone()
	return cp
}

func (r Record) Ref() Key { return Key{Type: r.Type, ID: r.ID} }

// String devuelve el valor string del campo (vacío si no existe o no es string).
func (r Record) String(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

func (r Record) Number(name string) (float64, bool) {
	v, ok := r.Fields[name].(float64)
	return v, ok
}

func (r Record) Bool(name string) bool {
	b, _ := r.Fields[name].(bool)
	return b
}

func (r Record) Has(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge aplica un patch: nil borra el campo, cualquier otro valor lo reemplaza.
func (f Fields) Merge(patch map[string]any) Fields {
	out := f.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Key identifica un registro dentro del store.
type Key struct {
	Type schema.EntityType
	ID   string
}

func (k Key) String() string { return string(k.Type) + "/" + k.ID }
