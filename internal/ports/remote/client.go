package remote

import (
	"context"

	"pet-health-sync/internal/domain/schema"
)

// Row es una fila remota: claves snake_case, valores posiblemente nil.
type Row map[string]any

// Filter restringe un List a filas cuya columna esté en Values (column IN (...)).
// Values vacío no matchea nada.
type Filter struct {
	Column string
	Values []string
}

func Eq(column, value string) Filter { return Filter{Column: column, Values: []string{value}} }

func In(column string, values ...string) Filter { return Filter{Column: column, Values: values} }

// Client es la capacidad de persistencia remota que implementa el backend.
// Si no hay endpoint/credenciales, todos los métodos devuelven apperr.ErrNotConfigured.
type Client interface {
	List(ctx context.Context, t schema.EntityType, filters ...Filter) ([]Row, error)
	Get(ctx context.Context, t schema.EntityType, id string) (Row, bool, error)
	// Insert asigna id y timestamps del lado servidor y devuelve la fila persistida.
	Insert(ctx context.Context, t schema.EntityType, row Row) (Row, error)
	Update(ctx context.Context, t schema.EntityType, id string, row Row) (Row, error)
	// Delete es idempotente: borrar un id inexistente no es error.
	Delete(ctx context.Context, t schema.EntityType, id string) error
}

// Matches evalúa los filtros sobre una fila (útil para adapters sin query language).
func Matches(row Row, filters []Filter) bool {
	for _, f := range filters {
		v, _ := row[f.Column].(string)
		ok := false
		for _, want := range f.Values {
			if v == want {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
