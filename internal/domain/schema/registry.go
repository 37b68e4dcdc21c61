package schema

import (
	"fmt"
	"sync"
)

// Ref es una arista del índice inverso: Child.Field apunta al padre indexado.
type Ref struct {
	Child    EntityType
	Field    string
	OnDelete OnDelete
}

// Registry agrupa las entidades y los índices derivados (se construyen una sola vez).
type Registry struct {
	byType  map[EntityType]*Entity
	order   []EntityType
	reverse map[EntityType][]Ref
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default devuelve el registry con las entidades del dominio.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New(definitions...)
		if err != nil {
			// definitions es estático; un error acá es un bug de programación.
			panic(fmt.Errorf("schema: invalid definitions: %w", err))
		}
		defaultReg = r
	})
	return defaultReg
}

// New arma un registry validando que cada FK apunte a un tipo conocido.
func New(entities ...Entity) (*Registry, error) {
	r := &Registry{
		byType:  make(map[EntityType]*Entity, len(entities)),
		reverse: make(map[EntityType][]Ref),
	}
	declared := make([]EntityType, 0, len(entities))
	for i := range entities {
		e := entities[i]
		if e.Type == "" || e.Table == "" {
			return nil, fmt.Errorf("entity %d: type and table required", i)
		}
		if _, dup := r.byType[e.Type]; dup {
			return nil, fmt.Errorf("entity %s declared twice", e.Type)
		}
		r.byType[e.Type] = &e
		declared = append(declared, e.Type)
	}

	for _, t := range declared {
		e := r.byType[t]
		seen := map[string]struct{}{}
		for _, f := range e.Fields {
			if f.Name == "" || f.Column == "" {
				return nil, fmt.Errorf("%s: field without name/column", t)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, fmt.Errorf("%s.%s declared twice", t, f.Name)
			}
			seen[f.Name] = struct{}{}

			switch f.Kind {
			case KindRef:
				if _, ok := r.byType[f.Target]; !ok {
					return nil, fmt.Errorf("%s.%s references unknown entity %s", t, f.Name, f.Target)
				}
				if f.OnDelete != Cascade && f.OnDelete != SetNull {
					return nil, fmt.Errorf("%s.%s: unknown on-delete %q", t, f.Name, f.OnDelete)
				}
				if f.Required && f.OnDelete == SetNull {
					return nil, fmt.Errorf("%s.%s: required ref cannot be set-null", t, f.Name)
				}
				r.reverse[f.Target] = append(r.reverse[f.Target], Ref{Child: t, Field: f.Name, OnDelete: f.OnDelete})
			case KindEnum:
				if len(f.Enum) == 0 {
					return nil, fmt.Errorf("%s.%s: enum without values", t, f.Name)
				}
			case KindURI:
				if f.StoragePathField != "" {
					if _, ok := e.Field(f.StoragePathField); !ok {
						return nil, fmt.Errorf("%s.%s: unknown storage path field %s", t, f.Name, f.StoragePathField)
					}
				}
			}
		}
		if e.ScopeField != "" && e.ScopeField != ColumnID {
			if f, ok := e.Field(e.ScopeField); !ok || !f.IsRef() {
				return nil, fmt.Errorf("%s: scope field %s must be a ref", t, e.ScopeField)
			}
		}
	}

	order, err := topoOrder(r, declared)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// Entity devuelve la definición del tipo.
func (r *Registry) Entity(t EntityType) (*Entity, bool) {
	e, ok := r.byType[t]
	return e, ok
}

// MustEntity es para tipos constantes del propio paquete/tests.
func (r *Registry) MustEntity(t EntityType) *Entity {
	e, ok := r.byType[t]
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity %s", t))
	}
	return e
}

// Types devuelve los tipos en orden de carga (padres antes que hijos).
func (r *Registry) Types() []EntityType {
	return append([]EntityType(nil), r.order...)
}

// Referencing devuelve quién apunta al tipo (índice inverso de FKs).
func (r *Registry) Referencing(t EntityType) []Ref {
	return append([]Ref(nil), r.reverse[t]...)
}

// ParseEntityType acepta el nombre exacto o el nombre de tabla.
func (r *Registry) ParseEntityType(s string) (EntityType, bool) {
	if _, ok := r.byType[EntityType(s)]; ok {
		return EntityType(s), true
	}
	for _, t := range r.order {
		if r.byType[t].Table == s {
			return t, true
		}
	}
	return "", false
}

// topoOrder: Kahn sobre las aristas requeridas y las que apuntan a entidades globales.
// Los refs opcionales entre entidades scopeadas (p.ej. profilePhotoId) no ordenan,
// así se evita el ciclo canine <-> media.
func topoOrder(r *Registry, declared []EntityType) ([]EntityType, error) {
	indeg := make(map[EntityType]int, len(declared))
	children := make(map[EntityType][]EntityType)
	for _, t := range declared {
		indeg[t] += 0
		for _, f := range r.byType[t].ForeignKeys() {
			if f.Target == t {
				continue
			}
			if !f.Required && !r.byType[f.Target].Global() {
				continue
			}
			indeg[t]++
			children[f.Target] = append(children[f.Target], t)
		}
	}

	out := make([]EntityType, 0, len(declared))
	done := make(map[EntityType]bool, len(declared))
	for len(out) < len(declared) {
		progressed := false
		// Respeta el orden de declaración como desempate.
		for _, t := range declared {
			if done[t] || indeg[t] > 0 {
				continue
			}
			done[t] = true
			out = append(out, t)
			for _, c := range children[t] {
				indeg[c]--
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("schema: dependency cycle between entities")
		}
	}
	return out, nil
}
