package store

import (
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionRekey: el record cambió de id (temporal -> id del servidor).
	ActionRekey Action = "rekey"
)

// Change es la imagen antes/después de un record tocado por una mutación.
// Before=nil en create, After=nil en delete. En rekey, Before.ID es el id viejo.
type Change struct {
	Type   schema.EntityType
	ID     string
	Action Action
	Before *records.Record
	After  *records.Record

	// posición en la colección, para que Revert restaure el orden exacto
	index int
}

// ChangeSet es todo lo que tocó una mutación lógica. Sirve como snapshot para rollback.
type ChangeSet []Change

func (cs ChangeSet) Empty() bool { return len(cs) == 0 }

// Types devuelve los tipos tocados, sin repetir, en orden de aparición.
func (cs ChangeSet) Types() []schema.EntityType {
	seen := map[schema.EntityType]struct{}{}
	out := make([]schema.EntityType, 0)
	for _, c := range cs {
		if _, ok := seen[c.Type]; ok {
			continue
		}
		seen[c.Type] = struct{}{}
		out = append(out, c.Type)
	}
	return out
}

// Deleted devuelve los records borrados, en el orden en que se borraron (hijos primero).
func (cs ChangeSet) Deleted() []records.Record {
	out := make([]records.Record, 0)
	for _, c := range cs {
		if c.Action == ActionDelete && c.Before != nil {
			out = append(out, c.Before.Clone())
		}
	}
	return out
}

// Updated devuelve los cambios de tipo update (p.ej. set-null de una cascada).
func (cs ChangeSet) Updated() []Change {
	out := make([]Change, 0)
	for _, c := range cs {
		if c.Action == ActionUpdate {
			out = append(out, c)
		}
	}
	return out
}

func ptr(r records.Record) *records.Record {
	cp := r.Clone()
	return &cp
}

// Notification se emite una vez por mutación lógica.
type Notification struct {
	Types   []schema.EntityType
	Changes ChangeSet
}

func (n Notification) Touches(t schema.EntityType) bool {
	for _, x := range n.Types {
		if x == t {
			return true
		}
	}
	return false
}

type Listener func(Notification)
