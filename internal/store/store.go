// Package store es la fuente única de verdad en memoria: una colección ordenada por tipo,
// indexada por id, con cascadas según el schema y notificación a suscriptores.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
)

var (
	ErrNotFound = errors.New("not found")
)

type collection struct {
	byID  map[string]records.Record
	order []string
}

func newCollection() *collection {
	return &collection{byID: make(map[string]records.Record)}
}

func (c *collection) indexOf(id string) int {
	for i, x := range c.order {
		if x == id {
			return i
		}
	}
	return -1
}

func (c *collection) removeAt(i int) {
	c.order = append(c.order[:i], c.order[i+1:]...)
}

func (c *collection) insertAt(i int, id string) {
	if i < 0 || i > len(c.order) {
		i = len(c.order)
	}
	c.order = append(c.order, "")
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = id
}

type subscription struct {
	types map[schema.EntityType]struct{}
	fn    Listener
}

// Store es seguro para uso concurrente. Los listeners se llaman fuera del lock de estado,
// de a uno y en orden; no deben escribir al store de forma sincrónica desde el callback.
type Store struct {
	reg *schema.Registry
	now func() time.Time

	mu   sync.RWMutex
	cols map[schema.EntityType]*collection

	subsMu  sync.Mutex
	subs    map[int]subscription
	nextSub int

	dispatchMu sync.Mutex
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(reg *schema.Registry, opts ...Option) *Store {
	s := &Store{
		reg:  reg,
		now:  time.Now,
		cols: make(map[schema.EntityType]*collection),
		subs: make(map[int]subscription),
	}
	for _, t := range reg.Types() {
		s.cols[t] = newCollection()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Registry() *schema.Registry { return s.reg }

// -------------------------
// Lecturas (nunca fallan, devuelven copias)
// -------------------------

func (s *Store) GetAll(t schema.EntityType) []records.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.cols[t]
	if !ok {
		return []records.Record{}
	}
	out := make([]records.Record, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, col.byID[id].Clone())
	}
	return out
}

func (s *Store) GetByID(t schema.EntityType, id string) (records.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.cols[t]
	if !ok {
		return records.Record{}, false
	}
	r, ok := col.byID[id]
	if !ok {
		return records.Record{}, false
	}
	return r.Clone(), true
}

// GetByForeignKey: "X de Y" (canines de un user, turnos de un canine, etc).
// field debe ser una FK de t y value un id; si no, no hay matches.
func (s *Store) GetByForeignKey(t schema.EntityType, field, value string) []records.Record {
	if value == "" || !s.isRef(t, field) {
		return []records.Record{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.cols[t]
	if !ok {
		return []records.Record{}
	}
	out := make([]records.Record, 0)
	for _, id := range col.order {
		r := col.byID[id]
		if r.String(field) == value {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *Store) isRef(t schema.EntityType, field string) bool {
	e, ok := s.reg.Entity(t)
	if !ok {
		return false
	}
	f, ok := e.Field(field)
	return ok && f.IsRef()
}

func (s *Store) Count(t schema.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col, ok := s.cols[t]; ok {
		return len(col.order)
	}
	return 0
}

// Export devuelve una copia completa del estado, por tipo en orden de carga.
func (s *Store) Export() map[schema.EntityType][]records.Record {
	out := make(map[schema.EntityType][]records.Record, len(s.cols))
	for _, t := range s.reg.Types() {
		out[t] = s.GetAll(t)
	}
	return out
}

// -------------------------
// Escrituras
// -------------------------

// Insert agrega un record nuevo. Rechaza ids duplicados y FKs a padres inexistentes.
func (s *Store) Insert(rec records.Record) (ChangeSet, error) {
	s.mu.Lock()
	cs, err := s.insertLocked(rec)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(cs)
	return cs, nil
}

func (s *Store) insertLocked(rec records.Record) (ChangeSet, error) {
	col, err := s.collection(rec.Type)
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, apperr.Constraint(string(rec.Type), "id", "", "id required")
	}
	if _, dup := col.byID[rec.ID]; dup {
		return nil, apperr.Constraint(string(rec.Type), "id", rec.ID, "id already exists")
	}
	if err := s.checkRefsLocked(rec); err != nil {
		return nil, err
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}

	rec = rec.Clone()
	col.byID[rec.ID] = rec
	col.order = append(col.order, rec.ID)
	return ChangeSet{{Type: rec.Type, ID: rec.ID, Action: ActionCreate, After: ptr(rec), index: len(col.order) - 1}}, nil
}

// Upsert reemplaza el record (o lo inserta). updatedAt nunca retrocede.
func (s *Store) Upsert(rec records.Record) (ChangeSet, error) {
	s.mu.Lock()
	cs, err := s.upsertLocked(rec)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(cs)
	return cs, nil
}

func (s *Store) upsertLocked(rec records.Record) (ChangeSet, error) {
	col, err := s.collection(rec.Type)
	if err != nil {
		return nil, err
	}
	prev, exists := col.byID[rec.ID]
	if !exists {
		return s.insertLocked(rec)
	}
	if err := s.checkRefsLocked(rec); err != nil {
		return nil, err
	}
	rec = rec.Clone()
	if rec.UpdatedAt.Before(prev.UpdatedAt) {
		rec.UpdatedAt = prev.UpdatedAt
	}
	col.byID[rec.ID] = rec
	return ChangeSet{{Type: rec.Type, ID: rec.ID, Action: ActionUpdate, Before: ptr(prev), After: ptr(rec), index: col.indexOf(rec.ID)}}, nil
}

// Patch hace merge de campos (nil = borrar) en un solo cambio / una sola notificación.
func (s *Store) Patch(t schema.EntityType, id string, patch map[string]any) (records.Record, ChangeSet, error) {
	s.mu.Lock()
	col, err := s.collection(t)
	if err != nil {
		s.mu.Unlock()
		return records.Record{}, nil, err
	}
	prev, ok := col.byID[id]
	if !ok {
		s.mu.Unlock()
		return records.Record{}, nil, ErrNotFound
	}

	next := prev.Clone()
	next.Fields = prev.Fields.Merge(patch)
	next.UpdatedAt = s.bump(prev.UpdatedAt)
	if err := s.checkRefsLocked(next); err != nil {
		s.mu.Unlock()
		return records.Record{}, nil, err
	}
	col.byID[id] = next
	cs := ChangeSet{{Type: t, ID: id, Action: ActionUpdate, Before: ptr(prev), After: ptr(next), index: col.indexOf(id)}}
	s.mu.Unlock()

	s.notify(cs)
	return next.Clone(), cs, nil
}

// Remove borra el record y, en profundidad, todo lo que depende de él (hijos antes que el padre).
// Idempotente: un id ausente devuelve un ChangeSet vacío.
func (s *Store) Remove(t schema.EntityType, id string) ChangeSet {
	s.mu.Lock()
	cs := ChangeSet{}
	if _, ok := s.cols[t]; ok {
		s.removeLocked(t, id, map[records.Key]bool{}, &cs)
	}
	s.mu.Unlock()

	s.notify(cs)
	return cs
}

func (s *Store) removeLocked(t schema.EntityType, id string, removing map[records.Key]bool, cs *ChangeSet) {
	key := records.Key{Type: t, ID: id}
	col := s.cols[t]
	rec, ok := col.byID[id]
	if !ok || removing[key] {
		return
	}
	removing[key] = true

	for _, ref := range s.reg.Referencing(t) {
		child := s.cols[ref.Child]
		// copia: la cascada modifica el orden mientras iteramos
		for _, cid := range append([]string(nil), child.order...) {
			c, ok := child.byID[cid]
			if !ok || c.String(ref.Field) != id {
				continue
			}
			switch ref.OnDelete {
			case schema.Cascade:
				s.removeLocked(ref.Child, cid, removing, cs)
			case schema.SetNull:
				if removing[records.Key{Type: ref.Child, ID: cid}] {
					continue
				}
				next := c.Clone()
				delete(next.Fields, ref.Field)
				next.UpdatedAt = s.bump(c.UpdatedAt)
				child.byID[cid] = next
				*cs = append(*cs, Change{Type: ref.Child, ID: cid, Action: ActionUpdate, Before: ptr(c), After: ptr(next), index: child.indexOf(cid)})
			}
		}
	}

	idx := col.indexOf(id)
	col.removeAt(idx)
	delete(col.byID, id)
	*cs = append(*cs, Change{Type: t, ID: id, Action: ActionDelete, Before: ptr(rec), index: idx})
}

// ReplaceAll reemplaza la colección completa (carga inicial / seed) respetando el orden dado.
// No valida FKs: el caller entrega un dataset ya consistente.
func (s *Store) ReplaceAll(t schema.EntityType, recs []records.Record) {
	s.ReplaceDataset(map[schema.EntityType][]records.Record{t: recs})
}

// ReplaceDataset reemplaza varias colecciones en una sola notificación.
func (s *Store) ReplaceDataset(data map[schema.EntityType][]records.Record) {
	s.mu.Lock()
	types := make([]schema.EntityType, 0, len(data))
	for _, t := range s.reg.Types() {
		recs, ok := data[t]
		if !ok {
			continue
		}
		col := newCollection()
		for _, r := range recs {
			if r.ID == "" {
				continue
			}
			if _, dup := col.byID[r.ID]; !dup {
				col.order = append(col.order, r.ID)
			}
			r.Type = t
			col.byID[r.ID] = r.Clone()
		}
		s.cols[t] = col
		types = append(types, t)
	}
	s.mu.Unlock()

	if len(types) > 0 {
		s.dispatch(Notification{Types: types})
	}
}

// Rekey cambia el id de un record (temporal -> servidor) y reescribe toda FK que lo apuntaba.
func (s *Store) Rekey(t schema.EntityType, oldID, newID string) (ChangeSet, error) {
	if oldID == newID {
		return ChangeSet{}, nil
	}
	s.mu.Lock()
	cs, err := s.rekeyLocked(t, oldID, newID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(cs)
	return cs, nil
}

// Reconcile aplica la confirmación del servidor como un solo cambio: rekey de oldID al id
// de server (si difiere) y merge de la fila. Si el merge falla, el rekey se deshace.
func (s *Store) Reconcile(t schema.EntityType, oldID string, server records.Record) (ChangeSet, error) {
	server.Type = t
	s.mu.Lock()
	cs := ChangeSet{}
	if oldID != server.ID {
		rk, err := s.rekeyLocked(t, oldID, server.ID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		cs = append(cs, rk...)
	}
	up, err := s.upsertLocked(server)
	if err != nil {
		s.revertLocked(cs)
		s.mu.Unlock()
		return nil, err
	}
	cs = append(cs, up...)
	s.mu.Unlock()

	s.notify(cs)
	return cs, nil
}

func (s *Store) rekeyLocked(t schema.EntityType, oldID, newID string) (ChangeSet, error) {
	col, err := s.collection(t)
	if err != nil {
		return nil, err
	}
	rec, ok := col.byID[oldID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, dup := col.byID[newID]; dup {
		return nil, apperr.Constraint(string(t), "id", newID, "id already exists")
	}

	next := rec.Clone()
	next.ID = newID
	idx := col.indexOf(oldID)
	col.order[idx] = newID
	delete(col.byID, oldID)
	col.byID[newID] = next
	cs := ChangeSet{{Type: t, ID: newID, Action: ActionRekey, Before: ptr(rec), After: ptr(next), index: idx}}

	for _, ref := range s.reg.Referencing(t) {
		child := s.cols[ref.Child]
		for _, cid := range child.order {
			c := child.byID[cid]
			if c.String(ref.Field) != oldID {
				continue
			}
			moved := c.Clone()
			moved.Fields[ref.Field] = newID
			child.byID[cid] = moved
			cs = append(cs, Change{Type: ref.Child, ID: cid, Action: ActionUpdate, Before: ptr(c), After: ptr(moved), index: child.indexOf(cid)})
		}
	}
	return cs, nil
}

// Revert deshace un ChangeSet en orden inverso (rollback optimista).
// Cambios que ya no aplican (p.ej. el record fue borrado por otra operación) se saltean.
func (s *Store) Revert(cs ChangeSet) {
	if cs.Empty() {
		return
	}
	s.mu.Lock()
	s.revertLocked(cs)
	s.mu.Unlock()

	s.notify(cs)
}

func (s *Store) revertLocked(cs ChangeSet) {
	for i := len(cs) - 1; i >= 0; i-- {
		c := cs[i]
		col, ok := s.cols[c.Type]
		if !ok {
			continue
		}
		switch c.Action {
		case ActionCreate:
			if idx := col.indexOf(c.After.ID); idx >= 0 {
				col.removeAt(idx)
				delete(col.byID, c.After.ID)
			}
		case ActionUpdate:
			if _, ok := col.byID[c.ID]; ok {
				col.byID[c.ID] = c.Before.Clone()
			}
		case ActionDelete:
			if _, ok := col.byID[c.Before.ID]; !ok {
				col.insertAt(c.index, c.Before.ID)
				col.byID[c.Before.ID] = c.Before.Clone()
			}
		case ActionRekey:
			if idx := col.indexOf(c.After.ID); idx >= 0 {
				col.order[idx] = c.Before.ID
				delete(col.byID, c.After.ID)
				col.byID[c.Before.ID] = c.Before.Clone()
			}
		}
	}
}

// -------------------------
// Helpers
// -------------------------

func (s *Store) collection(t schema.EntityType) (*collection, error) {
	col, ok := s.cols[t]
	if !ok {
		return nil, apperr.Schema(string(t), "", "unknown entity type")
	}
	return col, nil
}

// checkRefsLocked: toda FK presente debe apuntar a un padre existente; las requeridas deben estar.
func (s *Store) checkRefsLocked(rec records.Record) error {
	e, ok := s.reg.Entity(rec.Type)
	if !ok {
		return apperr.Schema(string(rec.Type), "", "unknown entity type")
	}
	for _, f := range e.ForeignKeys() {
		v := rec.String(f.Name)
		if v == "" {
			if f.Required {
				return apperr.Constraint(string(rec.Type), f.Name, "", "required reference missing")
			}
			continue
		}
		if _, ok := s.cols[f.Target].byID[v]; !ok {
			return apperr.Constraint(string(rec.Type), f.Name, string(f.Target)+"/"+v, "parent does not exist")
		}
	}
	return nil
}

// bump devuelve un updatedAt >= prev.
func (s *Store) bump(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// -------------------------
// Suscripciones
// -------------------------

// Subscribe registra un listener; sin tipos recibe todo. Devuelve la función para desuscribirse.
func (s *Store) Subscribe(fn Listener, types ...schema.EntityType) func() {
	sub := subscription{fn: fn}
	if len(types) > 0 {
		sub.types = make(map[schema.EntityType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(cs ChangeSet) {
	if cs.Empty() {
		return
	}
	s.dispatch(Notification{Types: cs.Types(), Changes: cs})
}

func (s *Store) dispatch(n Notification) {
	s.subsMu.Lock()
	targets := make([]Listener, 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		sub := s.subs[id]
		if sub.types != nil {
			match := false
			for _, t := range n.Types {
				if _, ok := sub.types[t]; ok {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		targets = append(targets, sub.fn)
	}
	s.subsMu.Unlock()

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	for _, fn := range targets {
		fn(n)
	}
}
