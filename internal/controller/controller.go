// Package controller es el único componente que habla con el backend remoto.
// Implementa la carga inicial scopeada por rol, el CRUD optimista con rollback
// y el fallback al seed cuando el backend no está configurado.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/mapper"
	"pet-health-sync/internal/metrics"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/remote"
	"pet-health-sync/internal/ports/storage"
	"pet-health-sync/internal/seed"
	"pet-health-sync/internal/store"
)

const (
	DefaultTimeout = 30 * time.Second

	// TempPrefix marca ids generados localmente que todavía no confirmó el servidor.
	TempPrefix = "tmp-"
)

var (
	ErrNotFound = store.ErrNotFound
	// ErrStorageNotConfigured: upload pedido sin colaborador de storage.
	ErrStorageNotConfigured = errors.New("storage not configured")
)

// State del protocolo optimista de cada operación.
type State string

const (
	StatePending   State = "pending"
	StateInFlight  State = "in_flight"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Viewer es el usuario autenticado para el que se carga el store.
type Viewer struct {
	UserID string
	Role   schema.Role
}

type Session struct {
	Viewer     Viewer
	SeedBacked bool
	LoadedAt   time.Time
}

type Controller struct {
	reg     *schema.Registry
	store   *store.Store
	remote  remote.Client
	mapper  *mapper.Mapper
	storage storage.Storage
	seed    func() map[schema.EntityType][]records.Record

	log     logger.Logger
	metrics *metrics.SyncMetrics
	timeout time.Duration
	now     func() time.Time

	locks *keyedLocks

	pendMu  sync.Mutex
	pending map[records.Key]*pendingCreate

	sessMu  sync.RWMutex
	session Session
}

// pendingCreate permite a un hijo esperar a que su padre temporal tenga id de servidor.
type pendingCreate struct {
	done chan struct{}
	id   string
	err  error

	settledAt time.Time
}

// pendingGrace: cuánto se recuerda un create ya resuelto para traducir su id temporal.
const pendingGrace = time.Minute

type Option func(*Controller)

func WithStorage(s storage.Storage) Option { return func(c *Controller) { c.storage = s } }

func WithLogger(l logger.Logger) Option { return func(c *Controller) { c.log = l } }

func WithMetrics(m *metrics.SyncMetrics) Option { return func(c *Controller) { c.metrics = m } }

// WithTimeout fija el límite por llamada remota; <= 0 deja el default.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithSeed(fn func() map[schema.EntityType][]records.Record) Option {
	return func(c *Controller) { c.seed = fn }
}

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// New arma el controller. rc nil equivale a un backend no configurado; m nil usa un mapper sin refresco de URLs.
func New(st *store.Store, rc remote.Client, m *mapper.Mapper, opts ...Option) *Controller {
	c := &Controller{
		reg:     st.Registry(),
		store:   st,
		remote:  rc,
		mapper:  m,
		seed:    seed.Dataset,
		log:     logger.NewNop(),
		timeout: DefaultTimeout,
		now:     time.Now,
		locks:   newKeyedLocks(),
		pending: make(map[records.Key]*pendingCreate),
	}
	for _, o := range opts {
		o(c)
	}
	if c.mapper == nil {
		c.mapper = mapper.New(c.reg, mapper.WithLogger(c.log))
	}
	if c.metrics != nil {
		st.Subscribe(func(n store.Notification) {
			for _, t := range n.Types {
				c.metrics.SetRecords(string(t), st.Count(t))
			}
		})
	}
	return c
}

func (c *Controller) Store() *store.Store { return c.store }

func (c *Controller) Session() Session {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.session
}

func (c *Controller) seedBacked() bool {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.session.SeedBacked
}

// local: las mutaciones no salen a la red (seed o sin cliente remoto).
func (c *Controller) local() bool {
	return c.remote == nil || c.seedBacked()
}

// -------------------------
// Carga
// -------------------------

// Load trae todas las entidades scopeadas al viewer y reemplaza el store de una vez.
// NotConfigured, o backend inalcanzable en la primera carga -> seed.
// Cualquier otra RemoteFailure deja el store como estaba y se devuelve el error.
func (c *Controller) Load(ctx context.Context, v Viewer) error {
	start := c.now()
	log := c.log.With(map[string]any{"op": "load", "viewer": v.UserID, "role": string(v.Role)})

	data, err := c.fetchAll(ctx, v, log)
	if errors.Is(err, apperr.ErrNotConfigured) {
		c.loadSeed(v)
		log.Info("remote not configured, using seed data", map[string]any{"seed_backed": true})
		c.metrics.RecordOperation("*", "load", metrics.OutcomeLocal, c.now().Sub(start))
		return nil
	}
	if err != nil && c.Session().LoadedAt.IsZero() && apperr.Unreachable(err) {
		c.loadSeed(v)
		log.Warn("remote unreachable on first load, using seed data", map[string]any{"seed_backed": true, "error": err})
		c.metrics.RecordOperation("*", "load", metrics.OutcomeLocal, c.now().Sub(start))
		return nil
	}
	if err != nil {
		log.Error("load failed", map[string]any{"error": err})
		c.metrics.RecordOperation("*", "load", metrics.OutcomeRolledBack, c.now().Sub(start))
		return err
	}

	c.dropInconsistent(data, log)
	c.resetPending()
	c.store.ReplaceDataset(data)
	c.setSession(Session{Viewer: v, SeedBacked: false, LoadedAt: c.now().UTC()})
	c.metrics.RecordOperation("*", "load", metrics.OutcomeSuccess, c.now().Sub(start))
	log.Info("store loaded", map[string]any{"seed_backed": false})
	return nil
}

// Refresh vuelve a cargar para el viewer de la sesión actual.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.Load(ctx, c.Session().Viewer)
}

func (c *Controller) loadSeed(v Viewer) {
	c.resetPending()
	c.store.ReplaceDataset(c.seed())
	c.setSession(Session{Viewer: v, SeedBacked: true, LoadedAt: c.now().UTC()})
}

func (c *Controller) setSession(s Session) {
	c.sessMu.Lock()
	c.session = s
	c.sessMu.Unlock()
	c.metrics.SetSeedBacked(s.SeedBacked)
}

func (c *Controller) resetPending() {
	c.pendMu.Lock()
	c.pending = make(map[records.Key]*pendingCreate)
	c.pendMu.Unlock()
}

func (c *Controller) fetchAll(ctx context.Context, v Viewer, log logger.Logger) (map[schema.EntityType][]records.Record, error) {
	if c.remote == nil {
		return nil, apperr.ErrNotConfigured
	}
	data := make(map[schema.EntityType][]records.Record)
	for _, t := range c.reg.Types() {
		filters, skip := c.scope(t, v, data)
		if skip {
			data[t] = []records.Record{}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		rows, err := c.remote.List(callCtx, t, filters...)
		cancel()
		if err != nil {
			c.metrics.RecordRemoteError(string(t), "list")
			return nil, remoteErr("list", t, "", err)
		}

		recs := make([]records.Record, 0, len(rows))
		for _, row := range rows {
			rec, err := c.mapper.FromRemote(ctx, t, row)
			if err != nil {
				// fila envenenada: fuera del store, pero queda registrada
				log.Warn("skipping unmappable row", map[string]any{"entity": string(t), "id": row[schema.ColumnID], "error": err})
				c.metrics.RecordPoisoned(string(t))
				continue
			}
			recs = append(recs, rec)
		}
		data[t] = recs
	}
	return data, nil
}

// scope arma los filtros del List según el rol. Admin y entidades globales van sin filtro.
// skip=true cuando el scope no puede matchear nada (p.ej. un owner sin canines).
func (c *Controller) scope(t schema.EntityType, v Viewer, loaded map[schema.EntityType][]records.Record) ([]remote.Filter, bool) {
	e := c.reg.MustEntity(t)
	if v.Role == schema.RoleAdmin || e.Global() {
		return nil, false
	}
	if e.ScopeField == schema.ColumnID {
		if v.UserID == "" {
			return nil, true
		}
		return []remote.Filter{remote.Eq(schema.ColumnID, v.UserID)}, false
	}

	f, _ := e.Field(e.ScopeField)
	parents := loaded[f.Target]
	if len(parents) == 0 {
		return nil, true
	}
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	return []remote.Filter{remote.In(f.Column, ids...)}, false
}

// dropInconsistent excluye huérfanos (FK requerida sin padre) y limpia FKs opcionales colgadas.
func (c *Controller) dropInconsistent(data map[schema.EntityType][]records.Record, log logger.Logger) {
	alive := make(map[records.Key]bool)
	for _, t := range c.reg.Types() {
		e := c.reg.MustEntity(t)
		kept := make([]records.Record, 0, len(data[t]))
		for _, r := range data[t] {
			orphan := false
			for _, f := range e.ForeignKeys() {
				if !f.Required {
					continue
				}
				if !alive[records.Key{Type: f.Target, ID: r.String(f.Name)}] {
					orphan = true
					log.Warn("dropping orphan record", map[string]any{"entity": string(t), "id": r.ID, "field": f.Name})
					break
				}
			}
			if orphan {
				continue
			}
			alive[records.Key{Type: t, ID: r.ID}] = true
			kept = append(kept, r)
		}
		data[t] = kept
	}

	for _, t := range c.reg.Types() {
		e := c.reg.MustEntity(t)
		for _, r := range data[t] {
			for _, f := range e.ForeignKeys() {
				if f.Required || !r.Has(f.Name) {
					continue
				}
				if !alive[records.Key{Type: f.Target, ID: r.String(f.Name)}] {
					delete(r.Fields, f.Name)
				}
			}
		}
	}
}

// -------------------------
// Escrituras
// -------------------------

// Create aplica el record con id temporal, lo persiste y lo rekeya al id del servidor.
func (c *Controller) Create(ctx context.Context, t schema.EntityType, fields map[string]any) (records.Record, error) {
	start := c.now()
	fields, err := c.mapper.Normalize(t, fields, false)
	if err != nil {
		c.metrics.RecordOperation(string(t), "create", metrics.OutcomeRejected, c.now().Sub(start))
		return records.Record{}, err
	}

	now := c.now().UTC()
	rec := records.Record{Type: t, CreatedAt: now, UpdatedAt: now, Fields: fields}

	if c.local() {
		rec.ID = uuid.NewString()
		if _, err := c.store.Insert(rec); err != nil {
			c.metrics.RecordOperation(string(t), "create", metrics.OutcomeRejected, c.now().Sub(start))
			return records.Record{}, err
		}
		c.metrics.RecordOperation(string(t), "create", metrics.OutcomeLocal, c.now().Sub(start))
		return rec.Clone(), nil
	}

	rec.ID = TempPrefix + uuid.NewString()
	key := rec.Ref()
	unlock, err := c.locks.lock(ctx, key)
	if err != nil {
		return records.Record{}, remoteErr("create", t, rec.ID, err)
	}
	defer unlock()

	p := c.registerPending(key)
	out, err := c.create(ctx, rec)
	c.settlePending(p, out.ID, err)

	c.finish(t, "create", out.ID, start, err)
	return out, err
}

func (c *Controller) create(ctx context.Context, rec records.Record) (records.Record, error) {
	t, tempID := rec.Type, rec.ID
	log := c.log.With(map[string]any{"op": "create", "entity": string(t), "id": tempID})

	// Pending: visible ya en el store; FKs a padres inexistentes se rechazan acá.
	if _, err := c.store.Insert(rec); err != nil {
		return records.Record{}, err
	}
	log.Debug("operation state", map[string]any{"state": string(StatePending)})

	fail := func(err error) (records.Record, error) {
		// Remove y no Revert: si un hijo se creó encima del temporal, cae en cascada.
		c.store.Remove(t, tempID)
		log.Warn("operation state", map[string]any{"state": string(StateFailed), "error": err})
		return records.Record{}, err
	}

	if _, err := c.awaitParents(ctx, t, rec.Fields); err != nil {
		return fail(err)
	}
	// el rekey del padre ya reescribió nuestras FKs en el store
	cur, ok := c.store.GetByID(t, tempID)
	if !ok {
		return fail(apperr.Constraint(string(t), "", tempID, "removed before it was persisted"))
	}

	row, err := c.mapper.ToInsert(t, cur.Fields)
	if err != nil {
		return fail(err)
	}
	log.Debug("operation state", map[string]any{"state": string(StateInFlight)})
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	saved, err := c.remote.Insert(callCtx, t, row)
	cancel()
	if err != nil {
		c.metrics.RecordRemoteError(string(t), "insert")
		return fail(remoteErr("insert", t, tempID, err))
	}

	server, err := c.mapper.FromRemote(ctx, t, saved)
	if err != nil {
		return fail(remoteErr("insert", t, tempID, err))
	}
	// rekey + timestamps del servidor en una sola notificación
	if _, err := c.store.Reconcile(t, tempID, server); err != nil {
		return fail(err)
	}

	out, _ := c.store.GetByID(t, server.ID)
	log.Debug("operation state", map[string]any{"state": string(StateConfirmed), "server_id": server.ID})
	return out, nil
}

// Update aplica el patch localmente, lo persiste y mergea la fila del servidor.
// Si el remoto falla, el record vuelve exactamente a su estado previo.
func (c *Controller) Update(ctx context.Context, t schema.EntityType, id string, fields map[string]any) (records.Record, error) {
	start := c.now()
	patch, err := c.mapper.Normalize(t, fields, true)
	if err != nil {
		c.metrics.RecordOperation(string(t), "update", metrics.OutcomeRejected, c.now().Sub(start))
		return records.Record{}, err
	}

	id, unlock, err := c.acquire(ctx, t, id)
	if err != nil {
		return records.Record{}, err
	}
	defer unlock()

	out, err := c.update(ctx, t, id, patch)
	c.finish(t, "update", id, start, err)
	return out, err
}

func (c *Controller) update(ctx context.Context, t schema.EntityType, id string, patch map[string]any) (records.Record, error) {
	log := c.log.With(map[string]any{"op": "update", "entity": string(t), "id": id})

	next, cs, err := c.store.Patch(t, id, patch)
	if err != nil {
		return records.Record{}, err
	}
	log.Debug("operation state", map[string]any{"state": string(StatePending)})
	if c.local() {
		return next, nil
	}

	fail := func(err error) (records.Record, error) {
		c.store.Revert(cs)
		log.Warn("operation state", map[string]any{"state": string(StateFailed), "error": err})
		return records.Record{}, err
	}

	resolved, err := c.awaitParents(ctx, t, patch)
	if err != nil {
		return fail(err)
	}
	row, err := c.mapper.ToUpdate(t, resolved)
	if err != nil {
		return fail(err)
	}

	log.Debug("operation state", map[string]any{"state": string(StateInFlight)})
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	saved, err := c.remote.Update(callCtx, t, id, row)
	cancel()
	if err != nil {
		c.metrics.RecordRemoteError(string(t), "update")
		return fail(remoteErr("update", t, id, err))
	}

	if server, err := c.mapper.FromRemote(ctx, t, saved); err == nil {
		if _, err := c.store.Upsert(server); err != nil {
			log.Warn("server row not merged", map[string]any{"error": err})
		}
	} else {
		// el remoto confirmó; el record local sigue siendo válido
		log.Warn("server row not mappable", map[string]any{"error": err})
	}

	out, _ := c.store.GetByID(t, id)
	log.Debug("operation state", map[string]any{"state": string(StateConfirmed)})
	return out, nil
}

// Delete borra en cascada localmente y replica en el remoto hijos primero.
// Borrar un id ausente no es error.
func (c *Controller) Delete(ctx context.Context, t schema.EntityType, id string) error {
	start := c.now()
	if _, ok := c.reg.Entity(t); !ok {
		return apperr.Schema(string(t), "", "unknown entity type")
	}

	id, unlock, err := c.acquire(ctx, t, id)
	if err != nil {
		return err
	}
	defer unlock()

	err = c.delete(ctx, t, id)
	c.finish(t, "delete", id, start, err)
	return err
}

func (c *Controller) delete(ctx context.Context, t schema.EntityType, id string) error {
	log := c.log.With(map[string]any{"op": "delete", "entity": string(t), "id": id})

	cs := c.store.Remove(t, id)
	if cs.Empty() {
		return nil
	}
	log.Debug("operation state", map[string]any{"state": string(StatePending), "changes": len(cs)})
	if c.local() {
		return nil
	}

	log.Debug("operation state", map[string]any{"state": string(StateInFlight)})
	for i, ch := range cs {
		if strings.HasPrefix(ch.ID, TempPrefix) {
			// nunca llegó al servidor; su create en vuelo va a fallar o quedar huérfano en el remoto
			continue
		}
		var err error
		switch ch.Action {
		case store.ActionUpdate:
			err = c.remoteSetNull(ctx, ch)
		case store.ActionDelete:
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			err = c.remote.Delete(callCtx, ch.Type, ch.ID)
			cancel()
			if err != nil {
				err = remoteErr("delete", ch.Type, ch.ID, err)
			}
		}
		if err != nil {
			c.metrics.RecordRemoteError(string(ch.Type), string(ch.Action))
			// lo ya confirmado en el remoto queda aplicado; solo vuelve la cola pendiente
			done, pending := cs[:i], cs[i:]
			c.store.Revert(pending)
			c.detachRestored(ctx, done, pending, log)
			c.cleanupBlobs(ctx, done.Deleted(), log)
			log.Warn("operation state", map[string]any{"state": string(StateFailed), "error": err, "confirmed": len(done)})
			return err
		}
	}

	c.cleanupBlobs(ctx, cs.Deleted(), log)
	log.Debug("operation state", map[string]any{"state": string(StateConfirmed)})
	return nil
}

// detachRestored limpia, en local y en el remoto, las FKs opcionales de los records restaurados
// que apuntan a records cuyo borrado ya se confirmó.
func (c *Controller) detachRestored(ctx context.Context, done, restored store.ChangeSet, log logger.Logger) {
	gone := make(map[records.Key]bool)
	for _, r := range done.Deleted() {
		gone[r.Ref()] = true
	}
	if len(gone) == 0 {
		return
	}
	for _, r := range restored.Deleted() {
		patch := map[string]any{}
		for _, f := range c.reg.MustEntity(r.Type).ForeignKeys() {
			if !f.Required && r.Has(f.Name) && gone[records.Key{Type: f.Target, ID: r.String(f.Name)}] {
				patch[f.Name] = nil
			}
		}
		if len(patch) == 0 {
			continue
		}
		_, cs, err := c.store.Patch(r.Type, r.ID, patch)
		if err != nil || cs.Empty() {
			continue
		}
		if err := c.remoteSetNull(ctx, cs[0]); err != nil {
			log.Warn("dangling ref not cleared remotely", map[string]any{"entity": string(r.Type), "id": r.ID, "error": err})
		}
	}
}

// remoteSetNull replica en el remoto los campos que la cascada limpió.
func (c *Controller) remoteSetNull(ctx context.Context, ch store.Change) error {
	patch := map[string]any{}
	for name := range ch.Before.Fields {
		if _, still := ch.After.Fields[name]; !still {
			patch[name] = nil
		}
	}
	row, err := c.mapper.ToUpdate(ch.Type, patch)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.remote.Update(callCtx, ch.Type, ch.ID, row); err != nil {
		return remoteErr("update", ch.Type, ch.ID, err)
	}
	return nil
}

// cleanupBlobs borra (best-effort) los binarios de media/adjuntos eliminados.
func (c *Controller) cleanupBlobs(ctx context.Context, deleted []records.Record, log logger.Logger) {
	if c.storage == nil {
		return
	}
	for _, r := range deleted {
		e := c.reg.MustEntity(r.Type)
		for _, f := range e.Fields {
			if f.Kind != schema.KindURI || f.StoragePathField == "" {
				continue
			}
			path := r.String(f.StoragePathField)
			if path == "" {
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			err := c.storage.Delete(callCtx, path)
			cancel()
			c.mapper.ForgetURL(path)
			if err != nil {
				log.Warn("blob cleanup failed", map[string]any{"entity": string(r.Type), "id": r.ID, "path": path, "error": err})
			}
		}
	}
}

// -------------------------
// Helpers
// -------------------------

// acquire toma el lock del id; si era temporal y ya se confirmó, pasa al id del servidor.
func (c *Controller) acquire(ctx context.Context, t schema.EntityType, id string) (string, func(), error) {
	for {
		id = c.resolve(t, id)
		unlock, err := c.locks.lock(ctx, records.Key{Type: t, ID: id})
		if err != nil {
			return "", nil, remoteErr("wait", t, id, err)
		}
		if r := c.resolve(t, id); r != id {
			unlock()
			id = r
			continue
		}
		return id, unlock, nil
	}
}

func (c *Controller) resolve(t schema.EntityType, id string) string {
	if !strings.HasPrefix(id, TempPrefix) {
		return id
	}
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	p, ok := c.pending[records.Key{Type: t, ID: id}]
	if !ok {
		return id
	}
	select {
	case <-p.done:
		if p.err == nil && p.id != "" {
			return p.id
		}
	default:
	}
	return id
}

func (c *Controller) registerPending(k records.Key) *pendingCreate {
	p := &pendingCreate{done: make(chan struct{})}
	c.pendMu.Lock()
	c.prunePendingLocked(c.now())
	c.pending[k] = p
	c.pendMu.Unlock()
	return p
}

func (c *Controller) settlePending(p *pendingCreate, id string, err error) {
	now := c.now()
	c.pendMu.Lock()
	p.id, p.err, p.settledAt = id, err, now
	close(p.done)
	c.prunePendingLocked(now)
	c.pendMu.Unlock()
}

// prunePendingLocked olvida los creates resueltos hace más de pendingGrace.
func (c *Controller) prunePendingLocked(now time.Time) {
	for k, p := range c.pending {
		if !p.settledAt.IsZero() && now.Sub(p.settledAt) > pendingGrace {
			delete(c.pending, k)
		}
	}
}

func (c *Controller) lookupPending(k records.Key) (*pendingCreate, bool) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	p, ok := c.pending[k]
	return p, ok
}

// awaitParents espera a los padres temporales referenciados y devuelve los campos con ids de servidor.
// Padre fallido -> ConstraintViolation.
func (c *Controller) awaitParents(ctx context.Context, t schema.EntityType, fields map[string]any) (map[string]any, error) {
	e := c.reg.MustEntity(t)
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, f := range e.ForeignKeys() {
		ref, _ := out[f.Name].(string)
		if !strings.HasPrefix(ref, TempPrefix) {
			continue
		}
		p, ok := c.lookupPending(records.Key{Type: f.Target, ID: ref})
		if !ok {
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		select {
		case <-p.done:
		case <-waitCtx.Done():
		}
		cancel()
		select {
		case <-p.done:
		default:
			return nil, remoteErr("wait", f.Target, ref, waitCtx.Err())
		}
		if p.err != nil {
			return nil, apperr.Constraint(string(t), f.Name, string(f.Target)+"/"+ref, "parent was not persisted")
		}
		out[f.Name] = p.id
	}
	return out, nil
}

func (c *Controller) finish(t schema.EntityType, op, id string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil && c.local():
		outcome = metrics.OutcomeLocal
	case errors.Is(err, apperr.ErrRemoteFailure):
		outcome = metrics.OutcomeRolledBack
	case err != nil:
		outcome = metrics.OutcomeRejected
	}
	c.metrics.RecordOperation(string(t), op, outcome, c.now().Sub(start))
}

// remoteErr clasifica un error de adapter. En una escritura, NotConfigured o un timeout
// son fallas de esa operación, no un motivo de fallback.
func remoteErr(op string, t schema.EntityType, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrRemoteFailure) {
		return err
	}
	if op == "list" && errors.Is(err, apperr.ErrNotConfigured) {
		return err
	}
	return &apperr.RemoteFailureError{Op: op, Entity: string(t), ID: id, Err: err}
}
