// Package memory implementa remote.Client en memoria: backend de desarrollo y de tests.
// Se comporta como un servidor: asigna ids y timestamps, y permite inyectar fallas.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/ports/remote"
)

var (
	ErrNotFound = errors.New("not found")
)

type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hook corre antes de cada llamada; si devuelve error la llamada falla con ese error.
// Puede bloquear (respetando ctx) para simular latencia.
type Hook func(ctx context.Context, op Op, t schema.EntityType, id string) error

type table struct {
	byID  map[string]remote.Row
	order []string
}

type Client struct {
	mu         sync.Mutex
	tables     map[schema.EntityType]*table
	configured bool
	hook       Hook
	failures   map[failureKey][]error
	calls      map[Op]int
	now        func() time.Time
}

type failureKey struct {
	op Op
	t  schema.EntityType
}

var _ remote.Client = (*Client)(nil)

func New() *Client {
	return &Client{
		tables:     make(map[schema.EntityType]*table),
		configured: true,
		failures:   make(map[failureKey][]error),
		calls:      make(map[Op]int),
		now:        time.Now,
	}
}

// NewUnconfigured simula un backend sin endpoint: todo devuelve ErrNotConfigured.
func NewUnconfigured() *Client {
	c := New()
	c.configured = false
	return c
}

func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Client) SetHook(h Hook) {
	c.mu.Lock()
	c.hook = h
	c.mu.Unlock()
}

// FailNext hace fallar la próxima llamada op sobre t (se encolan si se llama varias veces).
func (c *Client) FailNext(op Op, t schema.EntityType, err error) {
	c.mu.Lock()
	k := failureKey{op: op, t: t}
	c.failures[k] = append(c.failures[k], err)
	c.mu.Unlock()
}

// Calls devuelve cuántas llamadas llegaron al "servidor" (las no configuradas no cuentan).
func (c *Client) Calls(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Put carga filas tal cual (sin asignar ids/timestamps), para preparar escenarios.
func (c *Client) Put(t schema.EntityType, rows ...remote.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb := c.table(t)
	for _, r := range rows {
		id, _ := r[schema.ColumnID].(string)
		if _, exists := tb.byID[id]; !exists {
			tb.order = append(tb.order, id)
		}
		tb.byID[id] = copyRow(r)
	}
}

// Rows devuelve una copia de la tabla en orden de inserción.
func (c *Client) Rows(t schema.EntityType) []remote.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	tb := c.table(t)
	out := make([]remote.Row, 0, len(tb.order))
	for _, id := range tb.order {
		out = append(out, copyRow(tb.byID[id]))
	}
	return out
}

func (c *Client) List(ctx context.Context, t schema.EntityType, filters ...remote.Filter) ([]remote.Row, error) {
	if err := c.before(ctx, OpList, t, ""); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tb := c.table(t)
	out := make([]remote.Row, 0)
	for _, id := range tb.order {
		r := tb.byID[id]
		if remote.Matches(r, filters) {
			out = append(out, copyRow(r))
		}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, t schema.EntityType, id string) (remote.Row, bool, error) {
	if err := c.before(ctx, OpGet, t, id); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.table(t).byID[id]
	if !ok {
		return nil, false, nil
	}
	return copyRow(r), true, nil
}

func (c *Client) Insert(ctx context.Context, t schema.EntityType, row remote.Row) (remote.Row, error) {
	if err := c.before(ctx, OpInsert, t, ""); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC().Format(time.RFC3339Nano)
	r := copyRow(row)
	id := uuid.NewString()
	r[schema.ColumnID] = id
	r[schema.ColumnCreatedAt] = now
	r[schema.ColumnUpdatedAt] = now

	tb := c.table(t)
	tb.byID[id] = r
	tb.order = append(tb.order, id)
	return copyRow(r), nil
}

func (c *Client) Update(ctx context.Context, t schema.EntityType, id string, row remote.Row) (remote.Row, error) {
	if err := c.before(ctx, OpUpdate, t, id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tb := c.table(t)
	cur, ok := tb.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := copyRow(cur)
	for k, v := range row {
		if k == schema.ColumnID || k == schema.ColumnCreatedAt {
			continue
		}
		next[k] = v
	}
	tb.byID[id] = next
	return copyRow(next), nil
}

func (c *Client) Delete(ctx context.Context, t schema.EntityType, id string) error {
	if err := c.before(ctx, OpDelete, t, id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tb := c.table(t)
	if _, ok := tb.byID[id]; !ok {
		return nil
	}
	delete(tb.byID, id)
	for i, x := range tb.order {
		if x == id {
			tb.order = append(tb.order[:i], tb.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Client) before(ctx context.Context, op Op, t schema.EntityType, id string) error {
	c.mu.Lock()
	if !c.configured {
		c.mu.Unlock()
		return apperr.ErrNotConfigured
	}
	c.calls[op]++
	hook := c.hook
	var injected error
	k := failureKey{op: op, t: t}
	if q := c.failures[k]; len(q) > 0 {
		injected = q[0]
		c.failures[k] = q[1:]
	}
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, t, id); err != nil {
			return err
		}
	}
	if injected != nil {
		return injected
	}
	return ctx.Err()
}

func (c *Client) table(t schema.EntityType) *table {
	tb, ok := c.tables[t]
	if !ok {
		tb = &table{byID: make(map[string]remote.Row)}
		c.tables[t] = tb
	}
	return tb
}

func copyRow(r remote.Row) remote.Row {
	out := make(remote.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
