// Package rest implementa remote.Client contra una API estilo PostgREST (p.ej. Supabase):
// una ruta por tabla, filtros en query string y "Prefer: return=representation" en escrituras.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/platform/httpclient"
	"pet-health-sync/internal/ports/remote"
)

var (
	ErrUnauthorized = errors.New("rest backend unauthorized")
	ErrNotFound     = errors.New("row not found")
)

// Config del backend REST. BaseURL y APIKey normalmente vienen de env vars.
type Config struct {
	BaseURL string
	APIKey  string

	// Opcional: prefijo de las rutas de tabla. Si está vacío, se usa "/rest/v1".
	PathPrefix string

	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	reg    *schema.Registry
	http   *httpclient.Client
	prefix string
	ok     bool
}

var _ remote.Client = (*Client)(nil)

func NewClient(reg *schema.Registry, cfg Config) (*Client, error) {
	prefix := strings.TrimSpace(cfg.PathPrefix)
	if prefix == "" {
		prefix = "/rest/v1"
	}
	c := &Client{reg: reg, prefix: "/" + strings.Trim(prefix, "/")}

	base := strings.TrimSpace(cfg.BaseURL)
	key := strings.TrimSpace(cfg.APIKey)
	hc, err := httpclient.NewWithBaseURL(base, cfg.Timeout, cfg.Transport)
	if err != nil {
		return nil, err
	}
	hc.Headers["apikey"] = key
	hc.Headers["Authorization"] = "Bearer " + key
	c.http = hc
	c.ok = base != "" && key != ""
	return c, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.ok
}

func (c *Client) List(ctx context.Context, t schema.EntityType, filters ...remote.Filter) ([]remote.Row, error) {
	if !c.IsConfigured() {
		return nil, apperr.ErrNotConfigured
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", schema.ColumnCreatedAt+".asc")
	for _, f := range filters {
		if len(f.Values) == 0 {
			// IN () no matchea nada; no hace falta ir al servidor
			return []remote.Row{}, nil
		}
		q.Set(f.Column, inFilter(f.Values))
	}

	path, err := c.path(t, q)
	if err != nil {
		return nil, err
	}
	var rows []remote.Row
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, c.classify(err)
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	return rows, nil
}

func (c *Client) Get(ctx context.Context, t schema.EntityType, id string) (remote.Row, bool, error) {
	if !c.IsConfigured() {
		return nil, false, apperr.ErrNotConfigured
	}
	path, err := c.path(t, byID(id))
	if err != nil {
		return nil, false, err
	}
	var rows []remote.Row
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, false, c.classify(err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (c *Client) Insert(ctx context.Context, t schema.EntityType, row remote.Row) (remote.Row, error) {
	if !c.IsConfigured() {
		return nil, apperr.ErrNotConfigured
	}
	path, err := c.path(t, nil)
	if err != nil {
		return nil, err
	}
	var rows []remote.Row
	if err := c.http.DoJSON(ctx, http.MethodPost, path, representation, row, &rows); err != nil {
		return nil, c.classify(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: empty representation", t)
	}
	return rows[0], nil
}

func (c *Client) Update(ctx context.Context, t schema.EntityType, id string, row remote.Row) (remote.Row, error) {
	if !c.IsConfigured() {
		return nil, apperr.ErrNotConfigured
	}
	path, err := c.path(t, byID(id))
	if err != nil {
		return nil, err
	}
	var rows []remote.Row
	if err := c.http.DoJSON(ctx, http.MethodPatch, path, representation, row, &rows); err != nil {
		return nil, c.classify(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("update %s/%s: %w", t, id, ErrNotFound)
	}
	return rows[0], nil
}

func (c *Client) Delete(ctx context.Context, t schema.EntityType, id string) error {
	if !c.IsConfigured() {
		return apperr.ErrNotConfigured
	}
	path, err := c.path(t, byID(id))
	if err != nil {
		return err
	}
	// PostgREST responde 204 aunque no haya filas: delete idempotente
	if err := c.http.DoJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return c.classify(err)
	}
	return nil
}

var representation = map[string]string{"Prefer": "return=representation"}

func (c *Client) path(t schema.EntityType, q url.Values) (string, error) {
	e, ok := c.reg.Entity(t)
	if !ok {
		return "", apperr.Schema(string(t), "", "unknown entity type")
	}
	p := c.prefix + "/" + e.Table
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p, nil
}

func (c *Client) classify(err error) error {
	switch httpclient.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}

func byID(id string) url.Values {
	return url.Values{schema.ColumnID: {"eq." + id}}
}

// inFilter arma "in.(a,b)" citando valores con caracteres reservados de PostgREST.
func inFilter(values []string) string {
	if len(values) == 1 {
		return "eq." + values[0]
	}
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		if strings.ContainsAny(v, `,()". `) {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		quoted = append(quoted, v)
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
