package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pet-health-sync/internal/ports/storage"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
)

type blob struct {
	data        []byte
	contentType string
}

// Blobs es un storage.Storage en memoria para dev y tests.
// Las URLs imitan una firma SigV4 (X-Amz-Date/X-Amz-Expires) para que el refresco del mapper aplique igual.
type Blobs struct {
	mu      sync.RWMutex
	byPath  map[string]blob
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

var _ storage.Storage = (*Blobs)(nil)

func NewBlobs(baseURL string, ttl time.Duration) *Blobs {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Blobs{
		byPath:  make(map[string]blob),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (b *Blobs) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *Blobs) Upload(ctx context.Context, r io.Reader, pathHint, contentType string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}

	hint := strings.Trim(strings.TrimSpace(pathHint), "/")
	if hint == "" {
		hint = "media"
	}
	p := hint + "/" + uuid.NewString()

	b.mu.Lock()
	b.byPath[p] = blob{data: data, contentType: contentType}
	b.mu.Unlock()

	u, err := b.AccessURL(ctx, p)
	if err != nil {
		return storage.Object{}, err
	}
	return storage.Object{Path: p, URL: u}, nil
}

func (b *Blobs) AccessURL(ctx context.Context, storedPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.RLock()
	_, ok := b.byPath[storedPath]
	now := b.now()
	b.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}

	q := url.Values{}
	q.Set("X-Amz-Date", now.UTC().Format("20060102T150405Z"))
	q.Set("X-Amz-Expires", strconv.Itoa(int(b.ttl/time.Second)))
	return b.baseURL + "/" + storedPath + "?" + q.Encode(), nil
}

// Delete es idempotente.
func (b *Blobs) Delete(ctx context.Context, storedPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.byPath, storedPath)
	b.mu.Unlock()
	return nil
}

// Open devuelve el contenido guardado (lo usa el handler de descarga en dev).
func (b *Blobs) Open(storedPath string) (io.Reader, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bl, ok := b.byPath[storedPath]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return bytes.NewReader(bl.data), bl.contentType, nil
}

func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byPath)
}
