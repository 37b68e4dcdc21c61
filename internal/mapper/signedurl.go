package mapper

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"pet-health-sync/internal/ports/storage"
)

const (
	// DefaultRefreshMargin: una URL que vence dentro de este margen ya se considera vencida.
	DefaultRefreshMargin = time.Minute

	amzDateLayout = "20060102T150405Z"
)

// ExpiresAt detecta el vencimiento de una URL firmada.
// Soporta SigV4 (X-Amz-Date + X-Amz-Expires), un parámetro Expires/expires en unix
// y el token JWT de Supabase Storage (?token=... con claim exp).
// ok=false significa que la URL no es firmada (o no se puede saber) y no vence.
func ExpiresAt(raw string) (time.Time, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.RawQuery == "" {
		return time.Time{}, false
	}
	q := u.Query()

	if d, e := q.Get("X-Amz-Date"), q.Get("X-Amz-Expires"); d != "" && e != "" {
		signed, err := time.Parse(amzDateLayout, d)
		if err != nil {
			return time.Time{}, false
		}
		secs, err := strconv.Atoi(e)
		if err != nil {
			return time.Time{}, false
		}
		return signed.Add(time.Duration(secs) * time.Second), true
	}

	for _, key := range []string{"Expires", "expires"} {
		if v := q.Get(key); v != "" {
			secs, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(secs, 0).UTC(), true
		}
	}

	if tok := q.Get("token"); tok != "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
			return time.Time{}, false
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return time.Time{}, false
		}
		return exp.UTC(), true
	}

	return time.Time{}, false
}

// URLRefresher pide URLs frescas al storage y las cachea hasta poco antes de vencer.
type URLRefresher struct {
	storage storage.Storage
	cache   *cache.Cache
	margin  time.Duration
	now     func() time.Time
}

func NewURLRefresher(st storage.Storage, margin time.Duration) *URLRefresher {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &URLRefresher{
		storage: st,
		cache:   cache.New(10*time.Minute, 20*time.Minute),
		margin:  margin,
		now:     time.Now,
	}
}

// NeedsRefresh: URL vacía o firmada que vence dentro del margen.
func (r *URLRefresher) NeedsRefresh(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	exp, ok := ExpiresAt(raw)
	if !ok {
		return false
	}
	return !r.now().Add(r.margin).Before(exp)
}

// Fresh devuelve una URL de acceso vigente para el path.
func (r *URLRefresher) Fresh(ctx context.Context, storedPath string) (string, error) {
	if v, ok := r.cache.Get(storedPath); ok {
		if u, isStr := v.(string); isStr && !r.NeedsRefresh(u) {
			return u, nil
		}
	}

	u, err := r.storage.AccessURL(ctx, storedPath)
	if err != nil {
		return "", err
	}

	if exp, signed := ExpiresAt(u); signed {
		if ttl := exp.Sub(r.now()) - r.margin; ttl > 0 {
			r.cache.Set(storedPath, u, ttl)
		}
	} else {
		r.cache.Set(storedPath, u, cache.DefaultExpiration)
	}
	return u, nil
}

// Forget saca el path del cache (p.ej. al borrar el blob).
func (r *URLRefresher) Forget(storedPath string) {
	r.cache.Delete(storedPath)
}
