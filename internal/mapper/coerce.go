package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/schema"
)

const dateLayout = "2006-01-02"

// Layouts aceptados al leer fechas con hora. Postgres en texto usa espacio en vez de "T".
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05",
}

// coerce lleva un valor (remoto o de formulario) al tipo declarado del campo.
// Nunca recibe nil: el caller decide qué significa la ausencia.
func coerce(e *schema.Entity, f schema.Field, v any) (any, error) {
	bad := func(reason string) error {
		return apperr.Schema(string(e.Type), f.Name, reason)
	}

	switch f.Kind {
	case schema.KindString, schema.KindURI:
		s, ok := asString(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected string, got %T", v))
		}
		return s, nil

	case schema.KindRef:
		s, ok := asString(v)
		if !ok {
			if n, isNum := asNumber(v); isNum && n == math.Trunc(n) {
				return strconv.FormatInt(int64(n), 10), nil
			}
			return nil, bad(fmt.Sprintf("expected id, got %T", v))
		}
		return strings.TrimSpace(s), nil

	case schema.KindNumber:
		n, ok := asNumber(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected number, got %v", v))
		}
		return n, nil

	case schema.KindBool:
		b, ok := asBool(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected boolean, got %v", v))
		}
		return b, nil

	case schema.KindEnum:
		s, ok := asString(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected enum string, got %T", v))
		}
		s = strings.TrimSpace(s)
		for _, allowed := range f.Enum {
			if strings.EqualFold(allowed, s) {
				return allowed, nil
			}
		}
		return nil, bad(fmt.Sprintf("unrecognized value %q", s))

	case schema.KindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(dateLayout), nil
		}
		s, ok := asString(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected date, got %T", v))
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t.Format(dateLayout), nil
		}
		if t, ok := parseDateTime(s); ok {
			return t.Format(dateLayout), nil
		}
		return nil, bad(fmt.Sprintf("invalid date %q", s))

	case schema.KindDateTime:
		if t, ok := v.(time.Time); ok {
			return formatTimestamp(t), nil
		}
		s, ok := asString(v)
		if !ok {
			return nil, bad(fmt.Sprintf("expected datetime, got %T", v))
		}
		t, ok := parseDateTime(strings.TrimSpace(s))
		if !ok {
			return nil, bad(fmt.Sprintf("invalid datetime %q", s))
		}
		return formatTimestamp(t), nil
	}

	return nil, bad(fmt.Sprintf("unknown kind %s", f.Kind))
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case fmt.Stringer:
		return x.String(), true
	case [16]byte:
		// uuid binario (algunos drivers)
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16]), true
	}
	return "", false
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, x == 0 || x == 1
	case int:
		return x != 0, x == 0 || x == 1
	case float64:
		return x != 0, x == 0 || x == 1
	case string, []byte:
		s, _ := asString(x)
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "t", "1", "yes":
			return true, true
		case "false", "f", "0", "no":
			return false, true
		}
	}
	return false, false
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseTimestamp acepta time.Time (pgx) o string ISO-8601.
func parseTimestamp(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), true
	}
	s, ok := asString(v)
	if !ok {
		return time.Time{}, false
	}
	return parseDateTime(strings.TrimSpace(s))
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
