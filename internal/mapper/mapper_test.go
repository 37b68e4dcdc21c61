package mapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/ports/remote"
	"pet-health-sync/internal/ports/storage"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleValue(f schema.Field) any {
	switch f.Kind {
	case schema.KindNumber:
		return 65.5
	case schema.KindBool:
		return true
	case schema.KindEnum:
		return f.Enum[len(f.Enum)-1]
	case schema.KindDate:
		return "2024-03-01"
	case schema.KindDateTime:
		return "2024-03-01T10:30:00Z"
	case schema.KindURI:
		return "https://cdn.example.com/" + f.Name + ".jpg"
	case schema.KindRef:
		return "ref-" + f.Name
	default:
		return "value-" + f.Name
	}
}

func sampleRecord(e *schema.Entity, onlyRequired bool) records.Record {
	fields := records.Fields{}
	for _, f := range e.Fields {
		if onlyRequired && !f.Required {
			continue
		}
		fields[f.Name] = sampleValue(f)
	}
	return records.Record{
		Type:      e.Type,
		ID:        "id-" + string(e.Type),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		Fields:    fields,
	}
}

func TestRoundTrip_EveryEntityAndField(t *testing.T) {
	reg := schema.Default()
	m := New(reg)

	for _, typ := range reg.Types() {
		e := reg.MustEntity(typ)
		for _, onlyRequired := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/required-only=%v", typ, onlyRequired), func(t *testing.T) {
				in := sampleRecord(e, onlyRequired)

				row, err := m.ToRemote(in)
				require.NoError(t, err)

				// ausentes viajan como null explícito
				for _, f := range e.Fields {
					if _, ok := in.Fields[f.Name]; !ok {
						v, present := row[f.Column]
						assert.True(t, present)
						assert.Nil(t, v)
					}
				}

				out, err := m.FromRemote(context.Background(), typ, row)
				require.NoError(t, err)
				assert.Equal(t, in, out)
			})
		}
	}
}

func TestFromRemote_CoercesWireValues(t *testing.T) {
	m := New(schema.Default())

	out, err := m.FromRemote(context.Background(), schema.EntityCanineProfile, remote.Row{
		"id":            []byte("c-1"),
		"created_at":    "2024-01-01 10:00:00+00",
		"updated_at":    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"user_id":       "u-1",
		"name":          "Rex",
		"weight":        "65.0",
		"sex":           "male",
		"date_of_birth": time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC),
		"breed":         nil,
		"unknown_col":   "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "c-1", out.ID)
	assert.Equal(t, 65.0, out.Fields["weight"])
	assert.Equal(t, "Male", out.Fields["sex"])
	assert.Equal(t, "2020-05-04", out.Fields["dateOfBirth"])
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), out.CreatedAt)
	assert.False(t, out.Has("breed"), "null must become absent")
	assert.False(t, out.Has("unknownCol"))
}

func TestFromRemote_BoolFromInteger(t *testing.T) {
	m := New(schema.Default())

	out, err := m.FromRemote(context.Background(), schema.EntityContact, remote.Row{
		"id": "ct-1", "created_at": "2024-01-01T00:00:00Z",
		"name": "Ana", "phone": "555", "is_emergency": int64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, true, out.Fields["isEmergency"])
	assert.Equal(t, out.CreatedAt, out.UpdatedAt, "missing updated_at falls back to created_at")
}

func TestFromRemote_SchemaViolations(t *testing.T) {
	m := New(schema.Default())
	base := func() remote.Row {
		return remote.Row{
			"id": "a-1", "created_at": "2024-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z",
			"canine_id": "c-1", "date_time": "2024-05-01T09:00:00Z", "status": "Scheduled",
		}
	}

	cases := map[string]func(remote.Row){
		"missing required": func(r remote.Row) { delete(r, "canine_id") },
		"null required":    func(r remote.Row) { r["status"] = nil },
		"unknown enum":     func(r remote.Row) { r["status"] = "Postponed" },
		"bad datetime":     func(r remote.Row) { r["date_time"] = "yesterday" },
		"missing id":       func(r remote.Row) { delete(r, "id") },
		"bad created_at":   func(r remote.Row) { r["created_at"] = "soon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			row := base()
			mutate(row)
			_, err := m.FromRemote(context.Background(), schema.EntityAppointment, row)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrSchemaViolation), "got %v", err)
		})
	}

	_, err := m.FromRemote(context.Background(), schema.EntityAppointment, base())
	require.NoError(t, err)
}

func TestToInsert_OmitsIDAndCreatedAt(t *testing.T) {
	m := New(schema.Default(), WithClock(func() time.Time { return fixedNow }))

	row, err := m.ToInsert(schema.EntityMediaItem, records.Fields{
		"canineId": "c-1", "type": "photo", "uri": "https://x/y.jpg",
	})
	require.NoError(t, err)

	assert.NotContains(t, row, "id")
	assert.NotContains(t, row, "created_at")
	assert.NotContains(t, row, "caption")
	assert.Equal(t, "c-1", row["canine_id"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), row["updated_at"])
}

func TestToUpdate_OnlyPatchedColumnsPlusUpdatedAt(t *testing.T) {
	m := New(schema.Default(), WithClock(func() time.Time { return fixedNow }))

	row, err := m.ToUpdate(schema.EntityCanineProfile, map[string]any{
		"profilePhotoId": "m-1",
		"breed":          nil,
	})
	require.NoError(t, err)
	assert.Equal(t, remote.Row{
		"profile_photo_id": "m-1",
		"breed":            nil,
		"updated_at":       fixedNow.Format(time.RFC3339Nano),
	}, row)

	_, err = m.ToUpdate(schema.EntityCanineProfile, map[string]any{"color": "brown"})
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
}

func TestNormalize(t *testing.T) {
	m := New(schema.Default())

	t.Run("create requires required fields", func(t *testing.T) {
		_, err := m.Normalize(schema.EntityUserProfile, map[string]any{"email": "a@b.c"}, false)
		assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
	})

	t.Run("create coerces and drops nils", func(t *testing.T) {
		out, err := m.Normalize(schema.EntityCanineProfile, map[string]any{
			"userId": "u-1", "name": "Rex", "weight": 30, "breed": nil, "id": "ignored",
		}, false)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"userId": "u-1", "name": "Rex", "weight": 30.0}, out)
	})

	t.Run("update keeps nil as clear", func(t *testing.T) {
		out, err := m.Normalize(schema.EntityCanineProfile, map[string]any{"breed": nil, "profilePhotoId": ""}, true)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"breed": nil, "profilePhotoId": nil}, out)
	})

	t.Run("update cannot clear required", func(t *testing.T) {
		_, err := m.Normalize(schema.EntityCanineProfile, map[string]any{"name": nil}, true)
		assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := m.Normalize(schema.EntityVetProfile, map[string]any{"color": "red"}, true)
		assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
	})

	t.Run("blank required string", func(t *testing.T) {
		_, err := m.Normalize(schema.EntityVetProfile, map[string]any{"name": "  "}, false)
		assert.ErrorIs(t, err, apperr.ErrSchemaViolation)
	})
}

// -------------------------
// Signed URLs
// -------------------------

type fakeStorage struct {
	calls int
	url   func(path string) string
	err   error
}

func (f *fakeStorage) Upload(context.Context, io.Reader, string, string) (storage.Object, error) {
	return storage.Object{}, errors.New("not used")
}

func (f *fakeStorage) AccessURL(_ context.Context, path string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url(path), nil
}

func (f *fakeStorage) Delete(context.Context, string) error { return nil }

func amzURL(path string, signedAt time.Time, expires time.Duration) string {
	q := url.Values{}
	q.Set("X-Amz-Date", signedAt.UTC().Format(amzDateLayout))
	q.Set("X-Amz-Expires", strconv.Itoa(int(expires.Seconds())))
	return "https://bucket.s3.amazonaws.com/" + path + "?" + q.Encode()
}

func TestExpiresAt(t *testing.T) {
	signed := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	exp, ok := ExpiresAt(amzURL("a.jpg", signed, 15*time.Minute))
	require.True(t, ok)
	assert.Equal(t, signed.Add(15*time.Minute), exp)

	exp, ok = ExpiresAt("https://cdn.example.com/a.jpg?Expires=1748779200")
	require.True(t, ok)
	assert.Equal(t, time.Unix(1748779200, 0).UTC(), exp)

	_, ok = ExpiresAt("https://cdn.example.com/a.jpg")
	assert.False(t, ok)
}

func TestFromRemote_RefreshesExpiredMediaURL(t *testing.T) {
	st := &fakeStorage{url: func(path string) string { return amzURL(path, fixedNow, time.Hour) }}
	ref := NewURLRefresher(st, time.Minute)
	ref.now = func() time.Time { return fixedNow }
	m := New(schema.Default(), WithURLRefresher(ref))

	expired := amzURL("dogs/rex.jpg", fixedNow.Add(-2*time.Hour), time.Hour)
	row := remote.Row{
		"id": "m-1", "created_at": "2024-01-01T00:00:00Z",
		"canine_id": "c-1", "type": "photo", "uri": expired, "storage_path": "dogs/rex.jpg",
	}

	out, err := m.FromRemote(context.Background(), schema.EntityMediaItem, row)
	require.NoError(t, err)
	assert.Equal(t, amzURL("dogs/rex.jpg", fixedNow, time.Hour), out.Fields["uri"])
	assert.Equal(t, 1, st.calls)

	// segunda lectura sale del cache
	_, err = m.FromRemote(context.Background(), schema.EntityMediaItem, row)
	require.NoError(t, err)
	assert.Equal(t, 1, st.calls)
}

func TestFromRemote_KeepsValidURLAndToleratesRefreshFailure(t *testing.T) {
	st := &fakeStorage{err: errors.New("storage down")}
	ref := NewURLRefresher(st, time.Minute)
	ref.now = func() time.Time { return fixedNow }
	m := New(schema.Default(), WithURLRefresher(ref))

	valid := amzURL("dogs/rex.jpg", fixedNow, time.Hour)
	out, err := m.FromRemote(context.Background(), schema.EntityMediaItem, remote.Row{
		"id": "m-1", "created_at": "2024-01-01T00:00:00Z",
		"canine_id": "c-1", "type": "photo", "uri": valid, "storage_path": "dogs/rex.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, valid, out.Fields["uri"])
	assert.Equal(t, 0, st.calls)

	expired := amzURL("dogs/rex.jpg", fixedNow.Add(-3*time.Hour), time.Hour)
	out, err = m.FromRemote(context.Background(), schema.EntityMediaItem, remote.Row{
		"id": "m-1", "created_at": "2024-01-01T00:00:00Z",
		"canine_id": "c-1", "type": "photo", "uri": expired, "storage_path": "dogs/rex.jpg",
	})
	require.NoError(t, err, "refresh failure is not a schema violation")
	assert.Equal(t, expired, out.Fields["uri"])
}
