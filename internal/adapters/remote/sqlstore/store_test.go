package sqlstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/mapper"
	"pet-health-sync/internal/ports/remote"
)

func newSQLite(t *testing.T) *Store {
	t.Helper()
	db, err := Open(SQLite, ":memory:")
	require.NoError(t, err)
	s := New(db, SQLite, schema.Default())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newSQLite(t)
	require.NoError(t, s.EnsureSchema(context.Background()))

	rows, err := s.List(context.Background(), schema.EntityContact)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDDL_ReferencesOnlyEarlierTables(t *testing.T) {
	stmts := Postgres.DDL(schema.Default())
	require.Len(t, stmts, len(schema.Default().Types()))

	var canine, media string
	for _, s := range stmts {
		switch {
		case strings.Contains(s, `"canine_profiles" (`):
			canine = s
		case strings.Contains(s, `"media_items" (`):
			media = s
		}
	}
	require.NotEmpty(t, canine)
	assert.Contains(t, canine, `"user_id" TEXT NOT NULL REFERENCES "user_profiles"("id") ON DELETE CASCADE`)
	assert.NotContains(t, canine, `REFERENCES "media_items"`)
	assert.Contains(t, media, `REFERENCES "canine_profiles"("id") ON DELETE CASCADE`)
	assert.Contains(t, canine, "TIMESTAMPTZ NOT NULL")
}

func TestInsertGetUpdateDelete(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	row, err := s.Insert(ctx, schema.EntityContact, remote.Row{
		"name": "ER", "phone": "911", "is_emergency": true, "updated_at": "ignored",
	})
	require.NoError(t, err)
	id, _ := row["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "2024-03-01T10:00:00Z", row["created_at"])
	assert.Equal(t, int64(1), row["is_emergency"])
	assert.Nil(t, row["email"])

	s.now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }
	row, err = s.Update(ctx, schema.EntityContact, id, remote.Row{"name": "ER 24h", "notes": nil, "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, id, row["id"])
	assert.Equal(t, "ER 24h", row["name"])
	assert.Equal(t, "2024-03-01T10:00:00Z", row["created_at"])
	assert.Equal(t, "2024-03-02T10:00:00Z", row["updated_at"])

	_, err = s.Update(ctx, schema.EntityContact, "missing", remote.Row{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, schema.EntityContact, id))
	require.NoError(t, s.Delete(ctx, schema.EntityContact, id))
	_, ok, err := s.Get(ctx, schema.EntityContact, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_FiltersAndCascade(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	user := func(email string) string {
		r, err := s.Insert(ctx, schema.EntityUserProfile, remote.Row{"email": email, "display_name": email, "role": "PetOwner"})
		require.NoError(t, err)
		return r["id"].(string)
	}
	u1, u2, u3 := user("a@x"), user("b@x"), user("c@x")

	for _, u := range []string{u1, u2, u3} {
		_, err := s.Insert(ctx, schema.EntityCanineProfile, remote.Row{"user_id": u, "name": "dog-" + u[:4]})
		require.NoError(t, err)
	}

	rows, err := s.List(ctx, schema.EntityCanineProfile, remote.In("user_id", u1, u2))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.List(ctx, schema.EntityCanineProfile, remote.In("user_id"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = s.List(ctx, schema.EntityCanineProfile, remote.Eq("nope", "x"))
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)

	// el FK del servidor también cascada
	require.NoError(t, s.Delete(ctx, schema.EntityUserProfile, u1))
	rows, err = s.List(ctx, schema.EntityCanineProfile)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInsert_RejectsUnknownColumnAndFKViolation(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, schema.EntityContact, remote.Row{"name": "x", "phone": "1", "is_emergency": false, "color": "red"})
	assert.ErrorIs(t, err, apperr.ErrSchemaViolation)

	_, err = s.Insert(ctx, schema.EntityCanineProfile, remote.Row{"user_id": "ghost", "name": "Rex"})
	assert.Error(t, err)
}

func TestRowsRoundTripThroughMapper(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	m := mapper.New(schema.Default())

	u, err := s.Insert(ctx, schema.EntityUserProfile, remote.Row{"email": "a@x", "display_name": "Ana", "role": "PetOwner"})
	require.NoError(t, err)
	c, err := s.Insert(ctx, schema.EntityCanineProfile, remote.Row{
		"user_id": u["id"], "name": "Rex", "weight": 18.5, "date_of_birth": "2020-05-01",
	})
	require.NoError(t, err)

	rec, err := m.FromRemote(ctx, schema.EntityCanineProfile, c)
	require.NoError(t, err)
	assert.Equal(t, "Rex", rec.Fields["name"])
	assert.Equal(t, 18.5, rec.Fields["weight"])
	assert.Equal(t, "2020-05-01", rec.Fields["dateOfBirth"])
	assert.NotContains(t, rec.Fields, "breed")

	k, err := s.Insert(ctx, schema.EntityContact, remote.Row{"name": "ER", "phone": "911", "is_emergency": true})
	require.NoError(t, err)
	contact, err := m.FromRemote(ctx, schema.EntityContact, k)
	require.NoError(t, err)
	assert.Equal(t, true, contact.Fields["isEmergency"])
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("Postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.Driver)
	assert.Equal(t, "$3", d.placeholder(3))

	d, err = DialectByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "?", d.placeholder(3))

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}
