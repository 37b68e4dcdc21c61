package controller

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pet-health-sync/internal/adapters/remote/memory"
	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/mapper"
	"pet-health-sync/internal/ports/remote"
	"pet-health-sync/internal/seed"
	"pet-health-sync/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var admin = Viewer{UserID: "admin", Role: schema.RoleAdmin}

func newEnv(t *testing.T, rc *memory.Client, opts ...Option) *Controller {
	t.Helper()
	reg := schema.Default()
	st := store.New(reg)
	c := New(st, rc, mapper.New(reg), opts...)
	require.NoError(t, c.Load(context.Background(), admin))
	return c
}

func mustCreate(t *testing.T, c *Controller, typ schema.EntityType, fields map[string]any) records.Record {
	t.Helper()
	r, err := c.Create(context.Background(), typ, fields)
	require.NoError(t, err)
	return r
}

// tree crea user -> canine -> media y devuelve los ids.
func tree(t *testing.T, c *Controller) (user, canine, media string) {
	u := mustCreate(t, c, schema.EntityUserProfile, map[string]any{"email": "ana@x.dev", "displayName": "Ana", "role": "PetOwner"})
	k := mustCreate(t, c, schema.EntityCanineProfile, map[string]any{"userId": u.ID, "name": "Rex"})
	m := mustCreate(t, c, schema.EntityMediaItem, map[string]any{"canineId": k.ID, "type": "photo", "uri": "https://cdn/x.jpg"})
	return u.ID, k.ID, m.ID
}

func TestCreate_GetByIDEqualsInputForEveryType(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	ctx := context.Background()

	u := mustCreate(t, c, schema.EntityUserProfile, map[string]any{"email": "a@b.c", "displayName": "A", "role": "Admin"})
	v := mustCreate(t, c, schema.EntityVetProfile, map[string]any{"name": "Dr. V", "clinicName": "Vet Co"})
	k := mustCreate(t, c, schema.EntityCanineProfile, map[string]any{"userId": u.ID, "name": "Rex", "weight": float64(18), "sex": "Male", "dateOfBirth": "2020-02-02"})

	cases := map[schema.EntityType]map[string]any{
		schema.EntityContact:            {"name": "ER", "phone": "911", "isEmergency": true},
		schema.EntityNutritionEntry:     {"canineId": k.ID, "foodName": "Kibble", "date": "2024-01-01", "mealType": "Lunch", "amount": float64(200)},
		schema.EntityTrainingLog:        {"canineId": k.ID, "date": "2024-01-02", "activity": "Sit", "progress": "Mastered"},
		schema.EntityMedicalRecord:      {"canineId": k.ID, "date": "2024-01-03", "title": "Checkup", "vetId": v.ID},
		schema.EntityMedicationEntry:    {"canineId": k.ID, "name": "Drug", "startDate": "2024-01-04", "vetId": v.ID},
		schema.EntityVetVisit:           {"canineId": k.ID, "visitDate": "2024-01-05", "reason": "Cough", "cost": float64(40.5)},
		schema.EntityImmunizationRecord: {"canineId": k.ID, "vaccineName": "Rabies", "dateAdministered": "2024-01-06"},
		schema.EntityCanineAllergy:      {"canineId": k.ID, "allergen": "Pollen", "severity": "Mild"},
		schema.EntityMediaItem:          {"canineId": k.ID, "type": "video", "uri": "https://cdn/v.mp4", "takenAt": "2024-01-07T08:00:00Z"},
		schema.EntityAppointment:        {"canineId": k.ID, "vetId": v.ID, "dateTime": "2024-02-01T10:00:00Z", "status": "Scheduled"},
	}

	for typ, fields := range cases {
		t.Run(string(typ), func(t *testing.T) {
			got, err := c.Create(ctx, typ, fields)
			require.NoError(t, err)
			assert.False(t, strings.HasPrefix(got.ID, TempPrefix), "server id replaces temp id")
			assert.False(t, got.CreatedAt.IsZero())
			assert.Equal(t, records.Fields(fields), got.Fields)

			stored, ok := c.Store().GetByID(typ, got.ID)
			require.True(t, ok)
			assert.Equal(t, got, stored)
			assert.Len(t, rc.Rows(typ), 1)
		})
	}
}

func TestCreate_ConstraintViolationNeverReachesRemote(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)

	_, err := c.Create(context.Background(), schema.EntityAppointment, map[string]any{
		"canineId": "ghost", "dateTime": "2024-02-01T10:00:00Z", "status": "Scheduled",
	})
	assert.True(t, errors.Is(err, apperr.ErrConstraintViolation))
	assert.Zero(t, rc.Calls(memory.OpInsert))

	_, err = c.Create(context.Background(), schema.EntityContact, map[string]any{"name": "x"})
	assert.True(t, errors.Is(err, apperr.ErrSchemaViolation), "phone and isEmergency required")
	assert.Zero(t, rc.Calls(memory.OpInsert))
}

func TestCreate_RemoteFailureRollsBack(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	rc.FailNext(memory.OpInsert, schema.EntityContact, errors.New("503"))

	_, err := c.Create(context.Background(), schema.EntityContact, map[string]any{"name": "ER", "phone": "1", "isEmergency": false})
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.Empty(t, c.Store().GetAll(schema.EntityContact))
}

func TestScenario_ProfilePhotoThenDeleteUser(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	ctx := context.Background()
	u, k, m := tree(t, c)

	_, err := c.Update(ctx, schema.EntityCanineProfile, k, map[string]any{"profilePhotoId": m})
	require.NoError(t, err)
	got, ok := c.Store().GetByID(schema.EntityCanineProfile, k)
	require.True(t, ok)
	assert.Equal(t, m, got.String("profilePhotoId"))

	require.NoError(t, c.Delete(ctx, schema.EntityUserProfile, u))
	assert.Empty(t, c.Store().GetAll(schema.EntityCanineProfile))
	assert.Empty(t, c.Store().GetAll(schema.EntityMediaItem))
	assert.Empty(t, rc.Rows(schema.EntityCanineProfile))
	assert.Empty(t, rc.Rows(schema.EntityMediaItem))
	assert.Empty(t, rc.Rows(schema.EntityUserProfile))
}

func TestDelete_UserCascadesEveryDependentTransitively(t *testing.T) {
	c := newEnv(t, memory.New())
	ctx := context.Background()
	u, k, _ := tree(t, c)
	other := mustCreate(t, c, schema.EntityCanineProfile, map[string]any{"userId": u, "name": "Luna"})
	mustCreate(t, c, schema.EntityNutritionEntry, map[string]any{"canineId": k, "foodName": "x", "date": "2024-01-01"})
	mustCreate(t, c, schema.EntityTrainingLog, map[string]any{"canineId": other.ID, "date": "2024-01-01", "activity": "Sit"})
	mustCreate(t, c, schema.EntityAppointment, map[string]any{"canineId": k, "dateTime": "2024-02-01T10:00:00Z", "status": "Completed"})
	mustCreate(t, c, schema.EntityCanineAllergy, map[string]any{"canineId": other.ID, "allergen": "x", "severity": "Severe"})
	vet := mustCreate(t, c, schema.EntityVetProfile, map[string]any{"name": "Dr"})

	require.NoError(t, c.Delete(ctx, schema.EntityUserProfile, u))

	for _, typ := range c.reg.Types() {
		if typ == schema.EntityVetProfile {
			continue
		}
		assert.Empty(t, c.Store().GetAll(typ), typ)
	}
	_, ok := c.Store().GetByID(schema.EntityVetProfile, vet.ID)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, schema.EntityUserProfile, u), "idempotent")
}

func TestUpdate_RemoteFailureRestoresExactState(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	_, k, m := tree(t, c)
	_, err := c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"breed": "Collie"})
	require.NoError(t, err)
	before := c.Store().Export()

	rc.FailNext(memory.OpUpdate, schema.EntityCanineProfile, errors.New("connection reset"))
	_, err = c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"name": "Max", "breed": nil, "profilePhotoId": m})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	var rf *apperr.RemoteFailureError
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "update", rf.Op)
	assert.Equal(t, before, c.Store().Export())
}

func TestUpdate_TimeoutCountsAsRemoteFailure(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc, WithTimeout(20*time.Millisecond))
	_, k, _ := tree(t, c)
	before := c.Store().Export()

	rc.SetHook(func(ctx context.Context, op memory.Op, _ schema.EntityType, _ string) error {
		if op != memory.OpUpdate {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	})
	_, err := c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"name": "Slow"})
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, before, c.Store().Export())
}

func TestUpdate_SameIDIsSerialized(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	_, k, _ := tree(t, c)

	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	rc.SetHook(func(ctx context.Context, op memory.Op, _ schema.EntityType, _ string) error {
		if op != memory.OpUpdate {
			return nil
		}
		blocked := false
		first.Do(func() { blocked = true })
		if blocked {
			close(entered)
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	var err1, err2 error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err1 = c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"name": "First"})
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err2 = c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"name": "Second"})
	}()
	key := records.Key{Type: schema.EntityCanineProfile, ID: k}
	require.Eventually(t, func() bool { return c.locks.waiting(key) == 2 }, time.Second, time.Millisecond)

	got, _ := c.Store().GetByID(schema.EntityCanineProfile, k)
	assert.Equal(t, "First", got.String("name"), "second waits for the first to settle")

	close(release)
	wg.Wait()
	require.NoError(t, err1)
	require.NoError(t, err2)

	got, _ = c.Store().GetByID(schema.EntityCanineProfile, k)
	assert.Equal(t, "Second", got.String("name"))
	assert.Equal(t, "Second", rc.Rows(schema.EntityCanineProfile)[0]["name"])
	assert.Zero(t, c.locks.waiting(key))
}

func TestCreate_ChildWaitsForPendingParent(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	u := mustCreate(t, c, schema.EntityUserProfile, map[string]any{"email": "a", "displayName": "A", "role": "PetOwner"})

	release := make(chan struct{})
	rc.SetHook(func(ctx context.Context, op memory.Op, typ schema.EntityType, _ string) error {
		if op == memory.OpInsert && typ == schema.EntityCanineProfile {
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	var parent, child records.Record
	var perr, cerr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		parent, perr = c.Create(context.Background(), schema.EntityCanineProfile, map[string]any{"userId": u.ID, "name": "Rex"})
	}()

	var tempID string
	require.Eventually(t, func() bool {
		all := c.Store().GetAll(schema.EntityCanineProfile)
		if len(all) == 1 {
			tempID = all[0].ID
			return true
		}
		return false
	}, time.Second, time.Millisecond)
	require.True(t, strings.HasPrefix(tempID, TempPrefix))

	wg.Add(1)
	go func() {
		defer wg.Done()
		child, cerr = c.Create(context.Background(), schema.EntityNutritionEntry, map[string]any{"canineId": tempID, "foodName": "x", "date": "2024-01-01"})
	}()
	require.Eventually(t, func() bool { return c.Store().Count(schema.EntityNutritionEntry) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, rc.Calls(memory.OpInsert), "child insert not issued while parent is pending")

	close(release)
	wg.Wait()
	require.NoError(t, perr)
	require.NoError(t, cerr)

	assert.Equal(t, parent.ID, child.String("canineId"))
	rows := rc.Rows(schema.EntityNutritionEntry)
	require.Len(t, rows, 1)
	assert.Equal(t, parent.ID, rows[0]["canine_id"])
}

func TestCreate_ChildOfFailedParentIsRejected(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	u := mustCreate(t, c, schema.EntityUserProfile, map[string]any{"email": "a", "displayName": "A", "role": "PetOwner"})

	release := make(chan struct{})
	rc.SetHook(func(ctx context.Context, op memory.Op, typ schema.EntityType, _ string) error {
		if op == memory.OpInsert && typ == schema.EntityCanineProfile {
			<-release
			return errors.New("insert rejected")
		}
		return nil
	})

	var wg sync.WaitGroup
	var perr, cerr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, perr = c.Create(context.Background(), schema.EntityCanineProfile, map[string]any{"userId": u.ID, "name": "Rex"})
	}()
	var tempID string
	require.Eventually(t, func() bool {
		all := c.Store().GetAll(schema.EntityCanineProfile)
		if len(all) == 1 {
			tempID = all[0].ID
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, cerr = c.Create(context.Background(), schema.EntityTrainingLog, map[string]any{"canineId": tempID, "date": "2024-01-01", "activity": "Sit"})
	}()
	require.Eventually(t, func() bool { return c.Store().Count(schema.EntityTrainingLog) == 1 }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()
	assert.True(t, errors.Is(perr, apperr.ErrRemoteFailure))
	assert.True(t, errors.Is(cerr, apperr.ErrConstraintViolation))
	assert.Empty(t, c.Store().GetAll(schema.EntityCanineProfile))
	assert.Empty(t, c.Store().GetAll(schema.EntityTrainingLog))
	assert.Empty(t, rc.Rows(schema.EntityTrainingLog))
}

func TestDelete_RemoteFailureRestoresCascade(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	_, k, m := tree(t, c)
	_, err := c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"profilePhotoId": m})
	require.NoError(t, err)
	before := c.Store().Export()

	// falla el primer borrado remoto (el hijo): nada se confirmó y todo vuelve
	rc.FailNext(memory.OpDelete, schema.EntityMediaItem, errors.New("500"))
	err = c.Delete(context.Background(), schema.EntityCanineProfile, k)
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.Equal(t, before, c.Store().Export())
	assert.Len(t, rc.Rows(schema.EntityMediaItem), 1)
}

func TestDelete_FailureAfterChildrenKeepsStoreAlignedWithRemote(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	_, k, m := tree(t, c)
	_, err := c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"profilePhotoId": m})
	require.NoError(t, err)

	rc.FailNext(memory.OpDelete, schema.EntityCanineProfile, errors.New("boom"))
	err = c.Delete(context.Background(), schema.EntityCanineProfile, k)
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))

	// el media ya se borró en el servidor: tampoco vuelve localmente
	assert.Empty(t, c.Store().GetAll(schema.EntityMediaItem))
	assert.Empty(t, rc.Rows(schema.EntityMediaItem))

	got, ok := c.Store().GetByID(schema.EntityCanineProfile, k)
	require.True(t, ok)
	assert.False(t, got.Has("profilePhotoId"), "no dangling photo ref")
	rows := rc.Rows(schema.EntityCanineProfile)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["profile_photo_id"])

	// el canine sigue siendo editable contra el remoto
	_, err = c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"name": "Max"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), schema.EntityCanineProfile, k))
	assert.Empty(t, rc.Rows(schema.EntityCanineProfile))
}

func TestDelete_SetNullIsReplicated(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	_, k, m := tree(t, c)
	_, err := c.Update(context.Background(), schema.EntityCanineProfile, k, map[string]any{"profilePhotoId": m})
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), schema.EntityMediaItem, m))
	got, _ := c.Store().GetByID(schema.EntityCanineProfile, k)
	assert.False(t, got.Has("profilePhotoId"))
	rows := rc.Rows(schema.EntityCanineProfile)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["profile_photo_id"])
}

func TestLoad_SeedFallbackWithoutNetwork(t *testing.T) {
	rc := memory.NewUnconfigured()
	c := newEnv(t, rc)

	assert.True(t, c.Session().SeedBacked)
	data := c.Store().Export()
	for _, typ := range c.reg.Types() {
		assert.NotEmpty(t, data[typ], typ)
	}
	assert.Empty(t, seed.Check(c.reg, data))

	// en modo seed las mutaciones son locales
	rec, err := c.Create(context.Background(), schema.EntityContact, map[string]any{"name": "New", "phone": "1", "isEmergency": true})
	require.NoError(t, err)
	_, err = c.Update(context.Background(), schema.EntityContact, rec.ID, map[string]any{"name": "Renamed"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(context.Background(), schema.EntityCanineProfile, seed.ID("canine:rex")))
	assert.Zero(t, rc.TotalCalls())

	nilRemote := New(store.New(schema.Default()), nil, nil)
	require.NoError(t, nilRemote.Load(context.Background(), admin))
	assert.True(t, nilRemote.Session().SeedBacked)
}

func TestLoad_ScopesByRole(t *testing.T) {
	rc := memory.New()
	ts := "2024-01-01T00:00:00Z"
	rc.Put(schema.EntityUserProfile,
		remote.Row{"id": "u1", "email": "a", "display_name": "A", "role": "PetOwner", "created_at": ts},
		remote.Row{"id": "u2", "email": "b", "display_name": "B", "role": "PetOwner", "created_at": ts},
	)
	rc.Put(schema.EntityCanineProfile,
		remote.Row{"id": "c1", "user_id": "u1", "name": "Rex", "created_at": ts},
		remote.Row{"id": "c2", "user_id": "u2", "name": "Luna", "created_at": ts},
	)
	rc.Put(schema.EntityAppointment,
		remote.Row{"id": "a1", "canine_id": "c1", "date_time": ts, "status": "Scheduled", "created_at": ts},
		remote.Row{"id": "a2", "canine_id": "c2", "date_time": ts, "status": "Scheduled", "created_at": ts},
	)
	rc.Put(schema.EntityContact, remote.Row{"id": "k1", "name": "ER", "phone": "911", "is_emergency": true, "created_at": ts})
	rc.Put(schema.EntityVetProfile, remote.Row{"id": "v1", "name": "Dr", "created_at": ts})

	c := New(store.New(schema.Default()), rc, nil)
	require.NoError(t, c.Load(context.Background(), Viewer{UserID: "u1", Role: schema.RolePetOwner}))

	s := c.Store()
	assert.Equal(t, 1, s.Count(schema.EntityUserProfile))
	canines := s.GetAll(schema.EntityCanineProfile)
	require.Len(t, canines, 1)
	assert.Equal(t, "c1", canines[0].ID)
	appts := s.GetAll(schema.EntityAppointment)
	require.Len(t, appts, 1)
	assert.Equal(t, "a1", appts[0].ID)
	assert.Equal(t, 1, s.Count(schema.EntityContact), "contacts are a shared directory")
	assert.Equal(t, 1, s.Count(schema.EntityVetProfile))
	assert.False(t, c.Session().SeedBacked)
	assert.Equal(t, "u1", c.Session().Viewer.UserID)

	require.NoError(t, c.Load(context.Background(), admin))
	assert.Equal(t, 2, s.Count(schema.EntityCanineProfile))
	assert.Equal(t, 2, s.Count(schema.EntityAppointment))
}

func TestLoad_PoisonedRowsAndOrphansExcluded(t *testing.T) {
	rc := memory.New()
	ts := "2024-01-01T00:00:00Z"
	rc.Put(schema.EntityUserProfile, remote.Row{"id": "u1", "email": "a", "display_name": "A", "role": "PetOwner", "created_at": ts})
	rc.Put(schema.EntityCanineProfile,
		remote.Row{"id": "c1", "user_id": "u1", "name": "Rex", "profile_photo_id": "gone", "weight": "65.0", "created_at": ts},
		remote.Row{"id": "c2", "user_id": "nobody", "name": "Orphan", "created_at": ts},
	)
	rc.Put(schema.EntityCanineAllergy,
		remote.Row{"id": "al1", "canine_id": "c1", "allergen": "x", "severity": "Deadly", "created_at": ts},
		remote.Row{"id": "al2", "canine_id": "c1", "allergen": "y", "severity": "severe", "created_at": ts},
	)

	c := newEnv(t, rc)
	s := c.Store()
	canines := s.GetAll(schema.EntityCanineProfile)
	require.Len(t, canines, 1)
	assert.False(t, canines[0].Has("profilePhotoId"), "dangling optional ref cleared")
	w, _ := canines[0].Number("weight")
	assert.Equal(t, float64(65), w)

	allergies := s.GetAll(schema.EntityCanineAllergy)
	require.Len(t, allergies, 1)
	assert.Equal(t, "al2", allergies[0].ID)
	assert.Equal(t, "Severe", allergies[0].String("severity"))
}

func TestLoad_RemoteFailureLeavesStoreUntouched(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	tree(t, c)
	before := c.Store().Export()

	rc.FailNext(memory.OpList, schema.EntityMediaItem, errors.New("timeout"))
	err := c.Refresh(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.Equal(t, before, c.Store().Export())
	assert.False(t, c.Session().SeedBacked)
}

func TestLoad_UnreachableOnFirstLoadFallsBackToSeed(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	for name, cause := range map[string]error{
		"dial":      refused,
		"timeout":   context.DeadlineExceeded,
		"flattened": errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			rc := memory.New()
			rc.FailNext(memory.OpList, schema.EntityUserProfile, cause)
			c := New(store.New(schema.Default()), rc, nil)

			require.NoError(t, c.Load(context.Background(), admin))
			assert.True(t, c.Session().SeedBacked)
			assert.NotZero(t, c.Store().Count(schema.EntityUserProfile))
		})
	}
}

func TestLoad_ServerErrorOnFirstLoadIsReturned(t *testing.T) {
	rc := memory.New()
	rc.FailNext(memory.OpList, schema.EntityUserProfile, errors.New("http error: status=500"))
	c := New(store.New(schema.Default()), rc, nil)

	err := c.Load(context.Background(), admin)
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.False(t, c.Session().SeedBacked)
	assert.Zero(t, c.Store().Count(schema.EntityUserProfile))
}

func TestRefresh_UnreachableKeepsLoadedSession(t *testing.T) {
	rc := memory.New()
	c := newEnv(t, rc)
	tree(t, c)
	before := c.Store().Export()

	rc.FailNext(memory.OpList, schema.EntityUserProfile, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})
	err := c.Refresh(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrRemoteFailure))
	assert.False(t, c.Session().SeedBacked)
	assert.Equal(t, before, c.Store().Export())
}

func TestCreate_NotifiesPendingThenConfirmed(t *testing.T) {
	c := newEnv(t, memory.New())
	var got []store.Notification
	c.Store().Subscribe(func(n store.Notification) { got = append(got, n) }, schema.EntityContact)

	rec := mustCreate(t, c, schema.EntityContact, map[string]any{"name": "ER", "phone": "1", "isEmergency": true})
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0].Changes[0].ID, TempPrefix))
	last := got[1].Changes[len(got[1].Changes)-1]
	assert.Equal(t, rec.ID, last.ID)
}

func TestCreate_SettledPendingEntriesArePruned(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := newEnv(t, memory.New(), WithClock(clock))

	for i := 0; i < 50; i++ {
		mustCreate(t, c, schema.EntityContact, map[string]any{"name": "C", "phone": "1", "isEmergency": false})
	}
	c.pendMu.Lock()
	assert.Len(t, c.pending, 50, "recent creates stay resolvable")
	c.pendMu.Unlock()

	mu.Lock()
	now = now.Add(pendingGrace + time.Second)
	mu.Unlock()
	mustCreate(t, c, schema.EntityContact, map[string]any{"name": "Last", "phone": "2", "isEmergency": true})

	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	assert.Len(t, c.pending, 1)
}

func TestUpdate_UnknownIDAndSchemaErrors(t *testing.T) {
	c := newEnv(t, memory.New())
	_, err := c.Update(context.Background(), schema.EntityContact, "nope", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Update(context.Background(), schema.EntityContact, "nope", map[string]any{"color": "x"})
	assert.True(t, errors.Is(err, apperr.ErrSchemaViolation))

	err = c.Delete(context.Background(), "Nope", "x")
	assert.True(t, errors.Is(err, apperr.ErrSchemaViolation))
}
