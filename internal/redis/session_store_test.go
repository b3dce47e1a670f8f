package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/clinicapitest"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
	"github.com/hackgods/clinic-appointment-client/internal/session"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *SessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewSessionStore(rdb)
}

func record() session.Record {
	return session.Record{
		ID:        uuid.New(),
		Token:     uuid.NewString(),
		User:      appointment.User{ID: 4, FullName: "Ada Obi", Email: "ada@example.com", Role: appointment.RolePatient},
		CreatedAt: time.Date(2024, 11, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoad(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()
	rec := record()

	require.NoError(t, store.Save(ctx, rec, time.Hour))
	assert.True(t, mr.Exists("session:"+rec.ID.String()))
	assert.Equal(t, time.Hour, mr.TTL("session:"+rec.ID.String()))

	got, err := store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Token, got.Token)
	assert.Equal(t, rec.User.Email, got.User.Email)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestSaveRefusesExistingID(t *testing.T) {
	_, store := newStore(t)
	rec := record()

	require.NoError(t, store.Save(context.Background(), rec, time.Hour))
	assert.ErrorIs(t, store.Save(context.Background(), rec, time.Hour), session.ErrSessionExists)
}

func TestLoadMissingAndExpired(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	rec := record()
	require.NoError(t, store.Save(ctx, rec, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err = store.Load(ctx, rec.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestDeleteComparesToken(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()
	rec := record()
	require.NoError(t, store.Save(ctx, rec, time.Hour))

	removed, err := store.Delete(ctx, rec.ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, mr.Exists("session:"+rec.ID.String()))

	removed, err = store.Delete(ctx, rec.ID, rec.Token)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, mr.Exists("session:"+rec.ID.String()))

	removed, err = store.Delete(ctx, rec.ID, rec.Token)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestNewClientFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestSessionManagerOverRedis(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	srv := clinicapitest.NewServer()
	defer srv.Close()
	srv.AddUser(appointment.User{FullName: "Ada Obi", Email: "ada@example.com"}, "pw")

	m, err := session.NewManager(remote.New(srv.BaseURL(), 2*time.Second), store, session.WithTTL(time.Hour))
	require.NoError(t, err)
	defer m.Close()

	s, err := m.SignIn(ctx, appointment.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Obi", got.User.FullName)
	assert.Same(t, s.Cache, got.Cache)

	require.NoError(t, m.SignOut(ctx, s.ID, s.Token))
	_, err = store.Load(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
