package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/clinicapitest"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

var ada = appointment.Credentials{Email: "ada@example.com", Password: "pw"}

func newManager(t *testing.T, store Store, opts ...Option) (*clinicapitest.Server, *Manager) {
	t.Helper()
	srv := clinicapitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(appointment.User{FullName: "Ada Obi", Email: ada.Email}, ada.Password)
	srv.AddUser(appointment.User{FullName: "Ben Cole", Email: "ben@example.com", Role: appointment.RoleDoctor}, "pw")
	srv.AddAppointment(appointment.Appointment{Name: "Ada Obi", Date: "2024-11-06", Time: "09:00", Duration: 30})

	m, err := NewManager(remote.New(srv.BaseURL(), 2*time.Second), store, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return srv, m
}

func ready(t *testing.T, c *reconcile.Cache) {
	t.Helper()
	assert.Eventually(t, func() bool { return c.State() == reconcile.StateReady }, 5*time.Second, 5*time.Millisecond)
}

func TestSignInStartsSessionWithLoadedCache(t *testing.T) {
	store := NewMemoryStore()
	_, m := newManager(t, store)

	s, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "Ada Obi", s.User.FullName)

	ready(t, s.Cache)
	assert.Len(t, s.Cache.Snapshot().Appointments, 1)

	rec, err := store.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Record, rec)
	assert.Equal(t, 1, m.Live())
}

func TestSignInFailureCreatesNothing(t *testing.T) {
	_, m := newManager(t, NewMemoryStore())

	_, err := m.SignIn(context.Background(), appointment.Credentials{Email: ada.Email, Password: "wrong"})
	assert.ErrorIs(t, err, remote.ErrServer)
	assert.Zero(t, m.Live())
}

func TestSignUpStartsSession(t *testing.T) {
	_, m := newManager(t, NewMemoryStore())

	s, err := m.SignUp(context.Background(), appointment.Registration{
		FullName:    "Cy Dunn",
		Email:       "cy@example.com",
		PhoneNumber: "+15550102",
		Age:         51,
		Password:    "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.RolePatient, s.User.Role)
}

func TestGetReturnsSameCache(t *testing.T) {
	_, m := newManager(t, NewMemoryStore())
	s, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)

	got, err := m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Same(t, s.Cache, got.Cache)
	assert.Equal(t, s.User, got.User)
}

func TestGetUnknownSession(t *testing.T) {
	_, m := newManager(t, NewMemoryStore())

	_, err := m.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSignOutDestroysCache(t *testing.T) {
	_, m := newManager(t, NewMemoryStore())
	s, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)

	assert.ErrorIs(t, m.SignOut(context.Background(), s.ID, "not-the-token"), ErrSessionNotFound)
	assert.NotEqual(t, reconcile.StateDestroyed, s.Cache.State())

	require.NoError(t, m.SignOut(context.Background(), s.ID, s.Token))
	assert.Equal(t, reconcile.StateDestroyed, s.Cache.State())
	assert.Zero(t, m.Live())

	_, err = m.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEvictedCacheIsRebuilt(t *testing.T) {
	_, m := newManager(t, NewMemoryStore(), WithCacheSize(1))

	first, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)
	second, err := m.SignIn(context.Background(), appointment.Credentials{Email: "ben@example.com", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, reconcile.StateDestroyed, first.Cache.State())
	assert.Equal(t, 1, m.Live())

	again, err := m.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.NotSame(t, first.Cache, again.Cache)
	ready(t, again.Cache)
	assert.Len(t, again.Cache.Snapshot().Appointments, 1)

	assert.Equal(t, reconcile.StateDestroyed, second.Cache.State())
}

func TestExpiredSessionIsDroppedByRefresh(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 11, 6, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	srv, m := newManager(t, store, WithTTL(time.Hour))
	s, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)
	ready(t, s.Cache)

	listCalls := srv.Count(clinicapitest.RouteList)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Equal(t, 1, m.RefreshAll(ctx))
	assert.Equal(t, listCalls+1, srv.Count(clinicapitest.RouteList))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 0, m.RefreshAll(ctx))
	assert.Zero(t, m.Live())
	assert.Equal(t, reconcile.StateDestroyed, s.Cache.State())
}

func TestRunRefresherStopsWithContext(t *testing.T) {
	srv, m := newManager(t, NewMemoryStore())
	s, err := m.SignIn(context.Background(), ada)
	require.NoError(t, err)
	ready(t, s.Cache)
	before := srv.Count(clinicapitest.RouteStats)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunRefresher(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return srv.Count(clinicapitest.RouteStats) > before }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestMemoryStoreRejectsDuplicateID(t *testing.T) {
	store := NewMemoryStore()
	rec := Record{ID: uuid.New(), Token: "t"}

	require.NoError(t, store.Save(context.Background(), rec, 0))
	assert.ErrorIs(t, store.Save(context.Background(), rec, 0), ErrSessionExists)
}
