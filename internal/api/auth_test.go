package api

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/session"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	rec := session.Record{
		ID:    uuid.New(),
		Token: uuid.NewString(),
		User:  appointment.User{ID: 7, Role: appointment.RoleDoctor},
	}

	raw, expires, err := issuer.Issue(rec)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.ID.String(), claims.SessionID)
	assert.Equal(t, rec.Token, claims.ID)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, appointment.RoleDoctor, claims.Role)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	raw, _, err := issuer.Issue(session.Record{ID: uuid.New(), Token: "t"})
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Parse(raw)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
