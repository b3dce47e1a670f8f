package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/session"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a session. The registered ID claim carries the session
// token needed to sign out.
type Claims struct {
	SessionID string           `json:"sid"`
	UserID    int64            `json:"uid"`
	Role      appointment.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (ti *TokenIssuer) Issue(rec session.Record) (string, time.Time, error) {
	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := &Claims{
		SessionID: rec.ID.String(),
		UserID:    rec.User.ID,
		Role:      rec.User.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.Token,
			Subject:   fmt.Sprint(rec.User.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (ti *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil {
		return nil, fmt.Errorf("%w: bad session id", ErrInvalidToken)
	}
	return claims, nil
}

type authContextKey struct{}

type authInfo struct {
	claims  *Claims
	session *session.Session
}

// AuthMiddleware resolves the bearer token to a live session.
func AuthMiddleware(tokens *TokenIssuer, sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header required")
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format")
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			sess, err := sessions.Get(r.Context(), uuid.MustParse(claims.SessionID))
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					writeError(w, http.StatusUnauthorized, "session_not_found", "session has ended, sign in again")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			if sess.Token != claims.ID {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token does not match session")
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{claims: claims, session: sess})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(ctx context.Context) (*session.Session, *Claims, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	if !ok {
		return nil, nil, false
	}
	return info.session, info.claims, true
}
