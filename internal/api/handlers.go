package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/booking"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
	"github.com/hackgods/clinic-appointment-client/internal/session"
)

type Sessions interface {
	SignIn(ctx context.Context, creds appointment.Credentials) (*session.Session, error)
	SignUp(ctx context.Context, reg appointment.Registration) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	SignOut(ctx context.Context, id uuid.UUID, token string) error
}

type Doctors interface {
	ListDoctors(ctx context.Context) ([]appointment.Doctor, error)
}

func signInHandler(sessions Sessions, tokens *TokenIssuer, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.Credentials
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
			return
		}

		sess, err := sessions.SignIn(r.Context(), req)
		metrics.authAttempt("signin", err)
		if err != nil {
			handleRemoteError(w, err)
			return
		}
		writeSession(w, http.StatusOK, tokens, sess)
	}
}

func signUpHandler(sessions Sessions, tokens *TokenIssuer, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.Registration
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sess, err := sessions.SignUp(r.Context(), req)
		metrics.authAttempt("signup", err)
		if err != nil {
			handleRemoteError(w, err)
			return
		}
		writeSession(w, http.StatusCreated, tokens, sess)
	}
}

func writeSession(w http.ResponseWriter, status int, tokens *TokenIssuer, sess *session.Session) {
	token, expires, err := tokens.Issue(sess.Record)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, ExpiresAt: expires, User: sess.User})
}

func signOutHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, claims, _ := sessionFrom(r.Context())
		if err := sessions.SignOut(r.Context(), sess.ID, claims.ID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "session_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func viewHandler(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, sess.Cache.Snapshot())
}

func selectTabHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectTabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		tab, err := appointment.ParseTab(req.Tab)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tab", err.Error())
			return
		}

		waitAndWriteView(w, r, sessions, func(c *reconcile.Cache) *reconcile.Task {
			return c.SelectTab(tab)
		})
	}
}

func selectDateHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectDateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date := strings.TrimSpace(req.Date)
		if date != "" {
			if err := appointment.ValidateDate(date); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
		}

		waitAndWriteView(w, r, sessions, func(c *reconcile.Cache) *reconcile.Task {
			if date == "" {
				return c.ClearDate()
			}
			return c.SelectDate(date)
		})
	}
}

// onLiveCache runs op on the request's session cache and passes the task to
// result. A cache the registry evicted while the session is still stored
// fails with ErrDestroyed; the session is then reattached through Get and op
// runs once more on the rebuilt cache.
func onLiveCache(r *http.Request, sessions Sessions, op func(*reconcile.Cache) *reconcile.Task, result func(*reconcile.Task) error) (*reconcile.Cache, error) {
	sess, _, _ := sessionFrom(r.Context())
	err := result(op(sess.Cache))
	if !errors.Is(err, reconcile.ErrDestroyed) {
		return sess.Cache, err
	}

	fresh, getErr := sessions.Get(r.Context(), sess.ID)
	if getErr != nil {
		return sess.Cache, err
	}
	return fresh.Cache, result(op(fresh.Cache))
}

// waitAndWriteView waits for a selection change to settle. Remote failures
// are reported inside the snapshot rather than as an HTTP error.
func waitAndWriteView(w http.ResponseWriter, r *http.Request, sessions Sessions, op func(*reconcile.Cache) *reconcile.Task) {
	cache, err := onLiveCache(r, sessions, op, func(t *reconcile.Task) error {
		return t.Wait(r.Context())
	})
	switch {
	case errors.Is(err, reconcile.ErrDestroyed):
		writeError(w, http.StatusUnauthorized, "session_not_found", "session has ended, sign in again")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "view did not settle in time")
		return
	}
	writeJSON(w, http.StatusOK, cache.Snapshot())
}

func updateStatusHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		// Only a synchronous failure matters here; the change settles in the background.
		cache, err := onLiveCache(r, sessions, func(c *reconcile.Cache) *reconcile.Task {
			return c.SetStatus(id, status)
		}, (*reconcile.Task).Err)
		if errors.Is(err, reconcile.ErrDestroyed) {
			writeError(w, http.StatusUnauthorized, "session_not_found", "session has ended, sign in again")
			return
		}
		writeJSON(w, http.StatusAccepted, cache.Snapshot())
	}
}

func createAppointmentHandler(sessions Sessions, svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form booking.Form
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sess, _, _ := sessionFrom(r.Context())
		res, err := svc.Submit(r.Context(), &sess.User, form, sess.Cache)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		cache := sess.Cache
		if res.Refetch != nil && errors.Is(res.Refetch.Err(), reconcile.ErrDestroyed) {
			cache, _ = onLiveCache(r, sessions, func(c *reconcile.Cache) *reconcile.Task {
				return c.AddCreated(res.Appointment)
			}, (*reconcile.Task).Err)
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Appointment: res.Appointment,
			SignedUp:    res.SignedUp,
			View:        cache.Snapshot(),
		})
	}
}

func listDoctorsHandler(doctors Doctors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := doctors.ListDoctors(r.Context())
		if err != nil {
			handleRemoteError(w, err)
			return
		}
		if list == nil {
			list = []appointment.Doctor{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := sessionFrom(r.Context())
	snap := sess.Cache.Snapshot()
	writeJSON(w, http.StatusOK, DashboardResponse{
		Stats:     snap.Stats,
		State:     snap.State,
		LastError: snap.LastError,
	})
}

func handleBookingError(w http.ResponseWriter, err error) {
	var fe *booking.FormError
	switch {
	case errors.Is(err, booking.ErrInvalidForm) && errors.As(err, &fe):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "validation_failed",
			Fields: fe.Fields,
		})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "booking_failed",
			Details: fe.General,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// handleRemoteError passes client errors from the backend through and turns
// everything else into a gateway error.
func handleRemoteError(w http.ResponseWriter, err error) {
	var re *remote.Error
	switch {
	case errors.As(err, &re) && re.Kind == remote.KindServer &&
		re.StatusCode >= http.StatusBadRequest && re.StatusCode < http.StatusInternalServerError:
		writeError(w, re.StatusCode, "rejected", re.Message)
	case errors.Is(err, remote.ErrNetwork):
		writeError(w, http.StatusBadGateway, "backend_unreachable", remote.Message(err))
	case errors.Is(err, remote.ErrServer), errors.Is(err, remote.ErrMalformed):
		writeError(w, http.StatusBadGateway, "backend_error", remote.Message(err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
