// Package clinicapitest provides an in-memory fake of the clinic REST backend
// for tests.
//
// The fake implements the endpoints the client uses, mounted under /api:
//
//   - POST /api/auth/signin, POST /api/auth/signup
//   - GET /api/appointments?date=&status=, POST /api/appointments
//   - PUT /api/appointments/{id}/status, GET /api/appointments/stats
//   - GET /api/doctors, GET /api/health
//
// List filtering and stats follow the production backend: "today" matches the
// server's current date, "upcoming" matches Scheduled, "past" matches
// Completed and Cancelled.
//
// Basic usage:
//
//	srv := clinicapitest.NewServer()
//	defer srv.Close()
//	srv.AddDoctor(appointment.Doctor{Name: "Dr. Reyes", Specialization: "Cardiology"})
//	client := remote.New(srv.BaseURL(), time.Second)
//
// Failures and latency are injected per route with Fail and OnRequest, and
// every request is recorded for assertions with Requests.
package clinicapitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
)

// Route keys accepted by Fail and OnRequest.
const (
	RouteSignIn       = "POST /auth/signin"
	RouteSignUp       = "POST /auth/signup"
	RouteList         = "GET /appointments"
	RouteCreate       = "POST /appointments"
	RouteUpdateStatus = "PUT /appointments/{id}/status"
	RouteStats        = "GET /appointments/stats"
	RouteDoctors      = "GET /doctors"
	RouteHealth       = "GET /health"
)

// Request is one recorded call.
type Request struct {
	Route    string
	Method   string
	Path     string
	RawQuery string
	Body     []byte
}

type failure struct {
	status  int
	message string
	times   int // <= 0 means until cleared
}

type user struct {
	appointment.User
	password string
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[int64]*user
	doctors    map[int64]appointment.Doctor
	appts      map[int64]appointment.Appointment
	nextUser   int64
	nextDoctor int64
	nextAppt   int64
	today      string
	requests   []Request
	failures   map[string]*failure
	hooks      map[string]func(Request)
}

func NewServer() *Server {
	s := &Server{}
	s.reset()

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signin", s.wrap(RouteSignIn, s.signIn))
		r.Post("/auth/signup", s.wrap(RouteSignUp, s.signUp))
		r.Get("/appointments", s.wrap(RouteList, s.listAppointments))
		r.Post("/appointments", s.wrap(RouteCreate, s.createAppointment))
		r.Get("/appointments/stats", s.wrap(RouteStats, s.stats))
		r.Put("/appointments/{id}/status", s.wrap(RouteUpdateStatus, s.updateStatus))
		r.Get("/doctors", s.wrap(RouteDoctors, s.listDoctors))
		r.Get("/health", s.wrap(RouteHealth, s.health))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the value to hand to remote.New.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Reset drops all data, recorded requests, failures and hooks.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Server) reset() {
	s.users = make(map[int64]*user)
	s.doctors = make(map[int64]appointment.Doctor)
	s.appts = make(map[int64]appointment.Appointment)
	s.nextUser, s.nextDoctor, s.nextAppt = 0, 0, 0
	s.today = time.Now().UTC().Format(appointment.DateLayout)
	s.requests = nil
	s.failures = make(map[string]*failure)
	s.hooks = make(map[string]func(Request))
}

// SetToday pins the date used by the "today" filter and stats.
func (s *Server) SetToday(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = date
}

func (s *Server) AddDoctor(d appointment.Doctor) appointment.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		s.nextDoctor++
		d.ID = s.nextDoctor
	} else if d.ID > s.nextDoctor {
		s.nextDoctor = d.ID
	}
	d.IsActive = true
	s.doctors[d.ID] = d
	return d
}

// AddUser stores a user that can sign in with password.
func (s *Server) AddUser(u appointment.User, password string) appointment.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(u, password).User
}

func (s *Server) addUser(u appointment.User, password string) *user {
	if u.ID == 0 {
		s.nextUser++
		u.ID = s.nextUser
	} else if u.ID > s.nextUser {
		s.nextUser = u.ID
	}
	if u.Role == "" {
		u.Role = appointment.RolePatient
	}
	if u.Name == "" {
		u.Name = u.FullName
	}
	u.CreatedAt = appointment.Timestamp{Time: time.Now().UTC()}
	rec := &user{User: u, password: password}
	s.users[u.ID] = rec
	return rec
}

// AddAppointment stores a as-is, assigning an id when a.ID is zero.
func (s *Server) AddAppointment(a appointment.Appointment) appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextAppt++
		a.ID = s.nextAppt
	} else if a.ID > s.nextAppt {
		s.nextAppt = a.ID
	}
	if a.Status == "" {
		a.Status = appointment.StatusScheduled
	}
	if a.Mode == "" {
		a.Mode = appointment.ModeInPerson
	}
	s.appts[a.ID] = a
	return a
}

// Appointment returns the stored record with id.
func (s *Server) Appointment(id int64) (appointment.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	return a, ok
}

// Appointments returns every stored record ordered by id.
func (s *Server) Appointments() []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(appointment.Appointment) bool { return true })
}

// Fail makes route answer with status and message for the next times calls,
// or for every call when times <= 0.
func (s *Server) Fail(route string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &failure{status: status, message: message, times: times}
}

func (s *Server) ClearFailure(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// OnRequest registers fn to run before route is served. fn may block, which
// is how tests hold a response back.
func (s *Server) OnRequest(route string, fn func(Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, route)
		return
	}
	s.hooks[route] = fn
}

// Requests returns the calls received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many calls route received.
func (s *Server) Count(route string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Route == route {
			n++
		}
	}
	return n
}

func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		rec := Request{
			Route:    route,
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Body:     body,
		}

		s.mu.Lock()
		s.requests = append(s.requests, rec)
		hook := s.hooks[route]
		s.mu.Unlock()

		if hook != nil {
			hook(rec)
		}

		s.mu.Lock()
		f := s.failures[route]
		var status int
		var message string
		if f != nil {
			status, message = f.status, f.message
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.failures, route)
				}
			}
		}
		s.mu.Unlock()

		if f != nil {
			writeJSON(w, status, map[string]string{"error": message})
			return
		}
		h(w, r)
	}
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req appointment.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == req.Email && u.password == req.Password {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"user":    u.User,
				"message": "Sign in successful",
			})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req appointment.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	required := []struct {
		name  string
		empty bool
	}{
		{"fullName", req.FullName == ""},
		{"email", req.Email == ""},
		{"phoneNumber", req.PhoneNumber == ""},
		{"age", req.Age == 0},
		{"password", req.Password == ""},
	}
	for _, f := range required {
		if f.empty {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": f.name + " is required"})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == req.Email {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email already registered"})
			return
		}
	}

	rec := s.addUser(appointment.User{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Age:         req.Age,
		Role:        req.Role,
	}, req.Password)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    rec.User,
		"message": "Account created successfully",
	})
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	class := strings.ToLower(r.URL.Query().Get("status"))

	if date != "" {
		if err := appointment.ValidateDate(date); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid date format. Use YYYY-MM-DD"})
			return
		}
	}

	s.mu.Lock()
	today := s.today
	result := s.sortedLocked(func(a appointment.Appointment) bool {
		if date != "" && a.Date != date {
			return false
		}
		switch class {
		case "":
			return true
		case "today":
			return a.Date == today
		case "upcoming":
			return a.Status == appointment.StatusScheduled || a.Status == "Upcoming"
		case "past":
			return a.Status == appointment.StatusCompleted || a.Status == appointment.StatusCancelled
		default:
			return strings.Contains(strings.ToLower(string(a.Status)), class)
		}
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.NewAppointment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	required := []struct {
		name  string
		empty bool
	}{
		{"patientId", req.PatientID == 0},
		{"doctorId", req.DoctorID == 0},
		{"date", req.Date == ""},
		{"time", req.Time == ""},
		{"reason", req.Reason == ""},
	}
	for _, f := range required {
		if f.empty {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": f.name + " is required"})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	patient, ok := s.users[req.PatientID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "patient not found"})
		return
	}
	doctor, ok := s.doctors[req.DoctorID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "doctor not found"})
		return
	}

	now := appointment.Timestamp{Time: time.Now().UTC()}
	a := appointment.Appointment{
		Name:       patient.FullName,
		Phone:      patient.PhoneNumber,
		Email:      patient.Email,
		Date:       req.Date,
		Time:       req.Time,
		Duration:   req.Duration,
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
		Mode:       req.Mode,
		Status:     req.Status,
		Reason:     req.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if a.Duration == 0 {
		a.Duration = 30
	}
	if a.Status == "" {
		a.Status = appointment.StatusScheduled
	}
	if a.Mode == "" {
		a.Mode = appointment.ModeInPerson
	}
	s.nextAppt++
	a.ID = s.nextAppt
	s.appts[a.ID] = a

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"appointment": a,
		"message":     "Appointment created successfully",
	})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}

	var req struct {
		Status appointment.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Status is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	a.Status = req.Status
	a.UpdatedAt = appointment.Timestamp{Time: time.Now().UTC()}
	s.appts[id] = a

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"appointment": a,
		"message":     "Appointment status updated to " + string(req.Status),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st appointment.Stats
	for _, a := range s.appts {
		if a.Date == s.today {
			st.Today++
		}
		if a.Status == appointment.StatusConfirmed {
			st.Confirmed++
		}
		if a.Status == appointment.StatusScheduled || a.Status == "Upcoming" {
			st.Upcoming++
		}
		if a.Mode == appointment.ModeVideoCall {
			st.Telemedicine++
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listDoctors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]appointment.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		if d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	})
}

func (s *Server) sortedLocked(keep func(appointment.Appointment) bool) []appointment.Appointment {
	out := make([]appointment.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
