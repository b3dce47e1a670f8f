package booking_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/booking"
	"github.com/hackgods/clinic-appointment-client/internal/clinicapitest"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

func validForm(doctorID int64) booking.Form {
	return booking.Form{
		FullName:    "Ada Obi",
		PhoneNumber: "+1 555-0100",
		Email:       "ada@example.com",
		Age:         34,
		Date:        "2024-11-06",
		Time:        "14:30",
		DoctorID:    doctorID,
		Reason:      "Annual checkup",
	}
}

func setup(t *testing.T) (*clinicapitest.Server, *booking.Service, appointment.Doctor) {
	t.Helper()
	srv := clinicapitest.NewServer()
	t.Cleanup(srv.Close)
	doctor := srv.AddDoctor(appointment.Doctor{Name: "Dr. Reyes", Specialization: "Cardiology"})
	svc := booking.NewService(remote.New(srv.BaseURL(), 2*time.Second), nil)
	return srv, svc, doctor
}

func TestValidateDefaults(t *testing.T) {
	svc := booking.NewService(nil, nil)
	f := validForm(1)
	f.FullName = "  Ada Obi  "

	require.NoError(t, svc.Validate(&f))
	assert.Equal(t, "Ada Obi", f.FullName)
	assert.Equal(t, booking.DefaultDuration, f.Duration)
	assert.Equal(t, appointment.ModeInPerson, f.Mode)
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*booking.Form)
		field   string
		message string
	}{
		{"blank name", func(f *booking.Form) { f.FullName = "   " }, "fullName", "Full name is required"},
		{"bad email", func(f *booking.Form) { f.Email = "ada@" }, "email", "Please enter a valid email address"},
		{"missing email", func(f *booking.Form) { f.Email = "" }, "email", "Email is required"},
		{"phone with letters", func(f *booking.Form) { f.PhoneNumber = "555-CALL-NOW" }, "phoneNumber", "Please enter a valid phone number"},
		{"phone leading zero", func(f *booking.Form) { f.PhoneNumber = "0555 0100" }, "phoneNumber", "Please enter a valid phone number"},
		{"age too high", func(f *booking.Form) { f.Age = 121 }, "age", "Please enter a valid age (1-120)"},
		{"age negative", func(f *booking.Form) { f.Age = -3 }, "age", "Please enter a valid age (1-120)"},
		{"missing age", func(f *booking.Form) { f.Age = 0 }, "age", "Age is required"},
		{"bad date", func(f *booking.Form) { f.Date = "06/11/2024" }, "date", "Please enter a valid date (YYYY-MM-DD)"},
		{"bad time", func(f *booking.Form) { f.Time = "2pm" }, "time", "Please enter a valid time (HH:MM)"},
		{"no doctor", func(f *booking.Form) { f.DoctorID = 0 }, "doctorId", "Doctor selection is required"},
		{"negative duration", func(f *booking.Form) { f.Duration = -30 }, "duration", "Duration must be a positive number of minutes"},
		{"unknown mode", func(f *booking.Form) { f.Mode = "Carrier Pigeon" }, "mode", "Mode must be In-Person or Video Call"},
		{"blank reason", func(f *booking.Form) { f.Reason = "" }, "reason", "Reason is required"},
	}

	svc := booking.NewService(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm(1)
			tt.mutate(&f)

			err := svc.Validate(&f)
			require.ErrorIs(t, err, booking.ErrInvalidForm)

			var fe *booking.FormError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.message, fe.Fields[tt.field])
			assert.Len(t, fe.Fields, 1)
		})
	}
}

func TestSubmitAsPatientCreatesDirectly(t *testing.T) {
	srv, svc, doctor := setup(t)
	patient := srv.AddUser(appointment.User{FullName: "Ada Obi", Email: "ada@example.com", PhoneNumber: "+15550100"}, "pw")

	res, err := svc.Submit(context.Background(), &patient, validForm(doctor.ID), nil)
	require.NoError(t, err)

	assert.False(t, res.SignedUp)
	assert.Equal(t, patient.ID, res.PatientID)
	assert.Equal(t, appointment.StatusScheduled, res.Appointment.Status)
	assert.Equal(t, "Dr. Reyes", res.Appointment.DoctorName)
	assert.Nil(t, res.Refetch)
	assert.Zero(t, srv.Count(clinicapitest.RouteSignUp))
}

func TestSubmitAsStaffSignsUpPatientFirst(t *testing.T) {
	srv, svc, doctor := setup(t)
	staff := appointment.User{ID: 99, FullName: "Front Desk", Role: appointment.RoleAdmin}

	res, err := svc.Submit(context.Background(), &staff, validForm(doctor.ID), nil)
	require.NoError(t, err)
	assert.True(t, res.SignedUp)
	assert.NotEqual(t, staff.ID, res.PatientID)

	var routes []string
	for _, r := range srv.Requests() {
		routes = append(routes, r.Route)
	}
	assert.Equal(t, []string{clinicapitest.RouteSignUp, clinicapitest.RouteCreate}, routes)

	stored, ok := srv.Appointment(res.Appointment.ID)
	require.True(t, ok)
	assert.Equal(t, "Ada Obi", stored.Name)
}

func TestSubmitWithoutUserSignsUp(t *testing.T) {
	srv, svc, doctor := setup(t)

	res, err := svc.Submit(context.Background(), nil, validForm(doctor.ID), nil)
	require.NoError(t, err)
	assert.True(t, res.SignedUp)
	assert.Equal(t, 1, srv.Count(clinicapitest.RouteSignUp))
}

func TestSubmitSignUpFailureSkipsCreation(t *testing.T) {
	srv, svc, doctor := setup(t)
	srv.AddUser(appointment.User{FullName: "Ada Obi", Email: "ada@example.com"}, "pw")
	staff := appointment.User{ID: 99, Role: appointment.RoleDoctor}

	_, err := svc.Submit(context.Background(), &staff, validForm(doctor.ID), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, booking.ErrInvalidForm)
	assert.ErrorIs(t, err, remote.ErrServer)

	var fe *booking.FormError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Failed to create patient account: Email already registered", fe.General)
	assert.Empty(t, fe.Fields)
	assert.Zero(t, srv.Count(clinicapitest.RouteCreate))
}

func TestSubmitInvalidFormMakesNoCalls(t *testing.T) {
	srv, svc, doctor := setup(t)
	f := validForm(doctor.ID)
	f.Email = "not-an-email"

	_, err := svc.Submit(context.Background(), nil, f, nil)
	assert.ErrorIs(t, err, booking.ErrInvalidForm)
	assert.Empty(t, srv.Requests())
}

func TestSubmitCreateFailureIsGeneralError(t *testing.T) {
	srv, svc, doctor := setup(t)
	patient := srv.AddUser(appointment.User{FullName: "Ada Obi", Email: "ada@example.com"}, "pw")
	srv.Fail(clinicapitest.RouteCreate, http.StatusInternalServerError, "Failed to create appointment", 1)

	_, err := svc.Submit(context.Background(), &patient, validForm(doctor.ID), nil)

	var fe *booking.FormError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.General, "Failed to create appointment")
}

func TestSubmitHandsCreatedAppointmentToCache(t *testing.T) {
	srv, svc, doctor := setup(t)
	patient := srv.AddUser(appointment.User{FullName: "Ada Obi", Email: "ada@example.com"}, "pw")
	srv.AddAppointment(appointment.Appointment{Name: "Earlier", Date: "2024-11-01", Time: "09:00", Duration: 30})

	cache := reconcile.New(remote.New(srv.BaseURL(), 2*time.Second))
	defer cache.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, cache.Load().Wait(ctx))

	res, err := svc.Submit(ctx, &patient, validForm(doctor.ID), cache)
	require.NoError(t, err)
	require.NotNil(t, res.Refetch)
	require.NoError(t, res.Refetch.Wait(ctx))

	snap := cache.Snapshot()
	assert.Len(t, snap.Appointments, 2)
	_, ok := snap.Entry(res.Appointment.ID)
	assert.True(t, ok)
}
