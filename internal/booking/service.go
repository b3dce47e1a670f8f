// Package booking turns a filled-in booking form into a created appointment.
//
// Users that are not patients (front desk staff, doctors) book on behalf of
// someone else, so for them a patient account is signed up first from the
// form's contact details.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

type Remote interface {
	SignUp(ctx context.Context, reg appointment.Registration) (*appointment.User, error)
	CreateAppointment(ctx context.Context, in appointment.NewAppointment) (*appointment.Appointment, error)
}

// Sink receives the created appointment, normally a *reconcile.Cache.
type Sink interface {
	AddCreated(a appointment.Appointment) *reconcile.Task
}

type Service struct {
	remote   Remote
	log      *logrus.Entry
	validate *validator.Validate
}

func NewService(r Remote, log *logrus.Entry) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{remote: r, log: log, validate: newValidator()}
}

// Validate normalizes f in place and checks it. It returns a *FormError with
// per-field messages.
func (s *Service) Validate(f *Form) error {
	f.Normalize()
	if err := s.validate.Struct(f); err != nil {
		return fieldErrors(err)
	}
	return nil
}

// Result is a successful submission.
type Result struct {
	Appointment appointment.Appointment
	PatientID   int64
	SignedUp    bool
	// Refetch completes when the sink has reconciled with the backend.
	Refetch *reconcile.Task
}

// Submit validates f, signs up a patient when user is nil or not a patient,
// creates the appointment and hands it to sink. Every failure is a *FormError.
func (s *Service) Submit(ctx context.Context, user *appointment.User, f Form, sink Sink) (*Result, error) {
	if err := s.Validate(&f); err != nil {
		return nil, err
	}

	res := &Result{}
	if user != nil && user.ID > 0 && user.IsPatient() {
		res.PatientID = user.ID
	} else {
		patient, err := s.remote.SignUp(ctx, appointment.Registration{
			FullName:    f.FullName,
			Email:       f.Email,
			PhoneNumber: f.PhoneNumber,
			Age:         f.Age,
			Password:    uuid.NewString(),
			Role:        appointment.RolePatient,
		})
		if err != nil {
			s.log.WithError(err).WithField("email", f.Email).Warn("patient sign-up failed")
			return nil, generalError("Failed to create patient account", err)
		}
		res.PatientID = patient.ID
		res.SignedUp = true
	}

	created, err := s.remote.CreateAppointment(ctx, appointment.NewAppointment{
		PatientID: res.PatientID,
		DoctorID:  f.DoctorID,
		Date:      f.Date,
		Time:      f.Time,
		Duration:  f.Duration,
		Reason:    f.Reason,
		Mode:      f.Mode,
		Status:    appointment.StatusScheduled,
	})
	if err != nil {
		s.log.WithError(err).WithField("patient_id", res.PatientID).Warn("appointment creation failed")
		return nil, generalError("Failed to create appointment", err)
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"patient_id":     res.PatientID,
		"signed_up":      res.SignedUp,
	}).Info("appointment booked")

	res.Appointment = *created
	if sink != nil {
		res.Refetch = sink.AddCreated(*created)
	}
	return res, nil
}

func generalError(fallback string, err error) *FormError {
	msg := fallback
	var re *remote.Error
	if errors.As(err, &re) && re.Message != "" {
		msg = fmt.Sprintf("%s: %s", fallback, re.Message)
	}
	return &FormError{General: msg, Err: err}
}
