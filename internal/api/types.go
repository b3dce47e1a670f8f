package api

import (
	"time"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
)

type AuthResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      appointment.User `json:"user"`
}

type SelectTabRequest struct {
	Tab string `json:"tab"`
}

type SelectDateRequest struct {
	Date string `json:"date"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type BookingResponse struct {
	Appointment appointment.Appointment `json:"appointment"`
	SignedUp    bool                    `json:"signed_up"`
	View        reconcile.Snapshot      `json:"view"`
}

type DashboardResponse struct {
	Stats     appointment.Stats `json:"stats"`
	State     reconcile.State   `json:"state"`
	LastError string            `json:"last_error,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
