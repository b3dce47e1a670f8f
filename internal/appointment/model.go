package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus accepts any casing of the four known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidAppointment, s)
}

type Mode string

const (
	ModeInPerson  Mode = "In-Person"
	ModeVideoCall Mode = "Video Call"
)

type Role string

const (
	RolePatient Role = "Patient"
	RoleDoctor  Role = "Doctor"
	RoleAdmin   Role = "Admin"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var ErrInvalidAppointment = errors.New("invalid appointment")

type Appointment struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Duration   int       `json:"duration"`
	DoctorID   int64     `json:"doctorId,omitempty"`
	DoctorName string    `json:"doctorName"`
	Mode       Mode      `json:"mode"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason"`
	CreatedAt  Timestamp `json:"createdAt"`
	UpdatedAt  Timestamp `json:"updatedAt"`
}

// NewAppointment is the creation payload: every appointment field the client
// sets, without the server-assigned identifier.
type NewAppointment struct {
	PatientID int64  `json:"patientId"`
	DoctorID  int64  `json:"doctorId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  int    `json:"duration"`
	Reason    string `json:"reason"`
	Mode      Mode   `json:"mode"`
	Status    Status `json:"status"`
}

func (n NewAppointment) Validate() error {
	var problems []string
	if n.PatientID <= 0 {
		problems = append(problems, "patientId is required")
	}
	if n.DoctorID <= 0 {
		problems = append(problems, "doctorId is required")
	}
	if strings.TrimSpace(n.Reason) == "" {
		problems = append(problems, "reason is required")
	}
	if n.Duration <= 0 {
		problems = append(problems, "duration must be positive")
	}
	if _, err := parseSchedule(n.Date, n.Time); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAppointment, strings.Join(problems, "; "))
	}
	return nil
}

func parseSchedule(date, clock string) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, errors.New("date and time are required")
	}
	t, err := time.Parse(DateLayout+" "+TimeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable schedule %q %q", date, clock)
	}
	return t, nil
}

type Stats struct {
	Today        int `json:"today"`
	Confirmed    int `json:"confirmed"`
	Upcoming     int `json:"upcoming"`
	Telemedicine int `json:"telemedicine"`
}

type Doctor struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	IsActive       bool   `json:"isActive"`
}

type User struct {
	ID          int64     `json:"id"`
	FullName    string    `json:"fullName"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Age         int       `json:"age"`
	Role        Role      `json:"role"`
	CreatedAt   Timestamp `json:"createdAt"`
}

func (u User) IsPatient() bool {
	return u.Role == RolePatient
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Age         int    `json:"age"`
	Password    string `json:"password"`
	Role        Role   `json:"role,omitempty"`
}
