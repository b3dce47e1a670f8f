package booking

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
)

const DefaultDuration = 30

// Form is what the user fills in to book an appointment.
type Form struct {
	FullName    string           `json:"fullName" validate:"required"`
	PhoneNumber string           `json:"phoneNumber" validate:"required,phone"`
	Email       string           `json:"email" validate:"required,email"`
	Age         int              `json:"age" validate:"required,min=1,max=120"`
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string           `json:"time" validate:"required,datetime=15:04"`
	Duration    int              `json:"duration" validate:"gt=0"`
	DoctorID    int64            `json:"doctorId" validate:"required"`
	Mode        appointment.Mode `json:"mode" validate:"mode"`
	Reason      string           `json:"reason" validate:"required"`
}

// Normalize trims text fields and fills in the default duration and mode.
func (f *Form) Normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	f.Email = strings.TrimSpace(f.Email)
	f.Reason = strings.TrimSpace(f.Reason)
	if f.Duration == 0 {
		f.Duration = DefaultDuration
	}
	if f.Mode == "" {
		f.Mode = appointment.ModeInPerson
	}
}

// FormError is a rejected submission. Fields holds per-field messages keyed by
// JSON name; General holds a message for failures not tied to one field.
type FormError struct {
	Fields  map[string]string
	General string
	Err     error
}

var ErrInvalidForm = errors.New("invalid booking form")

func (e *FormError) Error() string {
	if e.General != "" {
		return e.General
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid booking form: " + strings.Join(parts, "; ")
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidForm for field errors only.
func (e *FormError) Is(target error) bool {
	return target == ErrInvalidForm && len(e.Fields) > 0
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(phoneSeparators.Replace(fl.Field().String()))
	})
	mustRegister(v, "mode", func(fl validator.FieldLevel) bool {
		switch appointment.Mode(fl.Field().String()) {
		case appointment.ModeInPerson, appointment.ModeVideoCall:
			return true
		}
		return false
	})
	return v
}

// mustRegister panics when tag cannot be registered. Form's tags would
// otherwise name a validation that does not exist.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

var messages = map[string]map[string]string{
	"fullName":    {"required": "Full name is required"},
	"phoneNumber": {"required": "Phone number is required", "phone": "Please enter a valid phone number"},
	"email":       {"required": "Email is required", "email": "Please enter a valid email address"},
	"age":         {"required": "Age is required", "min": "Please enter a valid age (1-120)", "max": "Please enter a valid age (1-120)"},
	"date":        {"required": "Date is required", "datetime": "Please enter a valid date (YYYY-MM-DD)"},
	"time":        {"required": "Time is required", "datetime": "Please enter a valid time (HH:MM)"},
	"duration":    {"gt": "Duration must be a positive number of minutes"},
	"doctorId":    {"required": "Doctor selection is required"},
	"mode":        {"mode": "Mode must be In-Person or Video Call"},
	"reason":      {"required": "Reason is required"},
}

func fieldErrors(err error) *FormError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &FormError{General: err.Error(), Err: err}
	}

	fe := &FormError{Fields: make(map[string]string, len(verrs))}
	for _, e := range verrs {
		msg, ok := messages[e.Field()][e.Tag()]
		if !ok {
			msg = e.Field() + " is invalid"
		}
		if _, seen := fe.Fields[e.Field()]; !seen {
			fe.Fields[e.Field()] = msg
		}
	}
	return fe
}
