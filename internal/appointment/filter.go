package appointment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Tab is the list view selection in the appointment screen.
type Tab string

const (
	TabUpcoming Tab = "upcoming"
	TabToday    Tab = "today"
	TabPast     Tab = "past"
	TabAll      Tab = "all"
)

// StatusClass is the derived category the backend filters on. It is not the
// raw appointment status.
type StatusClass string

const (
	ClassNone     StatusClass = ""
	ClassUpcoming StatusClass = "upcoming"
	ClassToday    StatusClass = "today"
	ClassPast     StatusClass = "past"
)

var ErrUnknownTab = errors.New("unknown tab")

func ParseTab(s string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case TabUpcoming:
		return TabUpcoming, nil
	case TabToday:
		return TabToday, nil
	case TabPast:
		return TabPast, nil
	case TabAll:
		return TabAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

// Filter is the query sent with a list request. Zero value means "everything".
type Filter struct {
	Date   string      `json:"date,omitempty"`
	Status StatusClass `json:"status,omitempty"`
}

// Translate maps the view selection to a Filter. The date is kept whatever the
// tab, and the "all" tab sends no status-class.
func Translate(date string, tab Tab) Filter {
	f := Filter{Date: date}
	switch tab {
	case TabUpcoming:
		f.Status = ClassUpcoming
	case TabToday:
		f.Status = ClassToday
	case TabPast:
		f.Status = ClassPast
	case TabAll:
		f.Status = ClassNone
	default:
		f.Status = StatusClass(tab)
	}
	return f
}

func (f Filter) IsZero() bool {
	return f.Date == "" && f.Status == ClassNone
}

// Query renders the filter as URL query values, leaving out unset parts.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Status != ClassNone {
		q.Set("status", string(f.Status))
	}
	return q
}

// Key identifies the filter for de-duplication of in-flight reads.
func (f Filter) Key() string {
	return "date=" + f.Date + "&status=" + string(f.Status)
}

func (f Filter) String() string {
	if f.IsZero() {
		return "all"
	}
	return f.Query().Encode()
}

// ValidateDate checks a calendar date in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
	}
	return nil
}
