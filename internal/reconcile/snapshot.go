package reconcile

import (
	"fmt"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
)

type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SyncTag says how far a locally shown entry is from the server's copy.
type SyncTag int

const (
	// SyncSynced: the entry came from an authoritative list.
	SyncSynced SyncTag = iota
	// SyncPending: a status change is shown but not confirmed yet.
	SyncPending
	// SyncCommitted: the server accepted the local change.
	SyncCommitted
	// SyncFailed: the server rejected the local change or could not be reached.
	SyncFailed
)

func (t SyncTag) String() string {
	switch t {
	case SyncSynced:
		return "synced"
	case SyncPending:
		return "pending"
	case SyncCommitted:
		return "committed"
	case SyncFailed:
		return "failed"
	}
	return fmt.Sprintf("sync(%d)", int(t))
}

func (t SyncTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type Entry struct {
	appointment.Appointment
	Sync SyncTag `json:"sync"`
}

// Selection is what the user picked in the view. The Filter sent to the
// backend is derived from it with appointment.Translate.
type Selection struct {
	Date string          `json:"date,omitempty"`
	Tab  appointment.Tab `json:"tab"`
}

func (s Selection) Filter() appointment.Filter {
	return appointment.Translate(s.Date, s.Tab)
}

// Snapshot is a copy of the cache contents; callers may keep and modify it.
type Snapshot struct {
	State        State              `json:"state"`
	Selection    Selection          `json:"selection"`
	Filter       appointment.Filter `json:"filter"`
	Appointments []Entry            `json:"appointments"`
	Stats        appointment.Stats  `json:"stats"`
	LastError    string             `json:"lastError,omitempty"`
	Err          error              `json:"-"`
	Version      uint64             `json:"version"`
}

// Entry returns the shown entry with id.
func (s Snapshot) Entry(id int64) (Entry, bool) {
	for _, e := range s.Appointments {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
