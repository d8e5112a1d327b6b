// Package diagnosis holds the clinical status lifecycle of a patient's
// diagnosis codes: how a new consultation resolves the status of every code
// it touches, and how a patient's entry history reduces to one current
// status per code. Everything here is pure and performs no I/O.
package diagnosis

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the clinical status of a diagnosis code for a patient.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusPending     Status = "pending"
	StatusUnconfirmed Status = "unconfirmed"
	// StatusInactive is never stored. It stands for "no current record",
	// which is how a code the patient has never been diagnosed with reads.
	StatusInactive Status = "inactive"
)

var (
	ErrInvalidStatus = errors.New("invalid diagnosis status")
	ErrDuplicateCode = errors.New("diagnosis already selected")
	ErrEmptyCode     = errors.New("diagnosis code is required")
	ErrNotSelected   = errors.New("diagnosis not in selection")
)

// Recorded reports whether s is one of the statuses a stored entry can carry.
func (s Status) Recorded() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusUnconfirmed:
		return true
	}
	return false
}

// IsActive reports whether s counts as an active diagnosis.
func (s Status) IsActive() bool {
	return s == StatusConfirmed || s == StatusPending
}

func (s Status) String() string { return string(s) }

// ParseStatus parses any of the four lifecycle values, including inactive.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if s.Recorded() || s == StatusInactive {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// ParseOverrideStatus parses the target of a bulk status override. Only
// recorded statuses are accepted; inactive cannot be written.
func ParseOverrideStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Recorded() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// Snapshot is a patient's current status per diagnosis code. A missing key
// means the patient has no record for that code.
type Snapshot map[string]Status

// Lookup returns the current status for code, or StatusInactive when the
// patient has no record of it.
func (s Snapshot) Lookup(code string) Status {
	if st, ok := s[code]; ok && st.Recorded() {
		return st
	}
	return StatusInactive
}
