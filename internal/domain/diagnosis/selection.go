package diagnosis

import (
	"fmt"
	"strings"
)

// Sentinel diagnosis attached to a consultation saved without any code.
const (
	GeneralConsultationCode        = "Z00.0"
	GeneralConsultationDescription = "General consultation"
)

// Item is one code in a selection together with its toggle.
type Item struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Existing    Status `json:"existing_status"`
	KeepActive  bool   `json:"keep_active"`
}

// Outcome resolves the item with its current toggle.
func (i Item) Outcome() Outcome {
	return Resolve(i.Existing, i.KeepActive)
}

// PlannedEntry is a diagnosis entry ready to be persisted.
type PlannedEntry struct {
	Code        string
	Description string
	Status      Status
	Label       string
}

// Selection is the ordered set of codes attached to a consultation before it
// is saved. The zero value is an empty selection.
type Selection struct {
	items []Item
}

func NewSelection() *Selection {
	return &Selection{}
}

func (s *Selection) index(code string) int {
	for i, it := range s.items {
		if it.Code == code {
			return i
		}
	}
	return -1
}

// Add appends code with the default toggle for its existing status. Adding a
// code that is already selected leaves the selection untouched and returns
// an error wrapping ErrDuplicateCode.
func (s *Selection) Add(code, description string, existing Status) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyCode
	}
	if s.index(code) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, code)
	}
	if !existing.Recorded() {
		existing = StatusInactive
	}
	s.items = append(s.items, Item{
		Code:        code,
		Description: description,
		Existing:    existing,
		KeepActive:  DefaultKeepActive(existing),
	})
	return nil
}

// Toggle flips the toggle of a selected code.
func (s *Selection) Toggle(code string) error {
	i := s.index(code)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, code)
	}
	s.items[i].KeepActive = !s.items[i].KeepActive
	return nil
}

// SetKeepActive sets the toggle of a selected code.
func (s *Selection) SetKeepActive(code string, keep bool) error {
	i := s.index(code)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, code)
	}
	s.items[i].KeepActive = keep
	return nil
}

// Remove drops code from the selection and reports whether it was present.
func (s *Selection) Remove(code string) bool {
	i := s.index(code)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Selection) Len() int { return len(s.items) }

// Items returns a copy of the selected items in insertion order.
func (s *Selection) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Plan resolves every selected code. An empty selection plans exactly one
// confirmed general consultation entry, so every saved consultation carries
// at least one diagnosis.
func (s *Selection) Plan() []PlannedEntry {
	if len(s.items) == 0 {
		return []PlannedEntry{{
			Code:        GeneralConsultationCode,
			Description: GeneralConsultationDescription,
			Status:      StatusConfirmed,
			Label:       LabelNewActive,
		}}
	}
	planned := make([]PlannedEntry, 0, len(s.items))
	for _, it := range s.items {
		out := it.Outcome()
		planned = append(planned, PlannedEntry{
			Code:        it.Code,
			Description: it.Description,
			Status:      out.Status,
			Label:       out.Label,
		})
	}
	return planned
}
