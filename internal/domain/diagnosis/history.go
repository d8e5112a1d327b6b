package diagnosis

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinic/pkg/textfold"
)

// Entry is one consultation-level diagnosis as seen by the history
// projections. Seq is the insertion sequence and breaks ties between
// entries created at the same instant.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	ConsultationID uuid.UUID `json:"consultation_id"`
	Code           string    `json:"diagnosis_code"`
	Description    string    `json:"description,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"-"`
}

// Group is the history of one diagnosis code for a patient.
type Group struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Count       int       `json:"count"`
	FirstAt     time.Time `json:"first_at"`
	LastAt      time.Time `json:"last_at"`
	Entries     []Entry   `json:"entries"`
}

// newerOrSame reports whether b was created no earlier than a, treating a
// later position in the input as later when time and sequence tie.
func newerOrSame(a, b Entry) bool {
	if !b.CreatedAt.Equal(a.CreatedAt) {
		return b.CreatedAt.After(a.CreatedAt)
	}
	return b.Seq >= a.Seq
}

// CurrentStatuses reduces entries to the status of the most recently created
// entry per code.
func CurrentStatuses(entries []Entry) Snapshot {
	latest := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if prev, ok := latest[e.Code]; !ok || newerOrSame(prev, e) {
			latest[e.Code] = e
		}
	}
	snap := make(Snapshot, len(latest))
	for code, e := range latest {
		snap[code] = e.Status
	}
	return snap
}

// GroupHistory projects entries into one group per code. The status of a
// group is the status of its most recently created entry.
func GroupHistory(entries []Entry) []Group {
	byCode := make(map[string][]Entry)
	var order []string
	for _, e := range entries {
		if _, ok := byCode[e.Code]; !ok {
			order = append(order, e.Code)
		}
		byCode[e.Code] = append(byCode[e.Code], e)
	}

	groups := make([]Group, 0, len(order))
	for _, code := range order {
		list := byCode[code]
		// Reverse first: exact ties keep reversed input order through the
		// stable sort, so the last written entry ends up first.
		sorted := make([]Entry, len(list))
		copy(sorted, list)
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.Seq > b.Seq
		})

		newest := sorted[0]
		g := Group{
			Code:    code,
			Status:  newest.Status,
			Count:   len(sorted),
			LastAt:  newest.CreatedAt,
			FirstAt: sorted[len(sorted)-1].CreatedAt,
			Entries: sorted,
		}
		g.Description = describe(sorted)
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if !a.LastAt.Equal(b.LastAt) {
			return a.LastAt.After(b.LastAt)
		}
		return a.Code < b.Code
	})
	return groups
}

// describe picks the first catalog description from the newest entry
// backwards, then the newest reason, then the general consultation text.
func describe(newestFirst []Entry) string {
	for _, e := range newestFirst {
		if e.Description != "" {
			return e.Description
		}
	}
	if r := newestFirst[0].Reason; r != "" {
		return r
	}
	return GeneralConsultationDescription
}

// FilterGroups keeps the groups whose code or description contains term,
// ignoring case and accents. An empty term keeps everything.
func FilterGroups(groups []Group, term string) []Group {
	if textfold.Fold(term) == "" {
		return groups
	}
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if textfold.Contains(g.Code, term) || textfold.Contains(g.Description, term) {
			out = append(out, g)
		}
	}
	return out
}
