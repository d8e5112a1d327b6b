package diagnosis

// Labels shown to the clinician before a consultation is saved.
const (
	LabelNewActive           = "new diagnosis, active"
	LabelPendingConfirmation = "pending confirmation"
	LabelStaysActive         = "stays active"
	LabelWillResolve         = "will be marked resolved"
	LabelWillReactivate      = "will be reactivated"
	LabelStaysInactive       = "stays inactive"
)

// One-letter badges rendered next to each selected code.
const (
	BadgeActive    = "A"
	BadgePending   = "P"
	BadgeResolving = "R"
	BadgeInactive  = "I"
)

// Outcome is the consequence of saving a code with a given toggle.
type Outcome struct {
	Existing   Status `json:"existing_status"`
	KeepActive bool   `json:"keep_active"`
	Status     Status `json:"status"`
	Label      string `json:"label"`
	Badge      string `json:"badge"`
}

var labelStatus = map[string]Status{
	LabelNewActive:           StatusConfirmed,
	LabelPendingConfirmation: StatusPending,
	LabelStaysActive:         StatusConfirmed,
	LabelWillResolve:         StatusUnconfirmed,
	LabelWillReactivate:      StatusConfirmed,
	LabelStaysInactive:       StatusUnconfirmed,
}

// DefaultKeepActive is the toggle value a code starts with when added to a
// consultation. Only an already active diagnosis starts switched on, so that
// continuing an active problem and opening a new confirmed one both need no
// interaction.
func DefaultKeepActive(existing Status) bool {
	return existing.IsActive()
}

// Resolve maps a code's existing status and the clinician's toggle to the
// status persisted on the new consultation entry.
//
// For a code without a record the toggle means "leave it pending"; for a
// code with a record it means "keep or make it active".
func Resolve(existing Status, keepActive bool) Outcome {
	if !existing.Recorded() {
		existing = StatusInactive
	}
	out := Outcome{Existing: existing, KeepActive: keepActive}

	switch {
	case existing.IsActive() && keepActive:
		out.Status, out.Label, out.Badge = StatusConfirmed, LabelStaysActive, BadgeActive
	case existing.IsActive():
		out.Status, out.Label, out.Badge = StatusUnconfirmed, LabelWillResolve, BadgeResolving
	case existing == StatusUnconfirmed && keepActive:
		out.Status, out.Label, out.Badge = StatusConfirmed, LabelWillReactivate, BadgeActive
	case existing == StatusUnconfirmed:
		out.Status, out.Label, out.Badge = StatusUnconfirmed, LabelStaysInactive, BadgeInactive
	case keepActive:
		out.Status, out.Label, out.Badge = StatusPending, LabelPendingConfirmation, BadgePending
	default:
		out.Status, out.Label, out.Badge = StatusConfirmed, LabelNewActive, BadgeActive
	}
	return out
}

// StatusForLabel decodes a label produced by Resolve back to its status.
func StatusForLabel(label string) (Status, bool) {
	s, ok := labelStatus[label]
	return s, ok
}
