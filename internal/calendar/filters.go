package calendar

import "time"

// Filters is the viewer's calendar scope: which kinds are visible, an
// optional member restriction, a free-text search, and a date window.
type Filters struct {
	Visibility map[Kind]bool `json:"visibility"`
	MemberID   string        `json:"memberId,omitempty"`
	Search     string        `json:"search,omitempty"`

	// ShowCompleted includes already-expired care reminders.
	ShowCompleted bool       `json:"showCompleted,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

// DefaultFilters shows every kind except care updates, which are opt-in.
func DefaultFilters() Filters {
	visibility := make(map[Kind]bool, len(Kinds))
	for _, kind := range Kinds {
		visibility[kind] = kind != KindCareUpdate
	}
	return Filters{Visibility: visibility}
}

// Patch is a partial filter update. Nil fields keep the current value; a
// non-nil Visibility replaces the whole map.
type Patch struct {
	Visibility    map[Kind]bool `json:"visibility,omitempty"`
	MemberID      *string       `json:"memberId,omitempty"`
	Search        *string       `json:"search,omitempty"`
	ShowCompleted *bool         `json:"showCompleted,omitempty"`
	From          *time.Time    `json:"from,omitempty"`
	To            *time.Time    `json:"to,omitempty"`
	ClearRange    bool          `json:"clearRange,omitempty"`
}

// Apply merges a patch into the filters and returns the result. An empty
// patch returns the filters unchanged.
func (f Filters) Apply(p Patch) Filters {
	out := f
	if p.Visibility != nil {
		visibility := make(map[Kind]bool, len(p.Visibility))
		for kind, visible := range p.Visibility {
			visibility[kind] = visible
		}
		out.Visibility = visibility
	}
	if p.MemberID != nil {
		out.MemberID = *p.MemberID
	}
	if p.Search != nil {
		out.Search = *p.Search
	}
	if p.ShowCompleted != nil {
		out.ShowCompleted = *p.ShowCompleted
	}
	if p.ClearRange {
		out.From, out.To = nil, nil
	}
	if p.From != nil {
		out.From = p.From
	}
	if p.To != nil {
		out.To = p.To
	}
	return out
}
