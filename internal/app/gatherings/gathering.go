// Package gatherings manages community gathering events, including weekly
// recurring series and their per-occurrence exceptions.
package gatherings

import "time"

// Recurrence frequencies and end conditions.
const (
	FrequencyWeekly = "weekly"

	EndNever = "never"
	EndsOn   = "endsOn"
)

// Edit scopes accepted on recurring series mutations. ScopeFuture is folded
// into ScopeAll: splitting a series mid-stream is not supported, so "this and
// future" edits the whole series.
const (
	ScopeThis   = "this"
	ScopeFuture = "future"
	ScopeAll    = "all"
)

// Recurrence describes a weekly repetition rule.
type Recurrence struct {
	Frequency    string     `json:"frequency"`
	DaysOfWeek   []int      `json:"daysOfWeek"`
	EndCondition string     `json:"endCondition"`
	EndsOn       *time.Time `json:"endsOn,omitempty"`
}

// Gathering is a community event. A row is one of three things: a one-off
// event, a recurring series (Recurrence set), or an exception overriding a
// single occurrence of a series (ParentSeriesID and OriginalDate set). A
// cancelled exception removes its occurrence from the expanded calendar.
type Gathering struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Location       string      `json:"location"`
	Date           time.Time   `json:"date"`
	EndDate        *time.Time  `json:"endDate,omitempty"`
	AllDay         bool        `json:"allDay,omitempty"`
	Recurrence     *Recurrence `json:"recurrence,omitempty"`
	ParentSeriesID string      `json:"parentSeriesId,omitempty"`
	OriginalDate   *time.Time  `json:"originalDate,omitempty"`
	Cancelled      bool        `json:"cancelled,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	CreatedBy      string      `json:"createdBy"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	UpdatedBy      string      `json:"updatedBy,omitempty"`
}

// IsSeries reports whether the gathering is a recurring series head.
func (g Gathering) IsSeries() bool { return g.Recurrence != nil && g.ParentSeriesID == "" }

// IsException reports whether the gathering overrides one series occurrence.
func (g Gathering) IsException() bool { return g.ParentSeriesID != "" }
