// Package care holds pastoral care notes and reminders for members,
// including the note edit history and the reminder expiry policy.
package care

import "time"

// HistoryEntry records one superseded version of a care note. Entries are
// appended on edit and never rewritten.
type HistoryEntry struct {
	Content      string    `json:"content"`
	EditedAt     time.Time `json:"editedAt"`
	EditedBy     string    `json:"editedBy"`
	EditedByName string    `json:"editedByName"`
}

// Note is a dated pastoral care note attached to a member.
type Note struct {
	ID            string         `json:"id"`
	MemberID      string         `json:"memberId"`
	Content       string         `json:"content"`
	History       []HistoryEntry `json:"history,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	CreatedBy     string         `json:"createdBy"`
	CreatedByName string         `json:"createdByName"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	UpdatedBy     string         `json:"updatedBy,omitempty"`
	UpdatedByName string         `json:"updatedByName,omitempty"`
}

// Reminder is a follow-up item for a member, optionally dated. IsExpired is
// denormalized at write time and recomputed against the local day on read.
type Reminder struct {
	ID            string     `json:"id"`
	MemberID      string     `json:"memberId"`
	Text          string     `json:"text"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	IsExpired     bool       `json:"isExpired"`
	CreatedAt     time.Time  `json:"createdAt"`
	CreatedBy     string     `json:"createdBy"`
	CreatedByName string     `json:"createdByName"`
}
