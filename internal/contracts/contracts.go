package contracts

import "time"

// Collections mirrored in the document store. Change subjects and live-feed
// scopes are keyed by these names.
const (
	CollectionMembers        = "members"
	CollectionCareNotes      = "careNotes"
	CollectionCareReminders  = "careReminders"
	CollectionCalendarEvents = "calendarEvents"
)

// Change actions carried on the feed.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ChangeEvent is published by care-api after every successful write and
// consumed by calendar-streamer to refresh live subscriptions. It is a
// notification, not the document: consumers reload query results from the
// store on receipt.
type ChangeEvent struct {
	EventID     string    `json:"event_id"`
	Collection  string    `json:"collection"`
	DocID       string    `json:"doc_id"`
	MemberID    string    `json:"member_id,omitempty"`
	Action      string    `json:"action"`
	ActorUserID string    `json:"actor_user_id"`
	ActorName   string    `json:"actor_name"`
	OccurredAt  time.Time `json:"occurred_at"`
	ShardID     int       `json:"shard_id"`
}
