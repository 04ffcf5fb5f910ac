package care

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nuid"

	"github.com/parishcare/project/internal/contracts"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/platform/natsutil"
	"github.com/parishcare/project/internal/sharding"
)

// ErrContentRequired is returned when a note or reminder is saved with no
// text.
var ErrContentRequired = errors.New("content is required")

// Actor identifies the signed-in user performing a mutation.
type Actor struct {
	UserID string
	Name   string
}

// Service implements note and reminder operations with server-side stamps,
// edit history, and per-member change notifications.
type Service struct {
	Repo     Repository
	Events   natsutil.Publisher
	Notify   *notify.Center
	Location *time.Location
	Now      func() time.Time
	NewID    func() string
}

func NewService(repo Repository, events natsutil.Publisher, center *notify.Center, loc *time.Location) *Service {
	return &Service{
		Repo:     repo,
		Events:   events,
		Notify:   center,
		Location: loc,
		Now:      time.Now,
		NewID:    nuid.Next,
	}
}

func (s *Service) NotesForMember(ctx context.Context, memberID string) ([]Note, error) {
	notes, err := s.Repo.ListNotes(ctx, memberID)
	if err != nil {
		log.Printf("care: list notes for %s failed: %v", memberID, err)
		s.Notify.Error("Unable to load care notes")
		return nil, err
	}
	return notes, nil
}

func (s *Service) CreateNote(ctx context.Context, actor Actor, memberID, content string) (Note, error) {
	if strings.TrimSpace(content) == "" {
		s.Notify.Error("Please write the note before saving")
		return Note{}, ErrContentRequired
	}

	now := s.Now().UTC()
	note := Note{
		ID:            s.NewID(),
		MemberID:      memberID,
		Content:       content,
		CreatedAt:     now,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
		UpdatedAt:     now,
		UpdatedBy:     actor.UserID,
		UpdatedByName: actor.Name,
	}
	if err := s.Repo.CreateNote(ctx, note); err != nil {
		log.Printf("care: create note failed: %v", err)
		s.Notify.Error("Unable to save care note")
		return Note{}, err
	}

	s.publishChange(contracts.CollectionCareNotes, note.ID, memberID, contracts.ActionCreated, actor)
	s.Notify.Success("Care note added")
	return note, nil
}

func (s *Service) UpdateNote(ctx context.Context, actor Actor, noteID, content string) (Note, error) {
	if strings.TrimSpace(content) == "" {
		s.Notify.Error("Please write the note before saving")
		return Note{}, ErrContentRequired
	}

	note, err := s.Repo.UpdateNote(ctx, noteID, content, s.Now().UTC(), actor.UserID, actor.Name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("care: update note %s failed: %v", noteID, err)
			s.Notify.Error("Unable to save care note")
		}
		return Note{}, err
	}

	s.publishChange(contracts.CollectionCareNotes, noteID, note.MemberID, contracts.ActionUpdated, actor)
	s.Notify.Success("Care note updated")
	return note, nil
}

func (s *Service) DeleteNote(ctx context.Context, actor Actor, noteID string) error {
	note, err := s.Repo.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteNote(ctx, noteID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("care: delete note %s failed: %v", noteID, err)
			s.Notify.Error("Unable to delete care note")
		}
		return err
	}
	s.publishChange(contracts.CollectionCareNotes, noteID, note.MemberID, contracts.ActionDeleted, actor)
	s.Notify.Success("Care note deleted")
	return nil
}

// RemindersForMember returns the member card view of reminders. The expiry
// flag is recomputed against the local day on the way out so stale
// denormalized rows never resurrect a past reminder.
func (s *Service) RemindersForMember(ctx context.Context, memberID string, includeExpired bool) ([]Reminder, error) {
	reminders, err := s.Repo.ListReminders(ctx, memberID)
	if err != nil {
		log.Printf("care: list reminders for %s failed: %v", memberID, err)
		s.Notify.Error("Unable to load reminders")
		return nil, err
	}
	now := s.Now()
	for i := range reminders {
		reminders[i].IsExpired = IsExpired(reminders[i].DueDate, now, s.Location)
	}
	return CompactForMember(reminders, now, s.Location, includeExpired), nil
}

func (s *Service) CreateReminder(ctx context.Context, actor Actor, memberID, text string, dueDate *time.Time) (Reminder, error) {
	if strings.TrimSpace(text) == "" {
		s.Notify.Error("Please describe the reminder before saving")
		return Reminder{}, ErrContentRequired
	}

	reminder := Reminder{
		ID:            s.NewID(),
		MemberID:      memberID,
		Text:          text,
		DueDate:       dueDate,
		IsExpired:     false,
		CreatedAt:     s.Now().UTC(),
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
	}
	if err := s.Repo.CreateReminder(ctx, reminder); err != nil {
		log.Printf("care: create reminder failed: %v", err)
		s.Notify.Error("Unable to save reminder")
		return Reminder{}, err
	}

	s.publishChange(contracts.CollectionCareReminders, reminder.ID, memberID, contracts.ActionCreated, actor)
	s.Notify.Success("Reminder added")
	return reminder, nil
}

func (s *Service) DeleteReminder(ctx context.Context, actor Actor, id string) error {
	reminder, err := s.Repo.DeleteReminder(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("care: delete reminder %s failed: %v", id, err)
			s.Notify.Error("Unable to delete reminder")
		}
		return err
	}
	s.publishChange(contracts.CollectionCareReminders, id, reminder.MemberID, contracts.ActionDeleted, actor)
	s.Notify.Success("Reminder deleted")
	return nil
}

// CalendarReminders returns the dated reminders across all members for
// calendar aggregation, expired ones included only on request.
func (s *Service) CalendarReminders(ctx context.Context, includeExpired bool) ([]Reminder, error) {
	reminders, err := s.Repo.ListAllReminders(ctx)
	if err != nil {
		return nil, err
	}
	if !includeExpired {
		return ForCalendar(reminders, s.Now(), s.Location), nil
	}

	now := s.Now()
	var out []Reminder
	for _, r := range reminders {
		if r.DueDate == nil {
			continue
		}
		r.IsExpired = IsExpired(r.DueDate, now, s.Location)
		out = append(out, r)
	}
	return out, nil
}

// SweepExpired brings the denormalized expiry flag up to date. Run daily
// just after local midnight.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	today := s.Now().In(s.Location)
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.Location)
	swept, err := s.Repo.RefreshExpiry(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		// Collection-wide change so every open stream refreshes its snapshot.
		s.publishChange(contracts.CollectionCareReminders, "", contracts.CollectionCareReminders,
			contracts.ActionUpdated, Actor{UserID: "system", Name: "Expiry Sweep"})
	}
	return swept, nil
}

func (s *Service) publishChange(collection, docID, memberID, action string, actor Actor) {
	event := contracts.ChangeEvent{
		EventID:     s.NewID(),
		Collection:  collection,
		DocID:       docID,
		MemberID:    memberID,
		Action:      action,
		ActorUserID: actor.UserID,
		ActorName:   actor.Name,
		OccurredAt:  s.Now().UTC(),
		ShardID:     sharding.GetShardID(memberID),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("care: marshal change event: %v", err)
		return
	}
	if err := s.Events.Publish(sharding.ChangeSubject(collection, memberID), payload); err != nil {
		log.Printf("care: publish change event: %v", err)
	}
}
