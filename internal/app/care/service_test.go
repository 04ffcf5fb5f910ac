package care

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/parishcare/project/internal/contracts"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/sharding"
)

type fakeRepo struct {
	notes     map[string]Note
	reminders map[string]Reminder

	sweepCount  int64
	sweepCutoff time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{notes: make(map[string]Note), reminders: make(map[string]Reminder)}
}

func (f *fakeRepo) EnsureSchema(context.Context) error { return nil }

func (f *fakeRepo) ListNotes(_ context.Context, memberID string) ([]Note, error) {
	var notes []Note
	for _, n := range f.notes {
		if n.MemberID == memberID {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

func (f *fakeRepo) GetNote(_ context.Context, id string) (Note, error) {
	n, ok := f.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (f *fakeRepo) CreateNote(_ context.Context, note Note) error {
	f.notes[note.ID] = note
	return nil
}

func (f *fakeRepo) UpdateNote(_ context.Context, id, content string, editedAt time.Time, editedBy, editedByName string) (Note, error) {
	n, ok := f.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	n.History = append(n.History, HistoryEntry{
		Content:      n.Content,
		EditedAt:     editedAt,
		EditedBy:     editedBy,
		EditedByName: editedByName,
	})
	n.Content = content
	n.UpdatedAt = editedAt
	n.UpdatedBy = editedBy
	n.UpdatedByName = editedByName
	f.notes[id] = n
	return n, nil
}

func (f *fakeRepo) DeleteNote(_ context.Context, id string) error {
	if _, ok := f.notes[id]; !ok {
		return ErrNotFound
	}
	delete(f.notes, id)
	return nil
}

func (f *fakeRepo) ListReminders(_ context.Context, memberID string) ([]Reminder, error) {
	var reminders []Reminder
	for _, r := range f.reminders {
		if r.MemberID == memberID {
			reminders = append(reminders, r)
		}
	}
	return reminders, nil
}

func (f *fakeRepo) ListAllReminders(context.Context) ([]Reminder, error) {
	var reminders []Reminder
	for _, r := range f.reminders {
		reminders = append(reminders, r)
	}
	return reminders, nil
}

func (f *fakeRepo) CreateReminder(_ context.Context, r Reminder) error {
	f.reminders[r.ID] = r
	return nil
}

func (f *fakeRepo) DeleteReminder(_ context.Context, id string) (Reminder, error) {
	r, ok := f.reminders[id]
	if !ok {
		return Reminder{}, ErrNotFound
	}
	delete(f.reminders, id)
	return r, nil
}

func (f *fakeRepo) RefreshExpiry(_ context.Context, before time.Time) (int64, error) {
	f.sweepCutoff = before
	return f.sweepCount, nil
}

type recordedPublish struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	published []recordedPublish
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.published = append(f.published, recordedPublish{subject: subject, data: data})
	return nil
}

func newTestService(repo Repository, pub *fakePublisher) *Service {
	svc := NewService(repo, pub, notify.NewCenter(), sydney)
	svc.Now = func() time.Time {
		return time.Date(2024, time.May, 10, 10, 0, 0, 0, time.UTC)
	}
	seq := 0
	svc.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

func TestNoteEditAppendsHistory(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)
	author := Actor{UserID: "user-1", Name: "Pastor Kim"}
	editor := Actor{UserID: "user-2", Name: "Deacon Lee"}

	note, err := svc.CreateNote(context.Background(), author, "member-1", "Visited after surgery")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if len(note.History) != 0 {
		t.Fatalf("new note carries %d history entries, want 0", len(note.History))
	}

	updated, err := svc.UpdateNote(context.Background(), editor, note.ID, "Visited after surgery, recovering well")
	if err != nil {
		t.Fatalf("update note: %v", err)
	}
	if len(updated.History) != 1 {
		t.Fatalf("edited note carries %d history entries, want 1", len(updated.History))
	}
	entry := updated.History[0]
	if entry.Content != "Visited after surgery" {
		t.Errorf("history content = %q, want the superseded text", entry.Content)
	}
	if entry.EditedBy != "user-2" || entry.EditedByName != "Deacon Lee" {
		t.Errorf("history editor = %q/%q, want the editing user", entry.EditedBy, entry.EditedByName)
	}
	if updated.CreatedBy != "user-1" {
		t.Error("edit must not change the creator stamp")
	}
}

func TestCreateNoteRequiresContent(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePublisher{})

	_, err := svc.CreateNote(context.Background(), Actor{UserID: "u"}, "member-1", "  \n ")
	if !errors.Is(err, ErrContentRequired) {
		t.Fatalf("err = %v, want ErrContentRequired", err)
	}
}

func TestNoteChangesPublishPerMember(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)
	actor := Actor{UserID: "user-1", Name: "Pastor Kim"}

	if _, err := svc.CreateNote(context.Background(), actor, "member-1", "note"); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := svc.CreateReminder(context.Background(), actor, "member-2", "call back", nil); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.published))
	}
	first, second := pub.published[0].subject, pub.published[1].subject
	if first == second {
		t.Errorf("changes for different members share subject %q", first)
	}
}

func TestRemindersForMemberRecomputesExpiry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakePublisher{})

	// Stale row: flagged live in storage but due last week.
	stale := time.Date(2024, time.May, 3, 0, 0, 0, 0, sydney)
	repo.reminders["r1"] = Reminder{ID: "r1", MemberID: "m", Text: "old", DueDate: &stale, IsExpired: false}
	repo.reminders["r2"] = Reminder{ID: "r2", MemberID: "m", Text: "open"}

	got, err := svc.RemindersForMember(context.Background(), "m", false)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("got %v, want only the undated reminder", got)
	}
}

func TestSweepExpiredPublishesCollectionWide(t *testing.T) {
	repo := newFakeRepo()
	repo.sweepCount = 3
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)

	swept, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 3 {
		t.Fatalf("swept = %d, want 3", swept)
	}
	// Now is 2024-05-10T10:00Z, which is the evening of May 10 in Sydney.
	want := time.Date(2024, time.May, 10, 0, 0, 0, 0, sydney)
	if !repo.sweepCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want local midnight %v", repo.sweepCutoff, want)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.published))
	}
	wantSubject := sharding.ChangeSubject(contracts.CollectionCareReminders, contracts.CollectionCareReminders)
	if pub.published[0].subject != wantSubject {
		t.Errorf("subject = %q, want %q", pub.published[0].subject, wantSubject)
	}
}

func TestSweepExpiredQuietWhenNothingChanged(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)

	swept, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 || len(pub.published) != 0 {
		t.Fatalf("swept=%d published=%d, want no work and no events", swept, len(pub.published))
	}
}
