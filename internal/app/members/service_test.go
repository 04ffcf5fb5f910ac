package members

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parishcare/project/internal/contracts"
	"github.com/parishcare/project/internal/notify"
)

type fakeRepo struct {
	byID map[string]Member
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[string]Member)}
}

func (f *fakeRepo) EnsureSchema(context.Context) error { return nil }

func (f *fakeRepo) List(context.Context) ([]Member, error) {
	var list []Member
	for _, m := range f.byID {
		list = append(list, m)
	}
	return list, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Member, error) {
	m, ok := f.byID[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) Create(_ context.Context, m Member) error {
	f.byID[m.ID] = m
	return nil
}

func (f *fakeRepo) Update(_ context.Context, m Member) error {
	if _, ok := f.byID[m.ID]; !ok {
		return ErrNotFound
	}
	f.byID[m.ID] = m
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type capturedPublish struct {
	subject string
	event   contracts.ChangeEvent
}

type fakePublisher struct {
	published []capturedPublish
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	var event contracts.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	f.published = append(f.published, capturedPublish{subject: subject, event: event})
	return nil
}

func newTestService(repo Repository, pub *fakePublisher) *Service {
	svc := NewService(repo, pub, notify.NewCenter())
	svc.Now = func() time.Time {
		return time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	}
	seq := 0
	svc.NewID = func() string {
		seq++
		return "id-" + string(rune('a'+seq))
	}
	return svc
}

func TestCreateStampsAndPublishes(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)
	actor := Actor{UserID: "user-1", Name: "Pastor Kim"}

	member, err := svc.Create(context.Background(), actor, Input{Name: "smith, john "})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if member.Name != "SMITH, JOHN" {
		t.Errorf("name = %q, want canonical uppercase form", member.Name)
	}
	if member.CreatedBy != "user-1" || member.UpdatedBy != "user-1" {
		t.Errorf("audit stamps = %q/%q, want user-1", member.CreatedBy, member.UpdatedBy)
	}
	if !member.CreatedAt.Equal(svc.Now()) {
		t.Errorf("createdAt = %v, want server clock", member.CreatedAt)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.published))
	}
	got := pub.published[0]
	if got.event.Collection != contracts.CollectionMembers || got.event.Action != contracts.ActionCreated {
		t.Errorf("event = %+v, want members/created", got.event)
	}
	if got.event.DocID != member.ID {
		t.Errorf("event doc id = %q, want %q", got.event.DocID, member.ID)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePublisher{})

	_, err := svc.Create(context.Background(), Actor{UserID: "u"}, Input{Name: "   "})
	if !errors.Is(err, ErrNameRequired) {
		t.Fatalf("err = %v, want ErrNameRequired", err)
	}
}

func TestUpdatePreservesCreatedStamps(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub)
	creator := Actor{UserID: "user-1", Name: "Pastor Kim"}
	editor := Actor{UserID: "user-2", Name: "Deacon Lee"}

	member, err := svc.Create(context.Background(), creator, Input{Name: "SMITH, JOHN"})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	svc.Now = func() time.Time {
		return time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC)
	}
	updated, err := svc.Update(context.Background(), editor, member.ID, Input{
		Name:   "SMITH, JOHN",
		Suburb: "Ryde",
	})
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if updated.CreatedBy != "user-1" || !updated.CreatedAt.Equal(member.CreatedAt) {
		t.Error("update must not change creation stamps")
	}
	if updated.UpdatedBy != "user-2" {
		t.Errorf("updatedBy = %q, want user-2", updated.UpdatedBy)
	}
	if updated.Suburb != "Ryde" {
		t.Errorf("suburb = %q, want Ryde", updated.Suburb)
	}
}

func TestDeleteUnknownMember(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakePublisher{})

	err := svc.Delete(context.Background(), Actor{UserID: "u"}, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
