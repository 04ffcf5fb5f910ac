package members

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

// ErrNameRequired is returned when a member is saved without a name.
var ErrNameRequired = errors.New("member name is required")

// Actor identifies the signed-in user performing a mutation.
type Actor struct {
	UserID string
	Name   string
}

// Input carries the client-supplied member fields. Audit stamps are never
// taken from the client.
type Input struct {
	Name        string     `json:"name"`
	Birthday    *time.Time `json:"birthday"`
	Anniversary *time.Time `json:"anniversary"`
	Contact     string     `json:"contact"`
	Email       string     `json:"email"`
	Suburb      string     `json:"suburb"`
	MemberSince string     `json:"memberSince"`
}

// Service implements member CRUD with server-side stamping and change
// notifications on the members subject.
type Service struct {
	Repo   Repository
	Events natsutil.Publisher
	Notify *notify.Center
	Now    func() time.Time
	NewID  func() string
}

func NewService(repo Repository, events natsutil.Publisher, center *notify.Center) *Service {
	return &Service{
		Repo:   repo,
		Events: events,
		Notify: center,
		Now:    time.Now,
		NewID:  nuid.Next,
	}
}

func (s *Service) List(ctx context.Context) ([]Member, error) {
	list, err := s.Repo.List(ctx)
	if err != nil {
		log.Printf("members: list failed: %v", err)
		s.Notify.Error("Unable to load members")
		return nil, err
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor Actor, input Input) (Member, error) {
	if strings.TrimSpace(input.Name) == "" {
		s.Notify.Error("Please provide a member name")
		return Member{}, ErrNameRequired
	}

	now := s.Now().UTC()
	member := Member{
		ID:          s.NewID(),
		Name:        strings.ToUpper(strings.TrimSpace(input.Name)),
		Birthday:    input.Birthday,
		Anniversary: input.Anniversary,
		Contact:     input.Contact,
		Email:       input.Email,
		Suburb:      input.Suburb,
		MemberSince: input.MemberSince,
		CreatedAt:   now,
		CreatedBy:   actor.UserID,
		UpdatedAt:   now,
		UpdatedBy:   actor.UserID,
	}
	if err := s.Repo.Create(ctx, member); err != nil {
		log.Printf("members: create failed: %v", err)
		s.Notify.Error("Unable to save member")
		return Member{}, err
	}

	s.publishChange(member.ID, contracts.ActionCreated, actor)
	s.Notify.Success("Member added")
	return member, nil
}

func (s *Service) Update(ctx context.Context, actor Actor, id string, input Input) (Member, error) {
	if strings.TrimSpace(input.Name) == "" {
		s.Notify.Error("Please provide a member name")
		return Member{}, ErrNameRequired
	}

	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Member{}, err
	}

	current.Name = strings.ToUpper(strings.TrimSpace(input.Name))
	current.Birthday = input.Birthday
	current.Anniversary = input.Anniversary
	current.Contact = input.Contact
	current.Email = input.Email
	current.Suburb = input.Suburb
	current.MemberSince = input.MemberSince
	current.UpdatedAt = s.Now().UTC()
	current.UpdatedBy = actor.UserID

	if err := s.Repo.Update(ctx, current); err != nil {
		log.Printf("members: update %s failed: %v", id, err)
		s.Notify.Error("Unable to save member")
		return Member{}, err
	}

	s.publishChange(id, contracts.ActionUpdated, actor)
	s.Notify.Success("Member updated")
	return current, nil
}

func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("members: delete %s failed: %v", id, err)
			s.Notify.Error("Unable to delete member")
		}
		return err
	}
	s.publishChange(id, contracts.ActionDeleted, actor)
	s.Notify.Success("Member deleted")
	return nil
}

func (s *Service) publishChange(memberID, action string, actor Actor) {
	event := contracts.ChangeEvent{
		EventID:     s.NewID(),
		Collection:  contracts.CollectionMembers,
		DocID:       memberID,
		MemberID:    memberID,
		Action:      action,
		ActorUserID: actor.UserID,
		ActorName:   actor.Name,
		OccurredAt:  s.Now().UTC(),
		ShardID:     sharding.GetShardID(contracts.CollectionMembers),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("members: marshal change event: %v", err)
		return
	}
	subject := sharding.ChangeSubject(contracts.CollectionMembers, contracts.CollectionMembers)
	if err := s.Events.Publish(subject, payload); err != nil {
		log.Printf("members: publish change event: %v", err)
	}
}
