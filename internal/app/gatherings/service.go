package gatherings

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

var (
	ErrTitleRequired      = errors.New("gathering title is required")
	ErrInvalidRecurrence  = errors.New("invalid recurrence rule")
	ErrOccurrenceRequired = errors.New("occurrence date is required for single-occurrence edits")
)

// Actor identifies the signed-in user performing a mutation.
type Actor struct {
	UserID string
	Name   string
}

// Input carries the client-supplied gathering fields.
type Input struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	Date        time.Time   `json:"date"`
	EndDate     *time.Time  `json:"endDate"`
	AllDay      bool        `json:"allDay"`
	Recurrence  *Recurrence `json:"recurrence"`
}

// Service implements gathering CRUD. Edits to a recurring series honour a
// scope: "all" (and "future") rewrite the series head, "this" materializes an
// exception row for the one occurrence.
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

func validateRecurrence(rec *Recurrence) error {
	if rec == nil {
		return nil
	}
	if rec.Frequency != FrequencyWeekly {
		return ErrInvalidRecurrence
	}
	if len(rec.DaysOfWeek) == 0 {
		return ErrInvalidRecurrence
	}
	for _, day := range rec.DaysOfWeek {
		if day < 0 || day > 6 {
			return ErrInvalidRecurrence
		}
	}
	switch rec.EndCondition {
	case EndNever:
		return nil
	case EndsOn:
		if rec.EndsOn == nil {
			return ErrInvalidRecurrence
		}
		return nil
	default:
		return ErrInvalidRecurrence
	}
}

func (s *Service) validate(input Input) error {
	if strings.TrimSpace(input.Title) == "" {
		s.Notify.Error("Please provide a gathering title")
		return ErrTitleRequired
	}
	if err := validateRecurrence(input.Recurrence); err != nil {
		s.Notify.Error("The repeat settings are incomplete")
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Gathering, error) {
	list, err := s.Repo.List(ctx)
	if err != nil {
		log.Printf("gatherings: list failed: %v", err)
		s.Notify.Error("Unable to load gatherings")
		return nil, err
	}
	return list, nil
}

func (s *Service) Create(ctx context.Context, actor Actor, input Input) (Gathering, error) {
	if err := s.validate(input); err != nil {
		return Gathering{}, err
	}

	now := s.Now().UTC()
	g := Gathering{
		ID:          s.NewID(),
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Date:        input.Date,
		EndDate:     input.EndDate,
		AllDay:      input.AllDay,
		Recurrence:  input.Recurrence,
		CreatedAt:   now,
		CreatedBy:   actor.UserID,
		UpdatedAt:   now,
		UpdatedBy:   actor.UserID,
	}
	if err := s.Repo.Create(ctx, g); err != nil {
		log.Printf("gatherings: create failed: %v", err)
		s.Notify.Error("Unable to save gathering")
		return Gathering{}, err
	}

	s.publishChange(g.ID, contracts.ActionCreated, actor)
	s.Notify.Success("Gathering added")
	return g, nil
}

// Update applies an edit under the given scope. For non-recurring rows and
// exception rows the scope is ignored.
func (s *Service) Update(ctx context.Context, actor Actor, id string, input Input, scope string, occurrence *time.Time) (Gathering, error) {
	if err := s.validate(input); err != nil {
		return Gathering{}, err
	}

	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Gathering{}, err
	}

	if current.IsSeries() && scope == ScopeThis {
		g, err := s.upsertException(ctx, actor, current, input, occurrence, false)
		if err != nil {
			return Gathering{}, err
		}
		s.Notify.Success("Gathering updated")
		return g, nil
	}

	current.Title = input.Title
	current.Description = input.Description
	current.Location = input.Location
	current.Date = input.Date
	current.EndDate = input.EndDate
	current.AllDay = input.AllDay
	if !current.IsException() {
		current.Recurrence = input.Recurrence
	}
	current.UpdatedAt = s.Now().UTC()
	current.UpdatedBy = actor.UserID

	if err := s.Repo.Update(ctx, current); err != nil {
		log.Printf("gatherings: update %s failed: %v", id, err)
		s.Notify.Error("Unable to save gathering")
		return Gathering{}, err
	}

	s.publishChange(id, contracts.ActionUpdated, actor)
	s.Notify.Success("Gathering updated")
	return current, nil
}

// Delete removes a gathering. Deleting a series with scope "this" cancels
// the one occurrence; any other scope takes the whole series and its
// exceptions with it.
func (s *Service) Delete(ctx context.Context, actor Actor, id, scope string, occurrence *time.Time) error {
	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if current.IsSeries() && scope == ScopeThis {
		input := Input{
			Title:       current.Title,
			Description: current.Description,
			Location:    current.Location,
			EndDate:     current.EndDate,
			AllDay:      current.AllDay,
		}
		if occurrence != nil {
			input.Date = *occurrence
		}
		if _, err := s.upsertException(ctx, actor, current, input, occurrence, true); err != nil {
			return err
		}
		s.Notify.Success("Gathering removed for that date")
		return nil
	}

	if current.IsSeries() {
		err = s.Repo.DeleteSeries(ctx, id)
	} else {
		err = s.Repo.Delete(ctx, id)
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("gatherings: delete %s failed: %v", id, err)
			s.Notify.Error("Unable to delete gathering")
		}
		return err
	}

	s.publishChange(id, contracts.ActionDeleted, actor)
	s.Notify.Success("Gathering deleted")
	return nil
}

func (s *Service) upsertException(ctx context.Context, actor Actor, series Gathering, input Input, occurrence *time.Time, cancelled bool) (Gathering, error) {
	if occurrence == nil {
		s.Notify.Error("Pick which date to change")
		return Gathering{}, ErrOccurrenceRequired
	}

	now := s.Now().UTC()
	existing, err := s.Repo.FindException(ctx, series.ID, *occurrence)
	switch {
	case err == nil:
		existing.Title = input.Title
		existing.Description = input.Description
		existing.Location = input.Location
		existing.Date = input.Date
		existing.EndDate = input.EndDate
		existing.AllDay = input.AllDay
		existing.Cancelled = cancelled
		existing.UpdatedAt = now
		existing.UpdatedBy = actor.UserID
		if err := s.Repo.Update(ctx, existing); err != nil {
			log.Printf("gatherings: update exception for %s failed: %v", series.ID, err)
			s.Notify.Error("Unable to save gathering")
			return Gathering{}, err
		}
		s.publishChange(existing.ID, contracts.ActionUpdated, actor)
		return existing, nil

	case errors.Is(err, ErrNotFound):
		exception := Gathering{
			ID:             s.NewID(),
			Title:          input.Title,
			Description:    input.Description,
			Location:       input.Location,
			Date:           input.Date,
			EndDate:        input.EndDate,
			AllDay:         input.AllDay,
			ParentSeriesID: series.ID,
			OriginalDate:   occurrence,
			Cancelled:      cancelled,
			CreatedAt:      now,
			CreatedBy:      actor.UserID,
			UpdatedAt:      now,
			UpdatedBy:      actor.UserID,
		}
		if err := s.Repo.Create(ctx, exception); err != nil {
			log.Printf("gatherings: create exception for %s failed: %v", series.ID, err)
			s.Notify.Error("Unable to save gathering")
			return Gathering{}, err
		}
		s.publishChange(exception.ID, contracts.ActionCreated, actor)
		return exception, nil

	default:
		log.Printf("gatherings: find exception for %s failed: %v", series.ID, err)
		s.Notify.Error("Unable to save gathering")
		return Gathering{}, err
	}
}

func (s *Service) publishChange(docID, action string, actor Actor) {
	event := contracts.ChangeEvent{
		EventID:     s.NewID(),
		Collection:  contracts.CollectionCalendarEvents,
		DocID:       docID,
		Action:      action,
		ActorUserID: actor.UserID,
		ActorName:   actor.Name,
		OccurredAt:  s.Now().UTC(),
		ShardID:     sharding.GetShardID(contracts.CollectionCalendarEvents),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("gatherings: marshal change event: %v", err)
		return
	}
	subject := sharding.ChangeSubject(contracts.CollectionCalendarEvents, contracts.CollectionCalendarEvents)
	if err := s.Events.Publish(subject, payload); err != nil {
		log.Printf("gatherings: publish change event: %v", err)
	}
}
