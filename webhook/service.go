package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Service represents the deduplication layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the event operations used by the gateway and the dispatch engine
type UseCase interface {
	RegisterIfNew(ctx context.Context, provider, eventID, eventType string, payload []byte) (Registration, error)
	Get(ctx context.Context, provider, eventID string) (Event, error)
	UpdateStatus(ctx context.Context, provider, eventID string, status Status) error
	RecordAttempt(ctx context.Context, provider, eventID string, attempt Attempt) error
}

// Registration is the result of RegisterIfNew
type Registration struct {
	IsNew bool
	// Deduplicable is false when the event had no id and a local one was generated;
	// such events are always new.
	Deduplicable bool
	Event        Event
}

type Service struct {
	Repo Repository
	Now  func() time.Time
}

// NewService creates a new event service with dependency injection
func NewService(repo Repository) *Service {
	return &Service{
		Repo: repo,
		Now:  time.Now,
	}
}

// RegisterIfNew creates the event record for (provider, eventID) unless one exists.
// Exactly one concurrent caller per key observes IsNew.
func (s *Service) RegisterIfNew(ctx context.Context, provider, eventID, eventType string, payload []byte) (Registration, error) {
	deduplicable := eventID != ""
	if !deduplicable {
		eventID = "gen_" + uuid.NewString()
	}

	now := s.now()
	event := Event{
		Provider:     provider,
		EventID:      eventID,
		EventType:    eventType,
		Status:       Received,
		Payload:      payload,
		Deduplicable: deduplicable,
		ReceivedAt:   now,
		UpdatedAt:    now,
	}

	err := s.Repo.Insert(ctx, event)
	if err == nil {
		return Registration{IsNew: true, Deduplicable: deduplicable, Event: event}, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return Registration{}, fmt.Errorf("inserting event: %w", err)
	}

	existing, err := s.Repo.Get(ctx, provider, eventID)
	if err != nil {
		return Registration{}, fmt.Errorf("loading duplicate event: %w", err)
	}

	return Registration{IsNew: false, Deduplicable: true, Event: existing}, nil
}

// Get retrieves an event by its composite key
func (s *Service) Get(ctx context.Context, provider, eventID string) (Event, error) {
	event, err := s.Repo.Get(ctx, provider, eventID)
	if err != nil {
		return Event{}, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

// UpdateStatus updates the aggregate status of an event
func (s *Service) UpdateStatus(ctx context.Context, provider, eventID string, status Status) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("validating status: %w", err)
	}

	if err := s.Repo.UpdateStatus(ctx, provider, eventID, status); err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}
	return nil
}

// RecordAttempt appends a handler attempt to the event history
func (s *Service) RecordAttempt(ctx context.Context, provider, eventID string, attempt Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	if err := s.Repo.AppendAttempt(ctx, provider, eventID, attempt); err != nil {
		return fmt.Errorf("appending attempt: %w", err)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
