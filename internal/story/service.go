package story

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dreamtales/dreamtales-api/internal/db"
	"github.com/dreamtales/dreamtales-api/internal/entitlement"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

var (
	// ErrInvalidRequest: caller error, rejected before any side effect.
	ErrInvalidRequest = errors.New("invalid story request")

	// ErrProviderUnavailable: the generation provider failed; the quota
	// reservation has been rolled back and the caller may retry later.
	ErrProviderUnavailable = errors.New("story provider unavailable")

	// ErrPersistenceFailed: the generated story could not be saved; the
	// reservation has been rolled back and the text discarded.
	ErrPersistenceFailed = errors.New("story could not be saved")
)

const maxChildNameLength = 100

// Store is the content store: create-only writes plus owner-scoped reads.
type Store interface {
	CreateStory(ctx context.Context, story *models.Story) error
	GetStory(ctx context.Context, id string) (*models.Story, error)
	ListStoriesByUser(ctx context.Context, userID string, limit int) ([]*models.Story, error)
	DeleteStory(ctx context.Context, id, userID string) error
}

// Service coordinates one generation end to end:
// validate -> reserve -> synthesize -> persist, with a single compensating
// transition (release the reservation) if synthesis or persistence fails.
// Once the story row is written the reservation is permanently spent.
type Service struct {
	store  Store
	ledger *entitlement.Ledger
	synth  *Synthesizer
	log    *logrus.Logger
}

func NewService(store Store, ledger *entitlement.Ledger, synth *Synthesizer, log *logrus.Logger) *Service {
	return &Service{store: store, ledger: ledger, synth: synth, log: log}
}

func (s *Service) Generate(ctx context.Context, userID string, req models.GenerateStoryRequest) (*models.Story, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	res, err := s.ledger.CheckAndReserve(ctx, userID)
	if err != nil {
		// Includes ErrQuotaExceeded, which is a policy outcome, not a
		// fault; no side effects have happened either way.
		return nil, err
	}

	text, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		s.release(ctx, res)
		s.log.WithError(err).WithField("user_id", userID).Error("story synthesis failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	story := &models.Story{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChildName: req.ChildName,
		ChildAge:  req.ChildAge,
		Theme:     req.Theme,
		Language:  req.Language,
		Title:     text.Title,
		Content:   text.Content,
		Locale:    req.Language,
	}

	if err := s.store.CreateStory(ctx, story); err != nil {
		s.release(ctx, res)
		s.log.WithError(err).WithField("user_id", userID).Error("story persistence failed")
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"story_id":    story.ID,
		"theme":       story.Theme,
		"language":    story.Language,
		"decode_tier": text.Tier.String(),
	}).Info("story generated")

	return story, nil
}

// release undoes a reservation whose generation never completed. It runs on a
// context detached from cancellation: if the caller gave up while waiting on
// the provider, the refund must still go through or the quota unit is lost.
func (s *Service) release(ctx context.Context, res *entitlement.Reservation) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), res); err != nil {
		s.log.WithError(err).WithField("user_id", res.AccountID).Error("failed to release story reservation")
	}
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]*models.Story, error) {
	return s.store.ListStoriesByUser(ctx, userID, limit)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Story, error) {
	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		// Other users' stories read as missing, not forbidden.
		return nil, db.ErrNotFound
	}
	return story, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteStory(ctx, id, userID)
}

func (s *Service) Usage(ctx context.Context, userID string) (*entitlement.Report, error) {
	return s.ledger.Usage(ctx, userID)
}

func validateRequest(req models.GenerateStoryRequest) error {
	switch {
	case req.ChildName == "" || utf8.RuneCountInString(req.ChildName) > maxChildNameLength:
		return fmt.Errorf("%w: child_name must be 1-%d characters", ErrInvalidRequest, maxChildNameLength)
	case req.ChildAge < models.MinChildAge || req.ChildAge > models.MaxChildAge:
		return fmt.Errorf("%w: child_age must be between %d and %d", ErrInvalidRequest, models.MinChildAge, models.MaxChildAge)
	case !models.ValidTheme(req.Theme):
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidRequest, req.Theme)
	case !models.ValidLanguage(req.Language):
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, req.Language)
	}
	return nil
}
