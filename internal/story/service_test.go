package story

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamtales/dreamtales-api/internal/db"
	"github.com/dreamtales/dreamtales-api/internal/entitlement"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

// fakeStore is a func-field content store double.
type fakeStore struct {
	createFunc func(ctx context.Context, story *models.Story) error
	getFunc    func(ctx context.Context, id string) (*models.Story, error)
	created    []*models.Story
}

func (s *fakeStore) CreateStory(ctx context.Context, story *models.Story) error {
	if s.createFunc != nil {
		if err := s.createFunc(ctx, story); err != nil {
			return err
		}
	}
	s.created = append(s.created, story)
	return nil
}

func (s *fakeStore) GetStory(ctx context.Context, id string) (*models.Story, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, id)
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) ListStoriesByUser(ctx context.Context, userID string, limit int) ([]*models.Story, error) {
	return s.created, nil
}

func (s *fakeStore) DeleteStory(ctx context.Context, id, userID string) error {
	return db.ErrNotFound
}

type serviceFixture struct {
	service  *Service
	store    *fakeStore
	ledger   *entitlement.Ledger
	usage    *entitlement.MemoryStore
	provider *fakeProvider
}

func newServiceFixture(t *testing.T, plan models.Plan, used int) *serviceFixture {
	t.Helper()

	usage := entitlement.NewMemoryStore()
	usage.Put("u1", plan, used, time.Now())
	ledger := entitlement.NewLedger(usage, 5, true)

	provider := &fakeProvider{response: `{"title": "Mia Among the Stars", "content": "Once upon a time..."}`}
	store := &fakeStore{}

	log := logrus.New()
	log.SetOutput(io.Discard)

	return &serviceFixture{
		service:  NewService(store, ledger, NewSynthesizer(provider), log),
		store:    store,
		ledger:   ledger,
		usage:    usage,
		provider: provider,
	}
}

func (f *serviceFixture) usedCount(t *testing.T) int {
	t.Helper()
	u, err := f.usage.GetStoryUsage(context.Background(), "u1")
	require.NoError(t, err)
	return u.Used
}

func TestGenerateSuccess(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 4)

	story, err := f.service.Generate(context.Background(), "u1", testRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, story.ID)
	assert.Equal(t, "u1", story.UserID)
	assert.Equal(t, "Mia", story.ChildName)
	assert.Equal(t, 6, story.ChildAge)
	assert.Equal(t, "space", story.Theme)
	assert.Equal(t, "en", story.Language)
	assert.Equal(t, "Mia Among the Stars", story.Title)
	assert.Equal(t, "Once upon a time...", story.Content)

	// Fifth story of the period: counter lands exactly on the limit.
	assert.Equal(t, 5, f.usedCount(t))
	assert.Len(t, f.store.created, 1)
}

func TestGenerateValidationFailsFast(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 0)

	invalid := []models.GenerateStoryRequest{
		{ChildName: "", ChildAge: 6, Theme: "space", Language: "en"},
		{ChildName: "Mia", ChildAge: 0, Theme: "space", Language: "en"},
		{ChildName: "Mia", ChildAge: 16, Theme: "space", Language: "en"},
		{ChildName: "Mia", ChildAge: 6, Theme: "volcanoes", Language: "en"},
		{ChildName: "Mia", ChildAge: 6, Theme: "space", Language: "xx"},
	}

	for _, req := range invalid {
		_, err := f.service.Generate(context.Background(), "u1", req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	// No provider call, no quota debit, no stored story.
	assert.Empty(t, f.provider.prompt)
	assert.Equal(t, 0, f.usedCount(t))
	assert.Empty(t, f.store.created)
}

func TestGenerateQuotaExceeded(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 5)

	_, err := f.service.Generate(context.Background(), "u1", testRequest())
	assert.ErrorIs(t, err, entitlement.ErrQuotaExceeded)

	assert.Empty(t, f.provider.prompt)
	assert.Equal(t, 5, f.usedCount(t))
	assert.Empty(t, f.store.created)
}

func TestGenerateProviderFailureRollsBack(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 2)
	f.provider.err = errors.New("upstream down")

	_, err := f.service.Generate(context.Background(), "u1", testRequest())
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	// Net zero: the reservation was refunded and nothing was stored.
	assert.Equal(t, 2, f.usedCount(t))
	assert.Empty(t, f.store.created)
}

func TestGeneratePersistenceFailureRollsBack(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 2)
	f.store.createFunc = func(ctx context.Context, story *models.Story) error {
		return errors.New("disk full")
	}

	_, err := f.service.Generate(context.Background(), "u1", testRequest())
	assert.ErrorIs(t, err, ErrPersistenceFailed)

	assert.Equal(t, 2, f.usedCount(t))
	assert.Empty(t, f.store.created)
}

// cancellingProvider cancels the request context while "waiting" on the
// provider, simulating a caller that gives up mid-call.
type cancellingProvider struct {
	cancel context.CancelFunc
}

func (p *cancellingProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	p.cancel()
	return "", ctx.Err()
}

func TestGenerateReleasesReservationOnCancellation(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 3)

	ctx, cancel := context.WithCancel(context.Background())
	svc := NewService(f.store, f.ledger, NewSynthesizer(&cancellingProvider{cancel: cancel}), logrusDiscard())

	_, err := svc.Generate(ctx, "u1", testRequest())
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	// The refund must land even though the request context is cancelled.
	assert.Equal(t, 3, f.usedCount(t))
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newServiceFixture(t, models.PlanFree, 0)
	f.store.getFunc = func(ctx context.Context, id string) (*models.Story, error) {
		return &models.Story{ID: id, UserID: "someone-else"}, nil
	}

	_, err := f.service.Get(context.Background(), "u1", "story-1")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func logrusDiscard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
