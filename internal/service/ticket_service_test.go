package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util"
)

type mockTicketRepository struct {
	createFunc         func(ctx context.Context, ticket *domain.Ticket) error
	getByIDFunc        func(ctx context.Context, id int64) (*domain.Ticket, error)
	listFunc           func(ctx context.Context) ([]domain.Ticket, error)
	updateForOwnerFunc func(ctx context.Context, id, ownerID int64, patch repository.TicketPatch) (*domain.Ticket, error)
	deleteForOwnerFunc func(ctx context.Context, id, ownerID int64) error

	listCalls int
}

func (m *mockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, ticket)
	}
	ticket.ID = 1
	ticket.CreatedAt = time.Now()
	return nil
}

func (m *mockTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	m.listCalls++
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockTicketRepository) UpdateForOwner(ctx context.Context, id, ownerID int64, patch repository.TicketPatch) (*domain.Ticket, error) {
	if m.updateForOwnerFunc != nil {
		return m.updateForOwnerFunc(ctx, id, ownerID, patch)
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTicketRepository) DeleteForOwner(ctx context.Context, id, ownerID int64) error {
	if m.deleteForOwnerFunc != nil {
		return m.deleteForOwnerFunc(ctx, id, ownerID)
	}
	return pgx.ErrNoRows
}

func setupCache(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestTicketService(repo repository.TicketRepository, cache *redis.Client, dispatcher events.Dispatcher) *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Cache:      cache,
		CacheTTL:   30 * time.Second,
		Dispatcher: dispatcher,
	})
}

func TestCreateAppliesDefaults(t *testing.T) {
	var stored *domain.Ticket
	repo := &mockTicketRepository{
		createFunc: func(_ context.Context, ticket *domain.Ticket) error {
			ticket.ID = 7
			stored = ticket
			return nil
		},
	}
	svc := newTestTicketService(repo, nil, nil)

	ticket, err := svc.Create(context.Background(), 1, TicketCreateInput{
		Title:       "  t  ",
		Description: "d",
	})
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, "t", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, int64(1), ticket.UserID)
}

func TestCreateKeepsExplicitStatusAndPriority(t *testing.T) {
	repo := &mockTicketRepository{
		createFunc: func(_ context.Context, ticket *domain.Ticket) error {
			ticket.ID = 7
			return nil
		},
	}
	svc := newTestTicketService(repo, nil, nil)

	ticket, err := svc.Create(context.Background(), 1, TicketCreateInput{
		Title:       "t",
		Description: "d",
		Status:      domain.TicketStatusClosed,
		Priority:    domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
}

func TestListServesFromCache(t *testing.T) {
	repo := &mockTicketRepository{
		listFunc: func(_ context.Context) ([]domain.Ticket, error) {
			return []domain.Ticket{{ID: 1, Title: "t", Description: "d", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityMedium, UserID: 1}}, nil
		},
	}
	svc := newTestTicketService(repo, setupCache(t), nil)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)
}

func TestWritesInvalidateListCache(t *testing.T) {
	tickets := []domain.Ticket{{ID: 1, Title: "t", Description: "d", UserID: 1}}
	repo := &mockTicketRepository{
		listFunc: func(_ context.Context) ([]domain.Ticket, error) {
			out := make([]domain.Ticket, len(tickets))
			copy(out, tickets)
			return out, nil
		},
		createFunc: func(_ context.Context, ticket *domain.Ticket) error {
			ticket.ID = 2
			tickets = append(tickets, *ticket)
			return nil
		},
	}
	svc := newTestTicketService(repo, setupCache(t), nil)

	before, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, err = svc.Create(context.Background(), 1, TicketCreateInput{Title: "t2", Description: "d2"})
	require.NoError(t, err)

	// A stale list must not be served after a write.
	after, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestListSurvivesCacheOutage(t *testing.T) {
	repo := &mockTicketRepository{
		listFunc: func(_ context.Context) ([]domain.Ticket, error) {
			return []domain.Ticket{{ID: 1}}, nil
		},
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	svc := newTestTicketService(repo, cache, nil)

	tickets, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestUpdateForOwnerNotOwnedIsNotFound(t *testing.T) {
	repo := &mockTicketRepository{
		updateForOwnerFunc: func(_ context.Context, _, _ int64, _ repository.TicketPatch) (*domain.Ticket, error) {
			return nil, pgx.ErrNoRows
		},
	}
	svc := newTestTicketService(repo, nil, nil)

	status := domain.TicketStatusClosed
	_, err := svc.UpdateForOwner(context.Background(), 1, 2, repository.TicketPatch{Status: &status})
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
	assert.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)
}

func TestDeleteForOwnerNotOwnedIsNotFound(t *testing.T) {
	svc := newTestTicketService(&mockTicketRepository{}, nil, nil)

	err := svc.DeleteForOwner(context.Background(), 1, 2)
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)
}

func TestWritesPublishEvents(t *testing.T) {
	repo := &mockTicketRepository{
		createFunc: func(_ context.Context, ticket *domain.Ticket) error {
			ticket.ID = 1
			return nil
		},
		deleteForOwnerFunc: func(_ context.Context, _, _ int64) error {
			return nil
		},
	}
	dispatcher := events.NewInMemoryDispatcher()

	var seen []events.EventType
	record := func(_ context.Context, event events.Event) error {
		seen = append(seen, event.Type)
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, record)
	dispatcher.Subscribe(events.EventTicketDeleted, record)

	svc := newTestTicketService(repo, nil, dispatcher)

	_, err := svc.Create(context.Background(), 1, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteForOwner(context.Background(), 1, 1))

	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketDeleted}, seen)
}
