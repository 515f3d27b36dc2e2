package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util"
)

const ticketListCacheKey = "tickets:list"

// TicketCreateInput describes ticket creation payload. Status and
// priority default to open/medium when empty.
type TicketCreateInput struct {
	Title       string
	Description string
	Status      domain.TicketStatus
	Priority    domain.TicketPriority
}

// TicketService coordinates ticket workflows. Reads are served through
// a short-lived Redis cache when available; every write invalidates it.
type TicketService struct {
	tickets    repository.TicketRepository
	cache      *redis.Client
	cacheTTL   time.Duration
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      *redis.Client
	CacheTTL   time.Duration
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		cache:      deps.Cache,
		cacheTTL:   deps.CacheTTL,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create persists a new ticket owned by the given user.
func (s *TicketService) Create(ctx context.Context, userID int64, input TicketCreateInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      input.Status,
		Priority:    input.Priority,
		UserID:      userID,
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, ticket.ID)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventTicketCreated,
		ActorID: userID,
		Payload: events.TicketCreatedPayload{
			TicketID: ticket.ID,
			Title:    ticket.Title,
			Status:   ticket.Status,
			Priority: ticket.Priority,
		},
	})
	return ticket, nil
}

// List returns all tickets. Unauthenticated and unscoped on purpose;
// see the route registration.
func (s *TicketService) List(ctx context.Context) ([]domain.Ticket, error) {
	if cached, ok := s.cachedList(ctx); ok {
		return cached, nil
	}
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, ticketListCacheKey, tickets)
	return tickets, nil
}

// Get returns a single ticket by id regardless of owner.
func (s *TicketService) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	if cached, ok := s.cachedTicket(ctx, id); ok {
		return cached, nil
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, err
	}
	s.storeCache(ctx, ticketCacheKey(id), ticket)
	return ticket, nil
}

// UpdateForOwner applies a partial update to a ticket owned by ownerID.
// A ticket owned by someone else answers NotFound, never Forbidden.
func (s *TicketService) UpdateForOwner(ctx context.Context, id, ownerID int64, patch repository.TicketPatch) (*domain.Ticket, error) {
	// An empty patch changes nothing but still answers 200 for the
	// owner and 404 for everyone else.
	if patch.Empty() {
		ticket, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("ticket", nil)
			}
			return nil, err
		}
		if ticket.UserID != ownerID {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return ticket, nil
	}

	ticket, err := s.tickets.UpdateForOwner(ctx, id, ownerID, patch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, err
	}
	s.invalidateCache(ctx, id)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventTicketUpdated,
		ActorID: ownerID,
		Payload: events.TicketUpdatedPayload{
			TicketID: ticket.ID,
			Status:   ticket.Status,
			Priority: ticket.Priority,
		},
	})
	return ticket, nil
}

// DeleteForOwner removes a ticket owned by ownerID.
func (s *TicketService) DeleteForOwner(ctx context.Context, id, ownerID int64) error {
	if err := s.tickets.DeleteForOwner(ctx, id, ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", nil)
		}
		return err
	}
	s.invalidateCache(ctx, id)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventTicketDeleted,
		ActorID: ownerID,
		Payload: events.TicketDeletedPayload{TicketID: id},
	})
	return nil
}

func ticketCacheKey(id int64) string {
	return "tickets:" + strconv.FormatInt(id, 10)
}

func (s *TicketService) cachedList(ctx context.Context) ([]domain.Ticket, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, ticketListCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("ticket cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var tickets []domain.Ticket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		return nil, false
	}
	return tickets, true
}

func (s *TicketService) cachedTicket(ctx context.Context, id int64) (*domain.Ticket, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, ticketCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("ticket cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, false
	}
	return &ticket, true
}

func (s *TicketService) storeCache(ctx context.Context, key string, value any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("ticket cache write failed", zap.Error(err))
	}
}

func (s *TicketService) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Del(ctx, ticketListCacheKey, ticketCacheKey(id)).Err(); err != nil {
		s.logger.Warn("ticket cache invalidation failed", zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
