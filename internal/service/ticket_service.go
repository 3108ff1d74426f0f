package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/repository"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxMessageLen   = 4000
)

// TicketService coordinates ticket workflows for the relay.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Type        string
	Priority    domain.TicketPriority
	Description string
}

// TicketListInput describes list filters.
type TicketListInput struct {
	Status domain.StatusBucket
	Search string
	Page   int
	Limit  int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("tickets"),
	}
}

// CreateTicket opens a ticket owned by the actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Session, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	if subject == "" || description == "" {
		return nil, apperrors.NewValidationError("subject and description required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	ticketType := strings.TrimSpace(input.Type)
	if ticketType == "" {
		ticketType = "general"
	}

	ticket := &domain.Ticket{
		Number:      generateTicketNumber(),
		OwnerID:     actor.SubjectID,
		Subject:     subject,
		Type:        ticketType,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketUpdated, ticket)
	return ticket, nil
}

// ListTickets returns one page of tickets visible to the actor.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Session, input TicketListInput) (domain.TicketPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := input.Page
	if page < 1 {
		page = 1
	}

	filter := repository.TicketFilter{
		Statuses: statusesForBucket(input.Status),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	if actor.Role != domain.SenderAdmin {
		owner := actor.SubjectID
		filter.OwnerID = &owner
	}
	if term := strings.TrimSpace(input.Search); term != "" {
		filter.SearchTerm = &term
	}

	items, total, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return domain.TicketPage{}, err
	}
	return domain.TicketPage{
		Items: items,
		Pagination: domain.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// GetTicket returns the ticket and its full thread.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Session, ticketID string) (*domain.TicketDetail, error) {
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return &domain.TicketDetail{Ticket: *ticket, Messages: domain.NormalizeThread(msgs)}, nil
}

// AddMessage appends a message authored by the actor. A retried send with a
// clientMessageID already stored returns the original message without
// publishing again.
func (s *TicketService) AddMessage(ctx context.Context, actor domain.Session, ticketID, body, clientMessageID string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}
	if len(body) > maxMessageLen {
		return nil, apperrors.NewValidationError("message too long", map[string]any{"max": maxMessageLen})
	}
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticketId": ticket.ID})
	}

	msg := &domain.Message{
		TicketID: ticket.ID,
		Sender:   actor.Role,
		Body:     body,
		ClientID: strings.TrimSpace(clientMessageID),
	}
	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Debug("duplicate send collapsed",
			zap.String("ticket_id", ticket.ID),
			zap.String("client_message_id", msg.ClientID))
		return msg, nil
	}
	if err := s.tickets.Touch(ctx, ticket.ID, msg.CreatedAt); err != nil {
		s.logger.Warn("touch ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.publishEvent(ctx, events.EventMessageReceived, ticket)
	return msg, nil
}

// UpdateStatus moves a ticket through its lifecycle. Only admins may change status.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Session, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	if actor.Role != domain.SenderAdmin {
		return nil, apperrors.NewForbidden("only admins can change ticket status")
	}
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": next})
	}
	ticket, err := s.accessibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == next {
		return ticket, nil
	}
	if !isValidTransition(ticket.Status, next) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   next,
		})
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, next); err != nil {
		return nil, err
	}
	ticket.Status = next
	ticket.LastActivity = time.Now()
	s.publishEvent(ctx, events.EventTicketUpdated, ticket)
	return ticket, nil
}

func (s *TicketService) accessibleTicket(ctx context.Context, actor domain.Session, ticketID string) (*domain.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticket id required", nil)
	}
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	if actor.Role != domain.SenderAdmin && ticket.OwnerID != actor.SubjectID {
		// Other owners' tickets are reported as missing.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, eventType events.EventType, ticket *domain.Ticket) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		Type:           eventType,
		ConversationID: ticket.ID,
		OwnerID:        ticket.OwnerID,
		ReceivedAt:     time.Now(),
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event", string(eventType)),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func generateTicketNumber() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func statusesForBucket(bucket domain.StatusBucket) []domain.TicketStatus {
	switch bucket {
	case domain.BucketActive:
		return []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress}
	case domain.BucketResolved:
		return []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed}
	default:
		return nil
	}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
