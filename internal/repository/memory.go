package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vendorhub/ticket-sync/internal/domain"
)

// memoryData backs both in-memory repositories so list summaries can see
// the latest message.
type memoryData struct {
	mu       sync.RWMutex
	now      func() time.Time
	tickets  map[string]*domain.Ticket
	messages map[string][]domain.Message
}

// NewMemoryRepositories returns ticket and message repositories sharing one
// in-process store. Missing rows surface as pgx.ErrNoRows like the Postgres
// implementation.
func NewMemoryRepositories() (TicketRepository, TicketMessageRepository) {
	data := &memoryData{
		now:      time.Now,
		tickets:  make(map[string]*domain.Ticket),
		messages: make(map[string][]domain.Message),
	}
	return &memoryTicketRepository{data}, &memoryMessageRepository{data}
}

type memoryTicketRepository struct{ *memoryData }

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	now := r.now()
	ticket.CreatedAt = now
	ticket.LastActivity = now
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *memoryTicketRepository) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Status = status
	ticket.LastActivity = r.now()
	return nil
}

func (r *memoryTicketRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket, ok := r.tickets[id]; ok && at.After(ticket.LastActivity) {
		ticket.LastActivity = at
	}
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *ticket
	return &out, nil
}

func (r *memoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.TicketSummary, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := ""
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}

	var matched []domain.TicketSummary
	for _, ticket := range r.tickets {
		if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if search != "" && !matchesSearch(ticket, search) {
			continue
		}
		summary := domain.TicketSummary{Ticket: *ticket}
		if thread := r.messages[ticket.ID]; len(thread) > 0 {
			summary.HasLastMessage = true
			summary.LastMessage = thread[len(thread)-1].Body
		}
		matched = append(matched, summary)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LastActivity.After(matched[j].LastActivity)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.TicketSummary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type memoryMessageRepository struct{ *memoryData }

func (r *memoryMessageRepository) Create(_ context.Context, msg *domain.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[msg.TicketID]; !ok {
		return false, pgx.ErrNoRows
	}
	if msg.ClientID != "" {
		for _, existing := range r.messages[msg.TicketID] {
			if existing.ClientID == msg.ClientID {
				*msg = existing
				return false, nil
			}
		}
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.now()
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], *msg)
	return true, nil
}

func (r *memoryMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Message{}, r.messages[ticketID]...), nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func matchesSearch(ticket *domain.Ticket, term string) bool {
	return strings.Contains(strings.ToLower(ticket.Subject), term) ||
		strings.Contains(strings.ToLower(ticket.Description), term) ||
		strings.Contains(strings.ToLower(ticket.Number), term)
}
