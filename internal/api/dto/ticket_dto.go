package dto

import (
	"encoding/json"
	"time"

	"github.com/vendorhub/ticket-sync/internal/domain"
)

// Envelope wraps every REST response.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Type        string                `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	Description string                `json:"description"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketListQuery captures list filters.
type TicketListQuery struct {
	Status domain.StatusBucket
	Search string
	Page   int
	Limit  int
}

// TicketResponse is ticket metadata.
type TicketResponse struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticketNumber"`
	Subject      string                `json:"subject"`
	Type         string                `json:"type"`
	Description  string                `json:"description,omitempty"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	CreatedAt    time.Time             `json:"createdAt"`
	LastActivity time.Time             `json:"lastActivity"`
}

// TicketSummary is a list row. LastMessage is only filled when the server
// shares previews.
type TicketSummary struct {
	TicketResponse
	HasLastMessage bool   `json:"hasLastMessage"`
	LastMessage    string `json:"lastMessage,omitempty"`
}

// PaginationResponse describes a page.
type PaginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// TicketListResponse is the body of GET /tickets.
type TicketListResponse struct {
	Tickets    []TicketSummary    `json:"tickets"`
	Pagination PaginationResponse `json:"pagination"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Messages []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID        string            `json:"id"`
	TicketID  string            `json:"ticketId"`
	Sender    domain.SenderRole `json:"sender"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}

// FromTicket converts a domain ticket.
func FromTicket(t domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		TicketNumber: t.Number,
		Subject:      t.Subject,
		Type:         t.Type,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
	}
}

// ToDomain converts back to a domain ticket.
func (r TicketResponse) ToDomain() domain.Ticket {
	return domain.Ticket{
		ID:           r.ID,
		Number:       r.TicketNumber,
		Subject:      r.Subject,
		Type:         r.Type,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
}

// FromSummary converts a domain summary.
func FromSummary(s domain.TicketSummary) TicketSummary {
	return TicketSummary{
		TicketResponse: FromTicket(s.Ticket),
		HasLastMessage: s.HasLastMessage,
		LastMessage:    s.LastMessage,
	}
}

// ToDomain converts back to a domain summary.
func (s TicketSummary) ToDomain() domain.TicketSummary {
	return domain.TicketSummary{
		Ticket:         s.TicketResponse.ToDomain(),
		HasLastMessage: s.HasLastMessage || s.LastMessage != "",
		LastMessage:    s.LastMessage,
	}
}

// FromPage converts a domain page.
func FromPage(p domain.TicketPage) TicketListResponse {
	items := make([]TicketSummary, 0, len(p.Items))
	for _, s := range p.Items {
		items = append(items, FromSummary(s))
	}
	return TicketListResponse{
		Tickets: items,
		Pagination: PaginationResponse{
			Page:  p.Pagination.Page,
			Limit: p.Pagination.Limit,
			Total: p.Pagination.Total,
			Pages: p.Pagination.Pages,
		},
	}
}

// ToDomain converts back to a domain page.
func (r TicketListResponse) ToDomain() domain.TicketPage {
	items := make([]domain.TicketSummary, 0, len(r.Tickets))
	for _, s := range r.Tickets {
		items = append(items, s.ToDomain())
	}
	return domain.TicketPage{
		Items: items,
		Pagination: domain.Pagination{
			Page:  r.Pagination.Page,
			Limit: r.Pagination.Limit,
			Total: r.Pagination.Total,
			Pages: r.Pagination.Pages,
		},
	}
}

// FromMessage converts a domain message.
func FromMessage(m domain.Message) TicketMessageResponse {
	return TicketMessageResponse{
		ID:        m.ID,
		TicketID:  m.TicketID,
		Sender:    m.Sender,
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// ToDomain converts back to a domain message.
func (r TicketMessageResponse) ToDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		TicketID:  r.TicketID,
		Sender:    r.Sender,
		Body:      r.Message,
		CreatedAt: r.CreatedAt,
	}
}

// FromDetail converts a domain detail.
func FromDetail(d domain.TicketDetail) TicketDetailResponse {
	msgs := make([]TicketMessageResponse, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, FromMessage(m))
	}
	return TicketDetailResponse{TicketResponse: FromTicket(d.Ticket), Messages: msgs}
}

// ToDomain converts back to a domain detail with a normalized thread.
func (r TicketDetailResponse) ToDomain() domain.TicketDetail {
	msgs := make([]domain.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msg := m.ToDomain()
		if msg.TicketID == "" {
			msg.TicketID = r.ID
		}
		msgs = append(msgs, msg)
	}
	return domain.TicketDetail{Ticket: r.TicketResponse.ToDomain(), Messages: domain.NormalizeThread(msgs)}
}
