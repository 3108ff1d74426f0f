package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether the status is one of the known states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Bucket groups the status the way list views display it.
func (s TicketStatus) Bucket() StatusBucket {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress:
		return BucketActive
	default:
		return BucketResolved
	}
}

// StatusBucket is the coarse grouping used by list filters.
type StatusBucket string

const (
	BucketAll      StatusBucket = "all"
	BucketActive   StatusBucket = "active"
	BucketResolved StatusBucket = "resolved"
)

// ParseStatusBucket maps a filter string onto a bucket, defaulting to all.
func ParseStatusBucket(val string) StatusBucket {
	switch StatusBucket(strings.ToLower(strings.TrimSpace(val))) {
	case BucketActive:
		return BucketActive
	case BucketResolved, "closed":
		return BucketResolved
	default:
		return BucketAll
	}
}

// Matches reports whether a ticket status falls into the bucket.
func (b StatusBucket) Matches(status TicketStatus) bool {
	if b == BucketAll || b == "" {
		return true
	}
	return status.Bucket() == b
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the conversation aggregate. Number is for display only.
type Ticket struct {
	ID           string
	Number       string
	OwnerID      string
	Subject      string
	Type         string
	Description  string
	Status       TicketStatus
	Priority     TicketPriority
	CreatedAt    time.Time
	LastActivity time.Time
}

// TicketSummary is the list-view projection of a ticket.
type TicketSummary struct {
	Ticket
	HasLastMessage bool
	LastMessage    string
}

// Pagination describes a page of list results.
type Pagination struct {
	Page  int
	Limit int
	Total int
	Pages int
}

// TicketPage is one page of summaries.
type TicketPage struct {
	Items      []TicketSummary
	Pagination Pagination
}

// TicketDetail is a full snapshot of one conversation.
type TicketDetail struct {
	Ticket   Ticket
	Messages []Message
}
