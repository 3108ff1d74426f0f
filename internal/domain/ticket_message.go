package domain

import (
	"sort"
	"time"
)

// SenderRole indicates who authored a message.
type SenderRole string

const (
	SenderVendor   SenderRole = "vendor"
	SenderCustomer SenderRole = "customer"
	SenderAdmin    SenderRole = "admin"
)

// Valid reports whether the role is known.
func (r SenderRole) Valid() bool {
	switch r {
	case SenderVendor, SenderCustomer, SenderAdmin:
		return true
	}
	return false
}

// Message is an immutable entry in a ticket thread.
type Message struct {
	ID        string
	TicketID  string
	Sender    SenderRole
	Body      string
	CreatedAt time.Time
	// ClientID is the sender-chosen id used to collapse retried sends.
	ClientID  string
}

// IsMine collapses the sender into mine vs theirs for the given actor role.
func (m Message) IsMine(actor SenderRole) bool {
	return m.Sender == actor
}

// NormalizeThread collapses duplicate ids (first occurrence wins) and orders
// the thread by timestamp. Entries with equal timestamps keep server order.
func NormalizeThread(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if msg.ID != "" {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
