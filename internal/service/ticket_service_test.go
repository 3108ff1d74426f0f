package service

import (
	"context"
	"testing"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/repository"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

var (
	vendorA = domain.Session{SubjectID: "vendor-a", Role: domain.SenderVendor}
	vendorB = domain.Session{SubjectID: "vendor-b", Role: domain.SenderVendor}
	admin   = domain.Session{SubjectID: "admin-1", Role: domain.SenderAdmin}
)

type recorded struct {
	events []events.Event
}

func newTestService(t *testing.T) (*TicketService, *recorded) {
	t.Helper()
	tickets, messages := repository.NewMemoryRepositories()
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recorded{}
	record := func(_ context.Context, ev events.Event) error {
		rec.events = append(rec.events, ev)
		return nil
	}
	dispatcher.Subscribe(events.EventMessageReceived, record)
	dispatcher.Subscribe(events.EventTicketUpdated, record)
	svc := NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		Dispatcher:  dispatcher,
	})
	return svc, rec
}

func createTicket(t *testing.T, svc *TicketService, actor domain.Session, subject string) *domain.Ticket {
	t.Helper()
	ticket, err := svc.CreateTicket(context.Background(), actor, TicketCreateInput{
		Subject:     subject,
		Description: "details",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestCreateTicketDefaultsAndEvent(t *testing.T) {
	svc, rec := newTestService(t)
	ticket := createTicket(t, svc, vendorA, "  Payout delayed ")

	if ticket.Subject != "Payout delayed" || ticket.Priority != domain.TicketPriorityMedium || ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("ticket = %+v", ticket)
	}
	if ticket.OwnerID != vendorA.SubjectID || ticket.Number == "" {
		t.Fatalf("owner = %q number = %q", ticket.OwnerID, ticket.Number)
	}
	if len(rec.events) != 1 || rec.events[0].Type != events.EventTicketUpdated || rec.events[0].OwnerID != vendorA.SubjectID {
		t.Fatalf("events = %+v", rec.events)
	}

	_, err := svc.CreateTicket(context.Background(), vendorA, TicketCreateInput{Subject: "x"})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("missing description err = %v", err)
	}
	_, err = svc.CreateTicket(context.Background(), vendorA, TicketCreateInput{Subject: "x", Description: "y", Priority: "urgent"})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("bad priority err = %v", err)
	}
}

func TestListScopesByOwnerAndBucket(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	first := createTicket(t, svc, vendorA, "First")
	createTicket(t, svc, vendorA, "Second")
	createTicket(t, svc, vendorB, "Other vendor")

	if _, err := svc.UpdateStatus(ctx, admin, first.ID, domain.TicketStatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	page, err := svc.ListTickets(ctx, vendorA, TicketListInput{Status: domain.BucketActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 1 || page.Items[0].Subject != "Second" {
		t.Fatalf("active page = %+v", page)
	}

	page, _ = svc.ListTickets(ctx, vendorA, TicketListInput{Status: domain.BucketResolved})
	if page.Pagination.Total != 1 || page.Items[0].ID != first.ID {
		t.Fatalf("resolved page = %+v", page)
	}

	page, _ = svc.ListTickets(ctx, admin, TicketListInput{Limit: 2})
	if page.Pagination.Total != 3 || page.Pagination.Pages != 2 || len(page.Items) != 2 {
		t.Fatalf("admin page = %+v", page.Pagination)
	}
}

func TestAddMessageCollapsesRetries(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, vendorA, "Refund")
	rec.events = nil

	msg, err := svc.AddMessage(ctx, vendorA, ticket.ID, " Hello ", "c-1")
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if msg.Body != "Hello" || msg.Sender != domain.SenderVendor {
		t.Fatalf("msg = %+v", msg)
	}
	again, err := svc.AddMessage(ctx, vendorA, ticket.ID, "Hello", "c-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if again.ID != msg.ID {
		t.Fatalf("retry id = %q, want %q", again.ID, msg.ID)
	}
	if len(rec.events) != 1 || rec.events[0].Type != events.EventMessageReceived {
		t.Fatalf("events = %+v", rec.events)
	}

	detail, err := svc.GetTicket(ctx, vendorA, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Messages) != 1 {
		t.Fatalf("thread = %+v", detail.Messages)
	}
}

func TestAccessRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, vendorA, "Private")

	cases := []struct {
		name string
		run  func() error
		code string
	}{
		{"other vendor cannot read", func() error {
			_, err := svc.GetTicket(ctx, vendorB, ticket.ID)
			return err
		}, apperrors.CodeNotFound},
		{"other vendor cannot post", func() error {
			_, err := svc.AddMessage(ctx, vendorB, ticket.ID, "hi", "")
			return err
		}, apperrors.CodeNotFound},
		{"unknown id", func() error {
			_, err := svc.GetTicket(ctx, admin, "not-a-uuid")
			return err
		}, apperrors.CodeNotFound},
		{"vendor cannot change status", func() error {
			_, err := svc.UpdateStatus(ctx, vendorA, ticket.ID, domain.TicketStatusClosed)
			return err
		}, apperrors.CodeForbidden},
		{"empty message", func() error {
			_, err := svc.AddMessage(ctx, vendorA, ticket.ID, "   ", "")
			return err
		}, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !apperrors.HasCode(err, tc.code) {
				t.Fatalf("err = %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, vendorA, "Lifecycle")

	if _, err := svc.UpdateStatus(ctx, admin, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.AddMessage(ctx, vendorA, ticket.ID, "still there?", ""); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("post to closed err = %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, admin, ticket.ID, domain.TicketStatusResolved); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("closed -> resolved err = %v", err)
	}
	reopened, err := svc.UpdateStatus(ctx, admin, ticket.ID, domain.TicketStatusOpen)
	if err != nil || reopened.Status != domain.TicketStatusOpen {
		t.Fatalf("reopen = %+v, %v", reopened, err)
	}

	last := rec.events[len(rec.events)-1]
	if last.Type != events.EventTicketUpdated || last.ConversationID != ticket.ID {
		t.Fatalf("last event = %+v", last)
	}
}

func TestNotificationServiceForwardsToHub(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	h := hub.New(nil, 4)
	client := h.Register("vendor-a", domain.SenderVendor)

	notifications := NewNotificationService(dispatcher, h, nil)
	notifications.RegisterHandlers()

	ev := events.Event{Type: events.EventMessageReceived, ConversationID: "T-1", OwnerID: "vendor-a"}
	if err := dispatcher.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-client.Messages():
	default:
		t.Fatal("client received nothing")
	}

	notifications.Stop()
	if n := dispatcher.Listeners(events.EventMessageReceived); n != 0 {
		t.Fatalf("listeners after stop = %d", n)
	}
}
