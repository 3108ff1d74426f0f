package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vendorhub/ticket-sync/internal/domain"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", "tok")
}

func TestListTicketsQueryAndDecode(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tickets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "active" || q.Get("search") != "refund" || q.Get("page") != "2" || q.Get("limit") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"tickets":[
			{"id":"T-1","ticketNumber":"TKT-001","subject":"Refund","status":"open","priority":"high","hasLastMessage":true}
		],"pagination":{"page":2,"limit":10,"total":11,"pages":2}}}`)
	})

	page, err := c.ListTickets(context.Background(), ListQuery{Status: domain.BucketActive, Search: " refund ", Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "T-1" || !page.Items[0].HasLastMessage {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Items[0].Number != "TKT-001" || page.Items[0].Status != domain.TicketStatusOpen {
		t.Fatalf("ticket = %+v", page.Items[0].Ticket)
	}
	if page.Pagination.Total != 11 || page.Pagination.Pages != 2 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}
}

func TestGetTicketNormalizesThread(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tickets/T-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"T-1","subject":"s","status":"resolved","messages":[
			{"id":"m2","sender":"customer","message":"second","createdAt":"2024-01-01T10:05:00Z"},
			{"id":"m1","sender":"vendor","message":"first","createdAt":"2024-01-01T10:00:00Z"},
			{"id":"m2","sender":"customer","message":"second","createdAt":"2024-01-01T10:05:00Z"}
		]}}`)
	})

	detail, err := c.GetTicket(context.Background(), "T-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(detail.Messages))
	}
	if detail.Messages[0].ID != "m1" || detail.Messages[1].ID != "m2" {
		t.Fatalf("order = %s, %s", detail.Messages[0].ID, detail.Messages[1].ID)
	}
	if detail.Messages[0].TicketID != "T-1" {
		t.Fatalf("ticket id not filled: %+v", detail.Messages[0])
	}
	if !detail.Messages[0].IsMine(domain.SenderVendor) || detail.Messages[1].IsMine(domain.SenderVendor) {
		t.Fatal("sender collapse wrong")
	}
}

func TestSendMessageBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tickets/T-100/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body) != 2 || body["message"] != "Hello" || body["clientMessageId"] != "c-1" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"m9","sender":"vendor","message":"Hello","createdAt":"2024-01-01T10:00:00Z"}}`)
	})

	msg, err := c.SendMessage(context.Background(), "T-100", "Hello", "c-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m9" || msg.TicketID != "T-100" || msg.Body != "Hello" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestCreateTicket(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["subject"] != "Late payout" || req["priority"] != "medium" || req["type"] != "payment" {
			t.Errorf("req = %v", req)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"T-5","ticketNumber":"TKT-005","subject":"Late payout","status":"open","priority":"medium"}}`)
	})

	ticket, err := c.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "Late payout", Type: "payment", Priority: domain.TicketPriorityMedium, Description: "d",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.ID != "T-5" || ticket.Number != "TKT-005" {
		t.Fatalf("ticket = %+v", ticket)
	}
}

func TestFailuresAreRequestErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"success false", http.StatusOK, `{"success":false,"message":"ticket locked"}`, "ticket locked"},
		{"http error", http.StatusNotFound, `{"success":false}`, "Not Found"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "unexpected response (status 502)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.GetTicket(context.Background(), "T-1")
			if !apperrors.HasCode(err, apperrors.CodeRequest) {
				t.Fatalf("err = %v, want REQUEST_FAILED", err)
			}
			if got := apperrors.UserMessage(err); got != tc.want {
				t.Fatalf("message = %q, want %q", got, tc.want)
			}
			if !apperrors.IsRecoverable(err) {
				t.Fatal("request failures must be recoverable")
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "tok", WithTimeout(time.Second))
	_, err := c.ListTickets(context.Background(), ListQuery{})
	if !apperrors.HasCode(err, apperrors.CodeTransport) {
		t.Fatalf("err = %v, want TRANSPORT_FAILURE", err)
	}
}

func TestCancelledContextNotRecoverable(t *testing.T) {
	block := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.GetTicket(ctx, "T-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if apperrors.IsRecoverable(err) {
		t.Fatal("cancellation should not be treated as recoverable")
	}
}
