package desk

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/observability"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// SendState is the state of one send.
type SendState string

const (
	SendIdle      SendState = "idle"
	SendSending   SendState = "sending"
	SendDelivered SendState = "delivered"
	SendFailed    SendState = "failed"
)

// SendPath names the transport a send went out on.
type SendPath string

const (
	PathNone    SendPath = ""
	PathChannel SendPath = "channel"
	PathHTTP    SendPath = "http"
)

// SendResult reports the outcome of a send.
type SendResult struct {
	State           SendState
	Path            SendPath
	ClientMessageID string
	// Message is set when the HTTP fallback returned the created message.
	Message *domain.Message
	Err     error
}

// ErrEmptyMessage rejects whitespace-only input.
var ErrEmptyMessage = apperrors.NewValidationError("message is empty", nil)

// Sender pushes outgoing text over the realtime channel when it is up and
// over the REST API otherwise.
type Sender struct {
	rt      Realtime
	api     API
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSender builds a sender.
func NewSender(rt Realtime, api API, logger *zap.Logger, metrics *observability.Metrics) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{rt: rt, api: api, logger: logger, metrics: metrics}
}

// Send delivers text to a conversation. Over the channel the send counts as
// delivered once written; confirmation arrives later as message_received.
func (s *Sender) Send(ctx context.Context, ticketID, text string) SendResult {
	body := strings.TrimSpace(text)
	if body == "" {
		s.metrics.Inc(observability.SendsRejected)
		return SendResult{State: SendIdle, Err: ErrEmptyMessage}
	}

	// One id per send; the HTTP fallback reuses it.
	clientID := uuid.NewString()
	if s.rt != nil && s.rt.Connected() {
		err := s.rt.Emit(ctx, events.CommandSendMessage, events.SendMessagePayload{
			TicketID:        ticketID,
			Message:         body,
			ClientMessageID: clientID,
		})
		if err == nil {
			s.metrics.Inc(observability.SendsChannel)
			return SendResult{State: SendDelivered, Path: PathChannel, ClientMessageID: clientID}
		}
		if errors.Is(err, context.Canceled) {
			return SendResult{State: SendFailed, Path: PathChannel, Err: err}
		}
		s.logger.Warn("channel send failed; using http", zap.String("ticket_id", ticketID), zap.Error(err))
	}

	msg, err := s.api.SendMessage(ctx, ticketID, body, clientID)
	if err != nil {
		s.metrics.Inc(observability.SendsFailed)
		s.logger.Warn("message send failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return SendResult{State: SendFailed, Path: PathHTTP, ClientMessageID: clientID, Err: err}
	}
	s.metrics.Inc(observability.SendsHTTP)
	return SendResult{State: SendDelivered, Path: PathHTTP, ClientMessageID: clientID, Message: &msg}
}

// Composer is the input box of one open conversation.
type Composer struct {
	ticketID string
	sender   *Sender
	notify   Notifier
	detail   *DetailView

	mu    sync.Mutex
	text  string
	state SendState
}

func newComposer(ticketID string, sender *Sender, notify Notifier, detail *DetailView) *Composer {
	return &Composer{ticketID: ticketID, sender: sender, notify: notify, detail: detail, state: SendIdle}
}

// TicketID returns the conversation the composer writes to.
func (c *Composer) TicketID() string { return c.ticketID }

// SetText replaces the input.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Text returns the current input.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// State returns the state of the latest submit.
func (c *Composer) State() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit sends the current input. On delivery the input is cleared; on
// failure it is kept and the user is notified. Whitespace-only input is
// rejected without any network call.
func (c *Composer) Submit(ctx context.Context) SendResult {
	c.mu.Lock()
	text := c.text
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return c.sender.Send(ctx, c.ticketID, text)
	}
	c.state = SendSending
	c.mu.Unlock()

	res := c.sender.Send(ctx, c.ticketID, text)

	c.mu.Lock()
	c.state = res.State
	if res.State == SendDelivered && c.text == text {
		c.text = ""
	}
	c.mu.Unlock()

	switch {
	case res.State == SendFailed:
		c.notify.Notify(Notice{Level: NoticeError, Text: "Message not sent: " + apperrors.UserMessage(res.Err), Err: res.Err})
	case res.Message != nil && c.detail != nil:
		c.detail.appendLocal(*res.Message)
	}
	return res
}
