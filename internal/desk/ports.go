package desk

import (
	"context"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/realtime"
	"github.com/vendorhub/ticket-sync/internal/restapi"
)

// API is the authoritative ticket source.
type API interface {
	ListTickets(ctx context.Context, q restapi.ListQuery) (domain.TicketPage, error)
	GetTicket(ctx context.Context, id string) (domain.TicketDetail, error)
	CreateTicket(ctx context.Context, in restapi.CreateTicketInput) (domain.Ticket, error)
	SendMessage(ctx context.Context, ticketID, text, clientMessageID string) (domain.Message, error)
}

// Realtime is the part of the session's realtime manager the desk uses.
type Realtime interface {
	EnsureConnection(credential string) *realtime.Conn
	Connected() bool
	Emit(ctx context.Context, event string, payload any) error
	Subscribe(eventType events.EventType, handler events.EventHandler) func()
	JoinRoom(ctx context.Context, conversationID string) func()
	Disconnect()
}

var (
	_ API      = (*restapi.Client)(nil)
	_ Realtime = (*realtime.Manager)(nil)
)

// NoticeLevel grades a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
	Err   error
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a logger.
func LogNotifier(logger *zap.Logger) Notifier {
	return NotifierFunc(func(n Notice) {
		if n.Level == NoticeError {
			logger.Warn(n.Text, zap.Error(n.Err))
			return
		}
		logger.Info(n.Text)
	})
}

// signal performs a non-blocking send on a coalescing change channel.
func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
