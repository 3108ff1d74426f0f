// Package desk composes the vendor ticket views on top of one authenticated
// session: the REST client for authoritative state and the realtime manager
// for change notifications.
package desk

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/observability"
	"github.com/vendorhub/ticket-sync/internal/realtime"
	"github.com/vendorhub/ticket-sync/internal/restapi"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// Deps are the collaborators of a Desk. Nil optional fields get defaults.
type Deps struct {
	Config   config.ClientConfig
	Session  domain.Session
	API      API
	Realtime Realtime
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Notifier Notifier
}

// Desk is one logged-in vendor session.
type Desk struct {
	cfg     config.ClientConfig
	session domain.Session
	api     API
	rt      Realtime
	sender  *Sender
	logger  *zap.Logger
	metrics *observability.Metrics
	notify  Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	screens map[*screen]struct{}
	closed  bool
}

// New logs in with the configured credential: it builds the REST client and
// the realtime manager and starts connecting in the background.
func New(cfg config.ClientConfig, logger *zap.Logger, metrics *observability.Metrics, notify Notifier) (*Desk, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, apperrors.NewUnauthorized("auth token required")
	}
	session, err := auth.SessionFromToken(cfg.AuthToken)
	if err != nil {
		logger.Warn("credential claims unreadable; assuming vendor role", zap.Error(err))
		session = domain.Session{Role: domain.SenderVendor}
	}

	api := restapi.New(cfg.APIBaseURL, cfg.AuthToken,
		restapi.WithTimeout(cfg.RequestTimeout),
		restapi.WithLogger(logger.Named("api")),
	)
	rt := realtime.NewManager(cfg, logger, metrics)
	return NewWithDeps(Deps{
		Config:   cfg,
		Session:  session,
		API:      api,
		Realtime: rt,
		Logger:   logger,
		Metrics:  metrics,
		Notifier: notify,
	}), nil
}

// NewWithDeps builds a desk from explicit collaborators.
func NewWithDeps(deps Deps) *Desk {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := deps.Notifier
	if notify == nil {
		notify = LogNotifier(logger)
	}
	if deps.Session.Role == "" {
		deps.Session.Role = domain.SenderVendor
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Desk{
		cfg:     deps.Config,
		session: deps.Session,
		api:     deps.API,
		rt:      deps.Realtime,
		logger:  logger.Named("desk"),
		metrics: deps.Metrics,
		notify:  notify,
		ctx:     ctx,
		cancel:  cancel,
		screens: make(map[*screen]struct{}),
	}
	d.sender = NewSender(d.rt, d.api, d.logger, d.metrics)
	d.ensureConnection()
	return d
}

// Session returns the logged-in actor.
func (d *Desk) Session() domain.Session {
	return d.session
}

// Connected reports whether the realtime channel is up.
func (d *Desk) Connected() bool {
	return d.rt.Connected()
}

// Sender returns the session's message sender.
func (d *Desk) Sender() *Sender {
	return d.sender
}

// OpenTickets mounts the ticket list and loads it.
func (d *Desk) OpenTickets(ctx context.Context, filter ListFilter) (*TicketsScreen, error) {
	s, err := d.mount(filter)
	if err != nil {
		return nil, err
	}
	if err := s.list.Refresh(ctx); err != nil && !apperrors.IsRecoverable(err) {
		s.Close()
		return nil, err
	}
	return &TicketsScreen{screen: s}, nil
}

// OpenChat mounts a dedicated conversation view and loads it. A failed load
// leaves the screen open with the error in its snapshot.
func (d *Desk) OpenChat(ctx context.Context, id string) (*ChatScreen, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewValidationError("conversation id required", nil)
	}
	s, err := d.mount(ListFilter{Status: domain.BucketAll})
	if err != nil {
		return nil, err
	}
	if _, err := s.open(ctx, id); err != nil && !apperrors.IsRecoverable(err) {
		s.Close()
		return nil, err
	}
	s.list.requestReload()
	return &ChatScreen{screen: s, id: id}, nil
}

// CreateTicket opens a new conversation.
func (d *Desk) CreateTicket(ctx context.Context, in restapi.CreateTicketInput) (domain.Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if in.Subject == "" || in.Description == "" {
		return domain.Ticket{}, apperrors.NewValidationError("subject and description required", nil)
	}
	if in.Priority == "" {
		in.Priority = domain.TicketPriorityMedium
	}
	if !in.Priority.Valid() {
		return domain.Ticket{}, apperrors.NewValidationError("unknown priority", map[string]any{"priority": in.Priority})
	}
	ticket, err := d.api.CreateTicket(ctx, in)
	if err != nil {
		d.notify.Notify(Notice{Level: NoticeError, Text: "Could not create ticket: " + apperrors.UserMessage(err), Err: err})
		return domain.Ticket{}, err
	}
	d.notify.Notify(Notice{Level: NoticeInfo, Text: "Ticket " + ticket.Number + " created"})
	return ticket, nil
}

// Logout closes every screen and tears down the realtime connection.
func (d *Desk) Logout() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	screens := make([]*screen, 0, len(d.screens))
	for s := range d.screens {
		screens = append(screens, s)
	}
	d.mu.Unlock()

	for _, s := range screens {
		s.Close()
	}
	d.cancel()
	d.rt.Disconnect()
	d.logger.Info("session closed")
}

func (d *Desk) mount(filter ListFilter) (*screen, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, apperrors.NewUnauthorized("session closed")
	}
	d.mu.Unlock()

	d.ensureConnection()
	s := newScreen(d, filter)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		s.Close()
		return nil, apperrors.NewUnauthorized("session closed")
	}
	d.screens[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

func (d *Desk) forget(s *screen) {
	d.mu.Lock()
	delete(d.screens, s)
	d.mu.Unlock()
}

func (d *Desk) ensureConnection() {
	if d.cfg.AuthToken == "" {
		return
	}
	d.rt.EnsureConnection(d.cfg.AuthToken)
}

func (d *Desk) viewDeps(changed chan struct{}) viewDeps {
	return viewDeps{
		api:     d.api,
		logger:  d.logger,
		metrics: d.metrics,
		notify:  d.notify,
		changed: changed,
		window:  d.cfg.ReloadConflation,
	}
}
