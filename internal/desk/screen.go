package desk

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/events"
)

// ErrScreenClosed is returned by operations on a closed screen.
var ErrScreenClosed = errors.New("screen closed")

// selection is the open conversation of a screen together with everything
// bound to it: its room, its event handlers and its composer.
type selection struct {
	detail   *DetailView
	composer *Composer
	release  func()
	unsubs   []func()
}

func (s *selection) close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.release()
	s.detail.close()
}

// screen is a ticket list with an optional open conversation.
type screen struct {
	desk    *Desk
	logger  *zap.Logger
	changed chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	list   *ListView
	unsubs []func()

	mu       sync.Mutex
	selected *selection
	closed   bool
}

func newScreen(d *Desk, filter ListFilter) *screen {
	ctx, cancel := context.WithCancel(d.ctx)
	s := &screen{
		desk:    d,
		logger:  d.logger,
		changed: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.list = newListView(ctx, filter, d.cfg.PreviewMode, d.cfg.PageSize, d.viewDeps(s.changed))

	onEvent := func(_ context.Context, ev events.Event) error {
		s.list.requestReload()
		return nil
	}
	s.unsubs = append(s.unsubs,
		d.rt.Subscribe(events.EventMessageReceived, onEvent),
		d.rt.Subscribe(events.EventTicketUpdated, onEvent),
	)
	return s
}

// Changes signals after any displayed state changed. Signals coalesce.
func (s *screen) Changes() <-chan struct{} {
	return s.changed
}

// List returns the list view.
func (s *screen) List() *ListView {
	return s.list
}

// Detail returns the open conversation, or nil.
func (s *screen) Detail() *DetailView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return s.selected.detail
}

// Composer returns the composer of the open conversation, or nil.
func (s *screen) Composer() *Composer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return s.selected.composer
}

// open binds the screen to a conversation, replacing any previous one, and
// loads it. The room is joined every time, including for the same id.
func (s *screen) open(ctx context.Context, id string) (*DetailView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrScreenClosed
	}
	prev := s.selected
	s.selected = nil
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	d := s.desk
	detail := newDetailView(s.ctx, id, d.viewDeps(s.changed))
	onEvent := func(_ context.Context, ev events.Event) error {
		if ev.ConversationID == id {
			detail.requestReload()
		}
		return nil
	}
	sel := &selection{
		detail:   detail,
		composer: newComposer(id, d.sender, d.notify, detail),
		release:  d.rt.JoinRoom(ctx, id),
		unsubs: []func(){
			d.rt.Subscribe(events.EventMessageReceived, onEvent),
			d.rt.Subscribe(events.EventTicketUpdated, onEvent),
		},
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sel.close()
		return nil, ErrScreenClosed
	}
	// A concurrent open may have installed its selection meanwhile.
	superseded := s.selected
	s.selected = sel
	s.mu.Unlock()
	if superseded != nil {
		superseded.close()
	}

	s.logger.Debug("conversation opened", zap.String("conversation_id", id))
	signal(s.changed)
	return detail, detail.Load(ctx)
}

func (s *screen) deselect() {
	s.mu.Lock()
	prev := s.selected
	s.selected = nil
	s.mu.Unlock()
	if prev != nil {
		prev.close()
		signal(s.changed)
	}
}

// Close releases the room, removes every event handler and cancels pending
// loads. Results arriving afterwards are discarded.
func (s *screen) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	prev := s.selected
	s.selected = nil
	s.mu.Unlock()

	for _, unsub := range s.unsubs {
		unsub()
	}
	if prev != nil {
		prev.close()
	}
	s.cancel()
	s.list.close()
	s.desk.forget(s)
}

// TicketsScreen is the ticket list with a selectable conversation.
type TicketsScreen struct {
	*screen
}

// Select opens a conversation next to the list.
func (t *TicketsScreen) Select(ctx context.Context, id string) (*DetailView, error) {
	return t.open(ctx, id)
}

// Deselect closes the open conversation, if any.
func (t *TicketsScreen) Deselect() {
	t.deselect()
}

// SetFilter changes the list filter.
func (t *TicketsScreen) SetFilter(ctx context.Context, filter ListFilter) error {
	return t.list.SetFilter(ctx, filter)
}

// ChatScreen is a dedicated view of one conversation.
type ChatScreen struct {
	*screen
	id string
}

// ID returns the conversation shown.
func (c *ChatScreen) ID() string {
	return c.id
}
