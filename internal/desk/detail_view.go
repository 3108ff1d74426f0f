package desk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/observability"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// DetailSnapshot is what a detail view currently displays.
type DetailSnapshot struct {
	Ticket   domain.Ticket
	Messages []domain.Message
	Loaded   bool
	Err      error
}

// DetailView holds the snapshot of one open conversation. Every load replaces
// the snapshot wholesale with what the server returned.
type DetailView struct {
	id      string
	api     API
	logger  *zap.Logger
	metrics *observability.Metrics
	notify  Notifier
	changed chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	reloader *reloader

	mu       sync.Mutex
	issued   uint64
	applied  uint64
	snapshot DetailSnapshot
}

type viewDeps struct {
	api     API
	logger  *zap.Logger
	metrics *observability.Metrics
	notify  Notifier
	changed chan struct{}
	window  time.Duration
}

func newDetailView(parent context.Context, id string, deps viewDeps) *DetailView {
	ctx, cancel := context.WithCancel(parent)
	v := &DetailView{
		id:      id,
		api:     deps.api,
		logger:  deps.logger.With(zap.String("conversation_id", id)),
		metrics: deps.metrics,
		notify:  deps.notify,
		changed: deps.changed,
		ctx:     ctx,
		cancel:  cancel,
	}
	v.reloader = newReloader(ctx, deps.window, func(ctx context.Context) {
		_ = v.Load(ctx)
	})
	return v
}

// ID returns the conversation id.
func (v *DetailView) ID() string {
	return v.id
}

// Snapshot returns a copy of the displayed state.
func (v *DetailView) Snapshot() DetailSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := v.snapshot
	snap.Messages = append([]domain.Message(nil), v.snapshot.Messages...)
	return snap
}

// Load fetches the conversation and replaces the snapshot. A result is
// discarded when the view has closed, the caller cancelled, or a load issued
// later has already been applied.
func (v *DetailView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.issued++
	gen := v.issued
	v.mu.Unlock()
	v.metrics.Inc(observability.ReloadsStarted)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.ctx, cancel)
	defer stop()

	detail, err := v.api.GetTicket(fetchCtx, v.id)

	v.mu.Lock()
	if fetchCtx.Err() != nil {
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsDiscarded)
		return context.Canceled
	}
	if gen < v.applied {
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsDiscarded)
		v.logger.Debug("discarding stale conversation load", zap.Uint64("generation", gen))
		return nil
	}
	if err != nil {
		v.snapshot.Err = err
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsFailed)
		v.logger.Warn("conversation load failed", zap.Error(err))
		v.notify.Notify(Notice{Level: NoticeError, Text: "Could not load conversation: " + apperrors.UserMessage(err), Err: err})
		signal(v.changed)
		return err
	}
	v.applied = gen
	v.snapshot = DetailSnapshot{
		Ticket:   detail.Ticket,
		Messages: domain.NormalizeThread(detail.Messages),
		Loaded:   true,
	}
	v.mu.Unlock()
	v.metrics.Inc(observability.ReloadsApplied)
	signal(v.changed)
	return nil
}

// requestReload schedules a background load tied to the view lifetime.
func (v *DetailView) requestReload() {
	v.reloader.trigger()
}

// appendLocal adds a message the server confirmed outside the event path.
// The next load replaces it with the authoritative thread.
func (v *DetailView) appendLocal(msg domain.Message) {
	v.mu.Lock()
	if v.ctx.Err() != nil {
		v.mu.Unlock()
		return
	}
	v.snapshot.Messages = domain.NormalizeThread(append(v.snapshot.Messages, msg))
	v.mu.Unlock()
	signal(v.changed)
}

func (v *DetailView) close() {
	v.cancel()
	v.reloader.stop()
}
