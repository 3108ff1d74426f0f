package desk

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/observability"
	"github.com/vendorhub/ticket-sync/internal/restapi"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// ListFilter selects which conversations the list shows.
type ListFilter struct {
	Status domain.StatusBucket
	Search string
	Page   int
}

// ListSnapshot is what a list view currently displays.
type ListSnapshot struct {
	Filter     ListFilter
	Items      []domain.TicketSummary
	Pagination domain.Pagination
	Loaded     bool
	Err        error
}

// ListView holds the filtered conversation summaries.
type ListView struct {
	api      API
	logger   *zap.Logger
	metrics  *observability.Metrics
	notify   Notifier
	changed  chan struct{}
	preview  config.PreviewMode
	pageSize int

	ctx      context.Context
	cancel   context.CancelFunc
	reloader *reloader

	mu       sync.Mutex
	issued   uint64
	applied  uint64
	snapshot ListSnapshot
}

func newListView(parent context.Context, filter ListFilter, preview config.PreviewMode, pageSize int, deps viewDeps) *ListView {
	ctx, cancel := context.WithCancel(parent)
	if filter.Status == "" {
		filter.Status = domain.BucketAll
	}
	v := &ListView{
		api:      deps.api,
		logger:   deps.logger,
		metrics:  deps.metrics,
		notify:   deps.notify,
		changed:  deps.changed,
		preview:  preview,
		pageSize: pageSize,
		ctx:      ctx,
		cancel:   cancel,
		snapshot: ListSnapshot{Filter: filter},
	}
	v.reloader = newReloader(ctx, deps.window, func(ctx context.Context) {
		_ = v.Refresh(ctx)
	})
	return v
}

// Snapshot returns a copy of the displayed state.
func (v *ListView) Snapshot() ListSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := v.snapshot
	snap.Items = append([]domain.TicketSummary(nil), v.snapshot.Items...)
	return snap
}

// SetFilter replaces the filter and refreshes.
func (v *ListView) SetFilter(ctx context.Context, filter ListFilter) error {
	if filter.Status == "" {
		filter.Status = domain.BucketAll
	}
	v.mu.Lock()
	v.snapshot.Filter = filter
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// Refresh re-fetches the summaries for the current filter and replaces the
// list. Rows outside the status bucket are dropped even if the server
// returned them.
func (v *ListView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.issued++
	gen := v.issued
	filter := v.snapshot.Filter
	v.mu.Unlock()
	v.metrics.Inc(observability.ReloadsStarted)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.ctx, cancel)
	defer stop()

	page, err := v.api.ListTickets(fetchCtx, restapi.ListQuery{
		Status: filter.Status,
		Search: filter.Search,
		Page:   filter.Page,
		Limit:  v.pageSize,
	})

	v.mu.Lock()
	if fetchCtx.Err() != nil {
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsDiscarded)
		return context.Canceled
	}
	if gen < v.applied || v.snapshot.Filter != filter {
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsDiscarded)
		return nil
	}
	if err != nil {
		v.snapshot.Err = err
		v.mu.Unlock()
		v.metrics.Inc(observability.ReloadsFailed)
		v.logger.Warn("ticket list refresh failed", zap.Error(err))
		v.notify.Notify(Notice{Level: NoticeError, Text: "Could not load tickets: " + apperrors.UserMessage(err), Err: err})
		signal(v.changed)
		return err
	}
	v.applied = gen
	v.snapshot = ListSnapshot{
		Filter:     filter,
		Items:      v.project(filter, page.Items),
		Pagination: page.Pagination,
		Loaded:     true,
	}
	v.mu.Unlock()
	v.metrics.Inc(observability.ReloadsApplied)
	signal(v.changed)
	return nil
}

func (v *ListView) project(filter ListFilter, items []domain.TicketSummary) []domain.TicketSummary {
	out := make([]domain.TicketSummary, 0, len(items))
	for _, item := range items {
		if !filter.Status.Matches(item.Status) {
			continue
		}
		if v.preview != config.PreviewFull {
			item.HasLastMessage = item.HasLastMessage || strings.TrimSpace(item.LastMessage) != ""
			item.LastMessage = ""
		}
		out = append(out, item)
	}
	return out
}

func (v *ListView) requestReload() {
	v.reloader.trigger()
}

func (v *ListView) close() {
	v.cancel()
	v.reloader.stop()
}
