package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/events"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

type emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Rooms tracks which conversation rooms the session is subscribed to.
// Several views may bind the same conversation; the room is left when the
// last of them releases it.
type Rooms struct {
	out    emitter
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]int
	// epoch advances on reset; bindings from an older epoch release nothing.
	epoch uint64
}

func newRooms(out emitter, logger *zap.Logger) *Rooms {
	return &Rooms{
		out:    out,
		logger: logger,
		counts: make(map[string]int),
	}
}

// Join subscribes to a conversation room and returns the func that releases
// this binding. A join command is sent on every call; the server treats
// repeated joins as a no-op. When the channel is down the room is still
// recorded and joined once the connection comes up.
func (r *Rooms) Join(ctx context.Context, conversationID string) func() {
	r.mu.Lock()
	r.counts[conversationID]++
	epoch := r.epoch
	r.mu.Unlock()

	r.send(ctx, r.out, events.CommandJoinRoom, conversationID)

	var once sync.Once
	return func() {
		once.Do(func() { r.release(conversationID, epoch) })
	}
}

// Count returns how many bindings hold a conversation room.
func (r *Rooms) Count(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[conversationID]
}

// Active lists the rooms with at least one binding, sorted.
func (r *Rooms) Active() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (r *Rooms) release(conversationID string, epoch uint64) {
	r.mu.Lock()
	n := r.counts[conversationID]
	if n == 0 || epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	last := n == 1
	if last {
		delete(r.counts, conversationID)
	} else {
		r.counts[conversationID] = n - 1
	}
	r.mu.Unlock()

	if last {
		r.send(context.Background(), r.out, events.CommandLeaveRoom, conversationID)
	}
}

func (r *Rooms) rejoin(out emitter) {
	for _, id := range r.Active() {
		r.send(context.Background(), out, events.CommandJoinRoom, id)
	}
}

func (r *Rooms) reset() {
	r.mu.Lock()
	r.counts = make(map[string]int)
	r.epoch++
	r.mu.Unlock()
}

func (r *Rooms) send(ctx context.Context, out emitter, command, conversationID string) {
	err := out.Emit(ctx, command, events.RoomPayload{TicketID: conversationID})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotConnected):
		r.logger.Debug("room command deferred until connected",
			zap.String("command", command), zap.String("conversation_id", conversationID))
	default:
		r.logger.Warn("room command failed",
			zap.String("command", command), zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
