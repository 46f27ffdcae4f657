package webhook

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shohag/coinhook/internal/models"
)

// HandlerFunc processes one event type. log already carries the event's
// receipt ID and type.
type HandlerFunc func(ctx context.Context, log zerolog.Logger, evt *models.Event) error

// Dispatcher routes events to handlers by exact match on Event.Type.
// Registration is not synchronized; finish it before serving requests.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		fallback: handleUnknown,
	}
}

// Register binds fn to eventType, replacing any previous handler.
func (d *Dispatcher) Register(eventType string, fn HandlerFunc) {
	d.handlers[eventType] = fn
}

// SetFallback replaces the handler used for unregistered event types.
func (d *Dispatcher) SetFallback(fn HandlerFunc) {
	if fn == nil {
		fn = handleUnknown
	}
	d.fallback = fn
}

// Handles reports whether eventType has a registered handler.
func (d *Dispatcher) Handles(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// EventTypes returns the registered event types, sorted.
func (d *Dispatcher) EventTypes() []string {
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch runs the handler for evt.Type, or the fallback. handled is false
// when the fallback ran.
func (d *Dispatcher) Dispatch(ctx context.Context, log zerolog.Logger, evt *models.Event) (handled bool, err error) {
	if fn, ok := d.handlers[evt.Type]; ok {
		return true, fn(ctx, log, evt)
	}
	return false, d.fallback(ctx, log, evt)
}

func handleUnknown(_ context.Context, log zerolog.Logger, evt *models.Event) error {
	log.Info().Str("event_type", evt.Type).Msg("unhandled event type")
	return nil
}
