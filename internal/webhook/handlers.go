package webhook

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shohag/coinhook/internal/models"
)

const (
	EventNewPayment    = "wallet:addresses:new-payment"
	EventBuyCompleted  = "wallet:buys:completed"
	EventSellCompleted = "wallet:sells:completed"
)

// NewDefaultDispatcher returns a dispatcher with log-only handlers for the
// wallet events Coinbase sends.
func NewDefaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register(EventNewPayment, HandleNewPayment)
	d.Register(EventBuyCompleted, HandleBuyCompleted)
	d.Register(EventSellCompleted, HandleSellCompleted)
	return d
}

func HandleNewPayment(_ context.Context, log zerolog.Logger, evt *models.Event) error {
	logData(log.Info(), evt).Msg("new payment received")
	return nil
}

func HandleBuyCompleted(_ context.Context, log zerolog.Logger, evt *models.Event) error {
	logData(log.Info(), evt).Msg("buy completed")
	return nil
}

func HandleSellCompleted(_ context.Context, log zerolog.Logger, evt *models.Event) error {
	logData(log.Info(), evt).Msg("sell completed")
	return nil
}

func logData(e *zerolog.Event, evt *models.Event) *zerolog.Event {
	if len(evt.Data) == 0 {
		return e
	}
	return e.RawJSON("data", evt.Data)
}
