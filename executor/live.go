package executor

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/pohanwww/auto-trade/core"
	"github.com/pohanwww/auto-trade/logger"
)

// Broker is the external adapter the live Executor drives: order
// placement and status polling only. Account queries, auth and
// connection management belong to the adapter implementation, not to
// this engine.
type Broker interface {
	PlaceMarketOrder(ctx context.Context, action core.OrderAction) (orderID string, err error)
	OrderStatus(ctx context.Context, orderID string) (Deal, error)
}

// Deal is one broker order-status snapshot.
type Deal struct {
	Status   DealStatus
	Price    float64
	Time     time.Time
	FilledQty int
}

// DealStatus is the broker's reported order state.
type DealStatus int

const (
	DealPending DealStatus = iota
	DealFilled
	DealCancelled
	DealFailed
)

// Live places a market order via the broker adapter, then polls order
// status for up to timeout, backing off between polls.
type Live struct {
	broker       Broker
	log          logger.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// NewLive builds a Live executor. timeout bounds the whole poll loop;
// pollInterval is the floor of the backoff schedule between polls.
func NewLive(broker Broker, log logger.Logger, timeout, pollInterval time.Duration) *Live {
	return &Live{broker: broker, log: log, timeout: timeout, pollInterval: pollInterval}
}

// Execute places the order and polls until filled, cancelled, failed,
// or timeout — a timed-out poll is treated as a cancellation. There is
// no speculative retry at this layer; the driver decides whether to
// try again.
func (e *Live) Execute(action core.OrderAction) core.FillResult {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	orderID, err := e.broker.PlaceMarketOrder(ctx, action)
	if err != nil {
		e.log.WithError(err).Warn("live executor: order placement failed")
		return core.FillResult{Success: false, Message: err.Error()}
	}

	b := &backoff.Backoff{
		Min:    e.pollInterval,
		Max:    e.pollInterval * 8,
		Factor: 2,
		Jitter: true,
	}

	for {
		deal, err := e.broker.OrderStatus(ctx, orderID)
		if err != nil {
			e.log.WithError(err).Warn("live executor: order status poll failed")
		} else {
			switch deal.Status {
			case DealFilled:
				if deal.FilledQty <= 0 {
					return core.FillResult{Success: false, OrderID: orderID, Message: "filled status with no deal info"}
				}
				return core.FillResult{
					Success:   true,
					FillPrice: deal.Price,
					FillTime:  deal.Time,
					FillQty:   deal.FilledQty,
					OrderID:   orderID,
				}
			case DealCancelled, DealFailed:
				return core.FillResult{Success: false, OrderID: orderID, Message: "order cancelled or failed"}
			}
		}

		select {
		case <-ctx.Done():
			return core.FillResult{Success: false, OrderID: orderID, Message: "timeout waiting for fill"}
		case <-time.After(b.Duration()):
		}
	}
}
