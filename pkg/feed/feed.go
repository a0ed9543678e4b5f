// Package feed publishes trade lifecycle events to downstream consumers.
package feed

import (
	"context"
	"encoding/json"
	"time"
)

// EventKind labels a trade lifecycle transition.
type EventKind string

const (
	EventTradePending   EventKind = "TRADE_PENDING"
	EventTradeConfirmed EventKind = "TRADE_CONFIRMED"
	EventTradeFailed    EventKind = "TRADE_FAILED"
)

// TradeEvent is the wire shape emitted for every trade transition.
type TradeEvent struct {
	Kind           EventKind `json:"kind"`
	PendingTradeID string    `json:"pendingTradeId"`
	Ticker         string    `json:"ticker"`
	MakerOrderID   string    `json:"makerOrderId"`
	TakerOrderID   string    `json:"takerOrderId"`
	BaseAmount     string    `json:"baseAmount"`
	QuoteAmount    string    `json:"quoteAmount"`
	TxHash         string    `json:"txHash,omitempty"`
	Timestamp      int64     `json:"timestamp"`
}

// Marshal renders the event as JSON for transports that carry raw bytes.
func (e TradeEvent) Marshal() ([]byte, error) { return json.Marshal(e) }

// Publisher delivers trade events. Publish must be safe for concurrent use;
// delivery failures are the publisher's to log, they never stall settlement.
type Publisher interface {
	Publish(ctx context.Context, event TradeEvent) error
	Close() error
}

// Multi fans an event out to several publishers, returning the first error
// after attempting all of them.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event TradeEvent) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stamp fills the event timestamp if the producer did not.
func Stamp(e TradeEvent) TradeEvent {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	return e
}
