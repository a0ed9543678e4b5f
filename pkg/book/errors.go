package book

import "errors"

// Synchronous failures returned to the caller of an order-book entry point.
// They never enter the pipeline.
var (
	// ErrOrderExists: an open-order record already exists for this id.
	ErrOrderExists = errors.New("order already exists")

	// ErrOrderNotFound: cancel of an order with no open record.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderInFlight: the order is committed to a pending match and may
	// not be cancelled until the trade resolves.
	ErrOrderInFlight = errors.New("order is in flight")

	// ErrTradeNotFound: no pending-trade record for this id.
	ErrTradeNotFound = errors.New("pending trade not found")
)
