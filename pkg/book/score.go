package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

const (
	// maxTimestamp bounds the normalized time term to a small positive
	// fraction so it breaks price ties without ever outweighing one price
	// step. 9,999,999,999 covers unix-second timestamps until year 2286.
	maxTimestamp = 9_999_999_999

	// priceMultiplier fixes price precision at 6 decimal places when the
	// price is folded into the index score.
	priceMultiplier = 1_000_000
)

// PriceTimeScore builds the composite score that orders the price index.
//
// SELL makers score priceInt + normalizedTime: lower price and earlier time
// scan first, cheapest offers ahead. BUY makers score -priceInt +
// normalizedTime: higher bids are more negative and scan first. The sign
// flip is what lets both sides share one index scanned ascending; SELL
// entries occupy (0, +inf) and BUY entries (-inf, 0).
func PriceTimeScore(priceLevel string, timestamp int64, side order.Side) (float64, error) {
	price, err := decimal.NewFromString(priceLevel)
	if err != nil {
		return 0, fmt.Errorf("%w: bad price level %q", order.ErrInvalidRequest, priceLevel)
	}
	if price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price level must be positive, got %q", order.ErrInvalidRequest, priceLevel)
	}

	priceInt := price.Mul(decimal.NewFromInt(priceMultiplier)).Round(0).InexactFloat64()
	normalizedTime := float64(timestamp) / maxTimestamp

	if side == order.Sell {
		return priceInt + normalizedTime, nil
	}
	return -priceInt + normalizedTime, nil
}
