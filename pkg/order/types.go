package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// MakerOrder is a resting limit order. It is immutable once created except
// for BaseAmountFilled, which accumulates as the order gets matched.
//
// Amounts are in the token's smallest unit (wei-scale) and routinely exceed
// the 53-bit safe-integer range, so they are always *big.Int. PriceLevel is
// a decimal string (e.g. "1800.50") and is converted to a fixed-point
// integer before any arithmetic.
type MakerOrder struct {
	ID               string         `json:"id"`
	Trader           common.Address `json:"trader"`
	BaseToken        common.Address `json:"baseToken"`
	BaseDecimals     uint8          `json:"baseDecimals"`
	QuoteToken       common.Address `json:"quoteToken"`
	QuoteDecimals    uint8          `json:"quoteDecimals"`
	BaseAmount       *big.Int       `json:"baseAmount"`
	BaseAmountFilled *big.Int       `json:"baseAmountFilled"`
	PriceLevel       string         `json:"priceLevel"`
	Side             Side           `json:"side"`
	Timestamp        int64          `json:"timestamp"` // unix seconds, set at submission
	Deadline         int64          `json:"deadline"`  // unix seconds, expiry
	Salt             string         `json:"salt"`
	Signature        string         `json:"signature"` // 0x-prefixed hex
}

// Remaining returns BaseAmount - BaseAmountFilled.
func (o *MakerOrder) Remaining() *big.Int {
	return new(big.Int).Sub(o.BaseAmount, o.BaseAmountFilled)
}

// TakerOrder is a market order with a price limit (the worst acceptable
// price). It consumes resting liquidity immediately and never rests itself.
type TakerOrder struct {
	ID            string         `json:"id"`
	Trader        common.Address `json:"trader"`
	BaseToken     common.Address `json:"baseToken"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteToken    common.Address `json:"quoteToken"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
	BaseAmount    *big.Int       `json:"baseAmount"`
	PriceLevel    string         `json:"priceLevel"`
	Side          Side           `json:"side"`
	Timestamp     int64          `json:"timestamp"`
	Deadline      int64          `json:"deadline"`
	Salt          string         `json:"salt"`
	Signature     string         `json:"signature"`
}

// Match is a single maker/taker pairing with an agreed fill, produced by the
// matching engine and immutable afterwards. It carries everything the
// settlement contract needs to verify both signatures and move custody.
type Match struct {
	PendingTradeID    string         `json:"pendingTradeId"`
	MakerOrderID      string         `json:"makerOrderId"`
	Maker             common.Address `json:"maker"`
	BaseToken         common.Address `json:"baseToken"`
	QuoteToken        common.Address `json:"quoteToken"`
	BaseAmountFilled  *big.Int       `json:"baseAmountFilled"`
	QuoteAmountFilled *big.Int       `json:"quoteAmountFilled"`
	MakerSignature    string         `json:"makerSignature"`
	MakerTimestamp    int64          `json:"makerTimestamp"`
	MakerDeadline     int64          `json:"makerDeadline"`
	MakerSalt         string         `json:"makerSalt"`
	MakerSide         Side           `json:"makerSide"`
	Taker             common.Address `json:"taker"`
	TakerOrderID      string         `json:"takerOrderId"`
	TakerSignature    string         `json:"takerSignature"`
	TakerTimestamp    int64          `json:"takerTimestamp"`
	TakerDeadline     int64          `json:"takerDeadline"`
	TakerSalt         string         `json:"takerSalt"`
}
