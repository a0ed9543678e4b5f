package order

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Action tags an inbound request.
type Action string

const (
	ActionNewLimitOrder    Action = "NEW_LIMIT_ORDER"
	ActionCancelLimitOrder Action = "CANCEL_LIMIT_ORDER"
	ActionNewMarketOrder   Action = "NEW_MARKET_ORDER"
	ActionTrade            Action = "TRADE"
	ActionConfirmedTrade   Action = "CONFIRMED_TRADE"
	ActionFailedTrade      Action = "FAILED_TRADE"
)

// ErrInvalidRequest is returned when a request payload does not match its
// action tag. It is raised before any book state is touched.
var ErrInvalidRequest = errors.New("invalid request payload")

// Request is the tagged union carried by the order intake stage. Exactly one
// payload field is meaningful for a given action:
//
//	NEW_LIMIT_ORDER, CANCEL_LIMIT_ORDER  -> Maker
//	NEW_MARKET_ORDER                     -> Taker
//	TRADE, FAILED_TRADE                  -> Match
//	CONFIRMED_TRADE                      -> Match + TxHash
type Request struct {
	Action Action      `json:"action"`
	Maker  *MakerOrder `json:"-"`
	Taker  *TakerOrder `json:"-"`
	Match  *Match      `json:"-"`
	TxHash string      `json:"-"`
}

// Validate checks that the payload matches the action tag. Amount and side
// sanity is checked here as well so malformed requests never reach the book.
func (r *Request) Validate() error {
	switch r.Action {
	case ActionNewLimitOrder:
		if r.Maker == nil {
			return fmt.Errorf("%w: %s requires a maker order", ErrInvalidRequest, r.Action)
		}
		return validateMaker(r.Maker)
	case ActionCancelLimitOrder:
		// Only the id and token pair are required for cancellation.
		if r.Maker == nil || r.Maker.ID == "" {
			return fmt.Errorf("%w: %s requires an order id", ErrInvalidRequest, r.Action)
		}
		return nil
	case ActionNewMarketOrder:
		if r.Taker == nil {
			return fmt.Errorf("%w: %s requires a taker order", ErrInvalidRequest, r.Action)
		}
		return validateTaker(r.Taker)
	case ActionTrade, ActionFailedTrade:
		if r.Match == nil || r.Match.PendingTradeID == "" {
			return fmt.Errorf("%w: %s requires a match", ErrInvalidRequest, r.Action)
		}
		return nil
	case ActionConfirmedTrade:
		if r.Match == nil || r.Match.PendingTradeID == "" || r.TxHash == "" {
			return fmt.Errorf("%w: %s requires a match and tx hash", ErrInvalidRequest, r.Action)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidRequest, r.Action)
	}
}

func validateMaker(o *MakerOrder) error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: maker order missing id", ErrInvalidRequest)
	case !o.Side.Valid():
		return fmt.Errorf("%w: maker order side %q", ErrInvalidRequest, o.Side)
	case o.BaseAmount == nil || o.BaseAmount.Sign() <= 0:
		return fmt.Errorf("%w: maker order base amount must be positive", ErrInvalidRequest)
	case o.BaseAmountFilled == nil || o.BaseAmountFilled.Sign() < 0:
		return fmt.Errorf("%w: maker order filled amount must be non-negative", ErrInvalidRequest)
	case o.BaseAmountFilled.Cmp(o.BaseAmount) > 0:
		return fmt.Errorf("%w: maker order filled amount exceeds base amount", ErrInvalidRequest)
	case o.PriceLevel == "":
		return fmt.Errorf("%w: maker order missing price level", ErrInvalidRequest)
	}
	return nil
}

func validateTaker(o *TakerOrder) error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: taker order missing id", ErrInvalidRequest)
	case !o.Side.Valid():
		return fmt.Errorf("%w: taker order side %q", ErrInvalidRequest, o.Side)
	case o.BaseAmount == nil || o.BaseAmount.Sign() <= 0:
		return fmt.Errorf("%w: taker order base amount must be positive", ErrInvalidRequest)
	case o.PriceLevel == "":
		return fmt.Errorf("%w: taker order missing price level", ErrInvalidRequest)
	}
	return nil
}

// requestEnvelope is the wire shape of a Request. The order field is decoded
// as maker or taker depending on the action.
type requestEnvelope struct {
	Action  Action `json:"action"`
	Payload struct {
		Order  json.RawMessage `json:"order,omitempty"`
		Match  *Match          `json:"match,omitempty"`
		TxHash string          `json:"txHash,omitempty"`
	} `json:"payload"`
}

// UnmarshalJSON decodes the envelope form used on the wire.
func (r *Request) UnmarshalJSON(data []byte) error {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	// Wire alias kept for older producers.
	if env.Action == "PENDING_TRADE" {
		env.Action = ActionTrade
	}

	out := Request{Action: env.Action, Match: env.Payload.Match, TxHash: env.Payload.TxHash}
	switch env.Action {
	case ActionNewLimitOrder:
		if len(env.Payload.Order) > 0 {
			out.Maker = new(MakerOrder)
			if err := json.Unmarshal(env.Payload.Order, out.Maker); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
		}
	case ActionCancelLimitOrder:
		// A cancel only carries the order id and token pair; decode leniently
		// instead of demanding a full maker order.
		if len(env.Payload.Order) > 0 {
			var fields map[string]string
			if err := json.Unmarshal(env.Payload.Order, &fields); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
			out.Maker = &MakerOrder{
				ID:         fields["id"],
				BaseToken:  common.HexToAddress(fields["baseToken"]),
				QuoteToken: common.HexToAddress(fields["quoteToken"]),
			}
		}
	case ActionNewMarketOrder:
		if len(env.Payload.Order) > 0 {
			out.Taker = new(TakerOrder)
			if err := json.Unmarshal(env.Payload.Order, out.Taker); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
		}
	}
	*r = out
	return nil
}

// MarshalJSON encodes the envelope form used on the wire.
func (r Request) MarshalJSON() ([]byte, error) {
	var env requestEnvelope
	env.Action = r.Action
	env.Payload.Match = r.Match
	env.Payload.TxHash = r.TxHash
	if r.Maker != nil {
		raw, err := json.Marshal(r.Maker)
		if err != nil {
			return nil, err
		}
		env.Payload.Order = raw
	} else if r.Taker != nil {
		raw, err := json.Marshal(r.Taker)
		if err != nil {
			return nil, err
		}
		env.Payload.Order = raw
	}
	return json.Marshal(env)
}
