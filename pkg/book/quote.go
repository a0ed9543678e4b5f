package book

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// pricePrecision is the fixed-point precision used when converting a decimal
// price string into an integer for settlement math.
const pricePrecision = 18

var bigTen = big.NewInt(10)

// QuoteAmount converts a base-token fill into the quote-token amount owed:
//
//	quote = floor(base * priceFixed * 10^quoteDecimals / 10^(baseDecimals+18))
//
// where priceFixed = priceLevel * 10^18 as an integer. The division
// truncates; rounding up could pay out more quote token than the maker
// actually escrowed.
func QuoteAmount(baseAmount *big.Int, priceLevel string, baseDecimals, quoteDecimals uint8) (*big.Int, error) {
	price, err := decimal.NewFromString(priceLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: bad price level %q", order.ErrInvalidRequest, priceLevel)
	}
	priceFixed := price.Shift(pricePrecision)
	if !priceFixed.IsInteger() {
		return nil, fmt.Errorf("%w: price level %q exceeds %d decimal places", order.ErrInvalidRequest, priceLevel, pricePrecision)
	}

	quote := new(big.Int).Mul(baseAmount, priceFixed.BigInt())
	quote.Mul(quote, pow10(int(quoteDecimals)))
	quote.Quo(quote, pow10(int(baseDecimals)+pricePrecision))
	return quote, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}
