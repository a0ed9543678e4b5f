// Package market holds the static market configuration: which ticker maps to
// which token pair. The registry is built once at construction and never
// mutated afterwards, so it is safe for concurrent reads without locking.
package market

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMarketNotFound is returned when a token pair has no configured market.
var ErrMarketNotFound = errors.New("market not found")

// Info describes one tradable market.
type Info struct {
	BaseToken     common.Address `json:"baseToken"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteToken    common.Address `json:"quoteToken"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
	Symbol        string         `json:"symbol"`
}

// Registry resolves tickers to market info and token pairs back to tickers.
type Registry struct {
	byTicker    map[string]Info
	byTokenPair map[string]string
}

// NewRegistry builds a registry from a ticker -> info table. The reverse
// token-pair -> ticker mapping is derived here.
func NewRegistry(markets map[string]Info) *Registry {
	r := &Registry{
		byTicker:    make(map[string]Info, len(markets)),
		byTokenPair: make(map[string]string, len(markets)),
	}
	for ticker, info := range markets {
		r.byTicker[ticker] = info
		r.byTokenPair[pairKey(info.BaseToken, info.QuoteToken)] = ticker
	}
	return r
}

// TickerFor resolves the market a token pair belongs to.
func (r *Registry) TickerFor(baseToken, quoteToken common.Address) (string, error) {
	ticker, ok := r.byTokenPair[pairKey(baseToken, quoteToken)]
	if !ok {
		return "", fmt.Errorf("%w: %s:%s", ErrMarketNotFound, baseToken.Hex(), quoteToken.Hex())
	}
	return ticker, nil
}

// Get returns the market info for a ticker.
func (r *Registry) Get(ticker string) (Info, error) {
	info, ok := r.byTicker[ticker]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrMarketNotFound, ticker)
	}
	return info, nil
}

// Tickers returns all configured tickers in stable order.
func (r *Registry) Tickers() []string {
	out := make([]string, 0, len(r.byTicker))
	for t := range r.byTicker {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func pairKey(base, quote common.Address) string {
	return base.Hex() + ":" + quote.Hex()
}
