package market

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	wbtc = common.HexToAddress("0x0555E30da8f98308EdB960aa94C0Db47230d2B9c")
)

func testRegistry() *Registry {
	return NewRegistry(map[string]Info{
		"WETH-USDC": {BaseToken: weth, BaseDecimals: 18, QuoteToken: usdc, QuoteDecimals: 6, Symbol: "WETH-USDC"},
		"WBTC-USDC": {BaseToken: wbtc, BaseDecimals: 8, QuoteToken: usdc, QuoteDecimals: 6, Symbol: "WBTC-USDC"},
	})
}

func TestTickerFor(t *testing.T) {
	r := testRegistry()

	ticker, err := r.TickerFor(weth, usdc)
	require.NoError(t, err)
	require.Equal(t, "WETH-USDC", ticker)

	// Pair direction matters: quote/base is not a market.
	_, err = r.TickerFor(usdc, weth)
	require.ErrorIs(t, err, ErrMarketNotFound)
}

func TestGet(t *testing.T) {
	r := testRegistry()

	info, err := r.Get("WBTC-USDC")
	require.NoError(t, err)
	require.Equal(t, uint8(8), info.BaseDecimals)

	_, err = r.Get("DOGE-USDC")
	require.ErrorIs(t, err, ErrMarketNotFound)
}

func TestTickersStableOrder(t *testing.T) {
	r := testRegistry()
	require.Equal(t, []string{"WBTC-USDC", "WETH-USDC"}, r.Tickers())
}
