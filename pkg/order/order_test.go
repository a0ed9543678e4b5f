package order

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func sampleMaker() MakerOrder {
	return MakerOrder{
		ID:               "0xabc",
		Trader:           common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BaseToken:        common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteToken:       common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		BaseDecimals:     18,
		QuoteDecimals:    6,
		BaseAmount:       big.NewInt(1e18),
		BaseAmountFilled: big.NewInt(0),
		PriceLevel:       "2500.5",
		Side:             Sell,
		Timestamp:        1700000000,
		Deadline:         1700003600,
		Salt:             "42",
		Signature:        "0xaa",
	}
}

func sampleTaker() TakerOrder {
	return TakerOrder{
		ID:            "0xdef",
		Trader:        common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteToken:    common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		BaseDecimals:  18,
		QuoteDecimals: 6,
		BaseAmount:    big.NewInt(1e18),
		PriceLevel:    "2500.5",
		Side:          Buy,
		Timestamp:     1700000001,
		Deadline:      1700003600,
		Salt:          "43",
		Signature:     "0xbb",
	}
}

func TestSideHelpers(t *testing.T) {
	require.True(t, Buy.Valid())
	require.True(t, Sell.Valid())
	require.False(t, Side("HOLD").Valid())

	require.Equal(t, Sell, Buy.Opposite())
	require.Equal(t, Buy, Sell.Opposite())
}

func TestHashIDsOrderIndependent(t *testing.T) {
	a, b := "0xmaker", "0xtaker"
	require.Equal(t, HashIDs(a, b), HashIDs(b, a))
	require.NotEqual(t, HashIDs(a, b), HashIDs(a, "0xother"))
}

func TestMakerOrderIDContentDerived(t *testing.T) {
	m := sampleMaker()
	id1, err := MakerOrderID(&m)
	require.NoError(t, err)

	id2, err := MakerOrderID(&m)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "same content must hash to the same id")

	m.PriceLevel = "2500.6"
	id3, err := MakerOrderID(&m)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3, "changed content must change the id")
}

func TestTakerOrderIDContentDerived(t *testing.T) {
	tk := sampleTaker()
	id1, err := TakerOrderID(&tk)
	require.NoError(t, err)

	tk.BaseAmount = big.NewInt(2e18)
	id2, err := TakerOrderID(&tk)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestMakerOrderMapRoundTrip(t *testing.T) {
	m := sampleMaker()
	m.BaseAmountFilled = big.NewInt(3e17)

	got, err := MakerFromMap(m.ToMap())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestTakerOrderMapRoundTrip(t *testing.T) {
	tk := sampleTaker()

	got, err := TakerFromMap(tk.ToMap())
	require.NoError(t, err)
	require.Equal(t, tk, got)
}

func TestMatchMapRoundTrip(t *testing.T) {
	m := Match{
		PendingTradeID:    HashIDs("0xabc", "0xdef"),
		MakerOrderID:      "0xabc",
		Maker:             common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BaseToken:         common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteToken:        common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		BaseAmountFilled:  big.NewInt(1e18),
		QuoteAmountFilled: big.NewInt(2500500000),
		MakerSignature:    "0xaa",
		MakerTimestamp:    1700000000,
		MakerDeadline:     1700003600,
		MakerSalt:         "42",
		MakerSide:         Sell,
		Taker:             common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		TakerOrderID:      "0xdef",
		TakerSignature:    "0xbb",
		TakerTimestamp:    1700000001,
		TakerDeadline:     1700003600,
		TakerSalt:         "43",
	}

	got, err := MatchFromMap(m.ToMap())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestRemaining(t *testing.T) {
	m := sampleMaker()
	m.BaseAmount = big.NewInt(100)
	m.BaseAmountFilled = big.NewInt(30)
	require.Equal(t, big.NewInt(70), m.Remaining())
}

func TestRequestValidate(t *testing.T) {
	maker := sampleMaker()
	taker := sampleTaker()
	match := Match{PendingTradeID: "0x1"}

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"limit order ok", Request{Action: ActionNewLimitOrder, Maker: &maker}, false},
		{"limit order missing maker", Request{Action: ActionNewLimitOrder}, true},
		{"market order ok", Request{Action: ActionNewMarketOrder, Taker: &taker}, false},
		{"market order missing taker", Request{Action: ActionNewMarketOrder}, true},
		{"cancel needs only id", Request{Action: ActionCancelLimitOrder, Maker: &MakerOrder{ID: "0x1"}}, false},
		{"cancel missing id", Request{Action: ActionCancelLimitOrder, Maker: &MakerOrder{}}, true},
		{"trade ok", Request{Action: ActionTrade, Match: &match}, false},
		{"confirmed trade needs tx hash", Request{Action: ActionConfirmedTrade, Match: &match}, true},
		{"confirmed trade ok", Request{Action: ActionConfirmedTrade, Match: &match, TxHash: "0x2"}, false},
		{"failed trade ok", Request{Action: ActionFailedTrade, Match: &match}, false},
		{"unknown action", Request{Action: "NOOP"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRequestValidateRejectsBadAmounts(t *testing.T) {
	maker := sampleMaker()
	maker.BaseAmount = big.NewInt(0)
	err := (&Request{Action: ActionNewLimitOrder, Maker: &maker}).Validate()
	require.ErrorIs(t, err, ErrInvalidRequest)

	maker = sampleMaker()
	maker.BaseAmountFilled = big.NewInt(2e18) // exceeds base amount
	err = (&Request{Action: ActionNewLimitOrder, Maker: &maker}).Validate()
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	maker := sampleMaker()
	req := Request{Action: ActionNewLimitOrder, Maker: &maker}

	data, err := json.Marshal(&req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, ActionNewLimitOrder, got.Action)
	require.Equal(t, maker, *got.Maker)
}

func TestRequestEnvelopeCancelLenient(t *testing.T) {
	// Cancels arrive with only the id and token pair.
	raw := `{
		"action": "CANCEL_LIMIT_ORDER",
		"payload": {
			"order": {
				"id": "0xabc",
				"baseToken": "0x4200000000000000000000000000000000000006",
				"quoteToken": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
			}
		}
	}`

	var got Request
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.NoError(t, got.Validate())
	require.Equal(t, "0xabc", got.Maker.ID)
	require.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000006"), got.Maker.BaseToken)
}
