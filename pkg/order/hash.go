package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashIDs derives the pending-trade id for a maker/taker pair. The two ids
// are sorted before hashing so the result is independent of argument order:
// HashIDs(a, b) == HashIDs(b, a).
func HashIDs(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return hexutil.Encode(crypto.Keccak256([]byte(a), []byte(b)))
}

var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiString, _  = abi.NewType("string", "", nil)

	makerIDArgs = abi.Arguments{
		{Type: abiAddress}, // trader
		{Type: abiAddress}, // baseToken
		{Type: abiAddress}, // quoteToken
		{Type: abiUint256}, // baseAmount
		{Type: abiUint256}, // baseAmountFilled
		{Type: abiString},  // priceLevel
		{Type: abiUint256}, // timestamp
		{Type: abiString},  // side
		{Type: abiUint256}, // deadline
	}

	takerIDArgs = abi.Arguments{
		{Type: abiAddress}, // trader
		{Type: abiAddress}, // baseToken
		{Type: abiAddress}, // quoteToken
		{Type: abiUint256}, // baseAmount
		{Type: abiString},  // priceLevel
		{Type: abiUint256}, // timestamp
		{Type: abiString},  // side
	}
)

// MakerOrderID computes the content-derived id of a maker order: the keccak
// hash of its ABI-encoded fields. Any change to the order content yields a
// different id, which is what makes duplicate detection sound.
func MakerOrderID(o *MakerOrder) (string, error) {
	enc, err := makerIDArgs.Pack(
		o.Trader,
		o.BaseToken,
		o.QuoteToken,
		o.BaseAmount,
		o.BaseAmountFilled,
		o.PriceLevel,
		big.NewInt(o.Timestamp),
		string(o.Side),
		big.NewInt(o.Deadline),
	)
	if err != nil {
		return "", fmt.Errorf("encode maker order: %w", err)
	}
	return hexutil.Encode(crypto.Keccak256(enc)), nil
}

// TakerOrderID computes the content-derived id of a taker order.
func TakerOrderID(o *TakerOrder) (string, error) {
	enc, err := takerIDArgs.Pack(
		o.Trader,
		o.BaseToken,
		o.QuoteToken,
		o.BaseAmount,
		o.PriceLevel,
		big.NewInt(o.Timestamp),
		string(o.Side),
	)
	if err != nil {
		return "", fmt.Errorf("encode taker order: %w", err)
	}
	return hexutil.Encode(crypto.Keccak256(enc)), nil
}
