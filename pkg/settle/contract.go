package settle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// settlementABI is the fragment of the on-chain settlement contract this
// core talks to: a single trade(...) entry point that verifies both order
// signatures and moves custody, returning true on success. The same call is
// used for dry-run simulation (eth_call) and real submission.
const settlementABI = `[{
	"type": "function",
	"name": "trade",
	"stateMutability": "nonpayable",
	"inputs": [{
		"name": "match",
		"type": "tuple",
		"components": [
			{"name": "makerOrderId",      "type": "string"},
			{"name": "maker",             "type": "address"},
			{"name": "baseToken",         "type": "address"},
			{"name": "quoteToken",        "type": "address"},
			{"name": "baseAmountFilled",  "type": "uint256"},
			{"name": "quoteAmountFilled", "type": "uint256"},
			{"name": "makerSignature",    "type": "bytes"},
			{"name": "makerTimestamp",    "type": "uint256"},
			{"name": "makerDeadline",     "type": "uint256"},
			{"name": "makerSalt",         "type": "string"},
			{"name": "makerSide",         "type": "bytes"},
			{"name": "taker",             "type": "address"},
			{"name": "takerOrderId",      "type": "string"},
			{"name": "takerSignature",    "type": "bytes"},
			{"name": "takerTimestamp",    "type": "uint256"}
		]
	}],
	"outputs": [{"name": "", "type": "bool"}]
}]`

// tradeArgs mirrors the tuple layout of the trade call.
type tradeArgs struct {
	MakerOrderId      string
	Maker             common.Address
	BaseToken         common.Address
	QuoteToken        common.Address
	BaseAmountFilled  *big.Int
	QuoteAmountFilled *big.Int
	MakerSignature    []byte
	MakerTimestamp    *big.Int
	MakerDeadline     *big.Int
	MakerSalt         string
	MakerSide         []byte
	Taker             common.Address
	TakerOrderId      string
	TakerSignature    []byte
	TakerTimestamp    *big.Int
}

func parseSettlementABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(settlementABI))
}

// packTrade ABI-encodes the trade call for a match.
func packTrade(contractABI abi.ABI, m *order.Match) ([]byte, error) {
	makerSig, err := decodeHexField("maker signature", m.MakerSignature)
	if err != nil {
		return nil, err
	}
	takerSig, err := decodeHexField("taker signature", m.TakerSignature)
	if err != nil {
		return nil, err
	}

	data, err := contractABI.Pack("trade", tradeArgs{
		MakerOrderId:      m.MakerOrderID,
		Maker:             m.Maker,
		BaseToken:         m.BaseToken,
		QuoteToken:        m.QuoteToken,
		BaseAmountFilled:  m.BaseAmountFilled,
		QuoteAmountFilled: m.QuoteAmountFilled,
		MakerSignature:    makerSig,
		MakerTimestamp:    big.NewInt(m.MakerTimestamp),
		MakerDeadline:     big.NewInt(m.MakerDeadline),
		MakerSalt:         m.MakerSalt,
		MakerSide:         []byte(m.MakerSide),
		Taker:             m.Taker,
		TakerOrderId:      m.TakerOrderID,
		TakerSignature:    takerSig,
		TakerTimestamp:    big.NewInt(m.TakerTimestamp),
	})
	if err != nil {
		return nil, fmt.Errorf("pack trade call: %w", err)
	}
	return data, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	if !strings.HasPrefix(value, "0x") {
		return nil, fmt.Errorf("%s: not 0x-prefixed hex", name)
	}
	b := common.FromHex(value)
	if len(b) == 0 && len(value) > 2 {
		return nil, fmt.Errorf("%s: malformed hex", name)
	}
	return b, nil
}
