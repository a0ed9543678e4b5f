package order

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// The store keeps orders and matches as flat string maps (hash-shaped
// records). These codecs are the only place that shape is known; everything
// else works with the typed structs. Amounts travel as decimal strings on
// both the wire and the store because they exceed float precision.

// ToMap flattens a maker order into a store record.
func (o *MakerOrder) ToMap() map[string]string {
	return map[string]string{
		"id":               o.ID,
		"trader":           o.Trader.Hex(),
		"baseToken":        o.BaseToken.Hex(),
		"baseDecimals":     strconv.Itoa(int(o.BaseDecimals)),
		"quoteToken":       o.QuoteToken.Hex(),
		"quoteDecimals":    strconv.Itoa(int(o.QuoteDecimals)),
		"baseAmount":       bigString(o.BaseAmount),
		"baseAmountFilled": bigString(o.BaseAmountFilled),
		"priceLevel":       o.PriceLevel,
		"side":             string(o.Side),
		"timestamp":        strconv.FormatInt(o.Timestamp, 10),
		"deadline":         strconv.FormatInt(o.Deadline, 10),
		"salt":             o.Salt,
		"signature":        o.Signature,
	}
}

// MakerFromMap rebuilds a maker order from a store record.
func MakerFromMap(m map[string]string) (MakerOrder, error) {
	o := MakerOrder{
		ID:         m["id"],
		Trader:     common.HexToAddress(m["trader"]),
		BaseToken:  common.HexToAddress(m["baseToken"]),
		QuoteToken: common.HexToAddress(m["quoteToken"]),
		PriceLevel: m["priceLevel"],
		Side:       Side(m["side"]),
		Salt:       m["salt"],
		Signature:  m["signature"],
	}
	var err error
	if o.BaseDecimals, err = parseDecimals(m["baseDecimals"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.QuoteDecimals, err = parseDecimals(m["quoteDecimals"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.BaseAmount, err = parseAmount(m["baseAmount"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.BaseAmountFilled, err = parseAmount(m["baseAmountFilled"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.Timestamp, err = parseUnix(m["timestamp"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.Deadline, err = parseUnix(m["deadline"]); err != nil {
		return MakerOrder{}, fmt.Errorf("maker order %s: %w", o.ID, err)
	}
	if o.ID == "" || !o.Side.Valid() {
		return MakerOrder{}, fmt.Errorf("maker order %s: corrupt record", o.ID)
	}
	return o, nil
}

// ToMap flattens a taker order into a store record.
func (o *TakerOrder) ToMap() map[string]string {
	return map[string]string{
		"id":            o.ID,
		"trader":        o.Trader.Hex(),
		"baseToken":     o.BaseToken.Hex(),
		"baseDecimals":  strconv.Itoa(int(o.BaseDecimals)),
		"quoteToken":    o.QuoteToken.Hex(),
		"quoteDecimals": strconv.Itoa(int(o.QuoteDecimals)),
		"baseAmount":    bigString(o.BaseAmount),
		"priceLevel":    o.PriceLevel,
		"side":          string(o.Side),
		"timestamp":     strconv.FormatInt(o.Timestamp, 10),
		"deadline":      strconv.FormatInt(o.Deadline, 10),
		"salt":          o.Salt,
		"signature":     o.Signature,
	}
}

// TakerFromMap rebuilds a taker order from a store record.
func TakerFromMap(m map[string]string) (TakerOrder, error) {
	o := TakerOrder{
		ID:         m["id"],
		Trader:     common.HexToAddress(m["trader"]),
		BaseToken:  common.HexToAddress(m["baseToken"]),
		QuoteToken: common.HexToAddress(m["quoteToken"]),
		PriceLevel: m["priceLevel"],
		Side:       Side(m["side"]),
		Salt:       m["salt"],
		Signature:  m["signature"],
	}
	var err error
	if o.BaseDecimals, err = parseDecimals(m["baseDecimals"]); err != nil {
		return TakerOrder{}, fmt.Errorf("taker order %s: %w", o.ID, err)
	}
	if o.QuoteDecimals, err = parseDecimals(m["quoteDecimals"]); err != nil {
		return TakerOrder{}, fmt.Errorf("taker order %s: %w", o.ID, err)
	}
	if o.BaseAmount, err = parseAmount(m["baseAmount"]); err != nil {
		return TakerOrder{}, fmt.Errorf("taker order %s: %w", o.ID, err)
	}
	if o.Timestamp, err = parseUnix(m["timestamp"]); err != nil {
		return TakerOrder{}, fmt.Errorf("taker order %s: %w", o.ID, err)
	}
	if o.Deadline, err = parseUnix(m["deadline"]); err != nil {
		return TakerOrder{}, fmt.Errorf("taker order %s: %w", o.ID, err)
	}
	if o.ID == "" || !o.Side.Valid() {
		return TakerOrder{}, fmt.Errorf("taker order %s: corrupt record", o.ID)
	}
	return o, nil
}

// ToMap flattens a match into a pending-trade record.
func (m *Match) ToMap() map[string]string {
	return map[string]string{
		"pendingTradeId":    m.PendingTradeID,
		"makerOrderId":      m.MakerOrderID,
		"maker":             m.Maker.Hex(),
		"baseToken":         m.BaseToken.Hex(),
		"quoteToken":        m.QuoteToken.Hex(),
		"baseAmountFilled":  m.BaseAmountFilled.String(),
		"quoteAmountFilled": m.QuoteAmountFilled.String(),
		"makerSignature":    m.MakerSignature,
		"makerTimestamp":    strconv.FormatInt(m.MakerTimestamp, 10),
		"makerDeadline":     strconv.FormatInt(m.MakerDeadline, 10),
		"makerSalt":         m.MakerSalt,
		"makerSide":         string(m.MakerSide),
		"taker":             m.Taker.Hex(),
		"takerOrderId":      m.TakerOrderID,
		"takerSignature":    m.TakerSignature,
		"takerTimestamp":    strconv.FormatInt(m.TakerTimestamp, 10),
		"takerDeadline":     strconv.FormatInt(m.TakerDeadline, 10),
		"takerSalt":         m.TakerSalt,
	}
}

// MatchFromMap rebuilds a match from a pending-trade record.
func MatchFromMap(rec map[string]string) (Match, error) {
	m := Match{
		PendingTradeID: rec["pendingTradeId"],
		MakerOrderID:   rec["makerOrderId"],
		Maker:          common.HexToAddress(rec["maker"]),
		BaseToken:      common.HexToAddress(rec["baseToken"]),
		QuoteToken:     common.HexToAddress(rec["quoteToken"]),
		MakerSignature: rec["makerSignature"],
		MakerSalt:      rec["makerSalt"],
		MakerSide:      Side(rec["makerSide"]),
		Taker:          common.HexToAddress(rec["taker"]),
		TakerOrderID:   rec["takerOrderId"],
		TakerSignature: rec["takerSignature"],
		TakerSalt:      rec["takerSalt"],
	}
	var err error
	if m.BaseAmountFilled, err = parseAmount(rec["baseAmountFilled"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.QuoteAmountFilled, err = parseAmount(rec["quoteAmountFilled"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.MakerTimestamp, err = parseUnix(rec["makerTimestamp"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.MakerDeadline, err = parseUnix(rec["makerDeadline"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.TakerTimestamp, err = parseUnix(rec["takerTimestamp"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.TakerDeadline, err = parseUnix(rec["takerDeadline"]); err != nil {
		return Match{}, fmt.Errorf("match %s: %w", m.PendingTradeID, err)
	}
	if m.PendingTradeID == "" {
		return Match{}, fmt.Errorf("match: corrupt record, missing pending trade id")
	}
	return m, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return v, nil
}

func parseDecimals(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("bad decimals %q", s)
	}
	return uint8(v), nil
}

func parseUnix(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return v, nil
}

// JSON forms. Amounts are decimal strings on the wire as well; a raw JSON
// number would lose precision in any client that parses it as a float.

func (o MakerOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToMap())
}

func (o *MakerOrder) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := MakerFromMap(m)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o TakerOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToMap())
}

func (o *TakerOrder) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := TakerFromMap(m)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (m Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *Match) UnmarshalJSON(data []byte) error {
	var rec map[string]string
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	parsed, err := MatchFromMap(rec)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
