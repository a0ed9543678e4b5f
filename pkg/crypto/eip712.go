package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// EIP712Signer handles EIP-712 typed data signing for orders
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a new EIP-712 signer with given domain
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the exchange's EIP-712 domain. The verifying
// contract is the settlement contract so signatures are checkable on-chain.
func DefaultDomain(chainID *big.Int, settlementContract common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "DEX",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: settlementContract,
	}
}

var orderType = []apitypes.Type{
	{Name: "trader", Type: "address"},
	{Name: "baseToken", Type: "address"},
	{Name: "quoteToken", Type: "address"},
	{Name: "baseAmount", Type: "uint256"},
	{Name: "priceLevel", Type: "string"},
	{Name: "side", Type: "string"},
	{Name: "timestamp", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "salt", Type: "string"},
}

func (e *EIP712Signer) typedData(message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": orderType,
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: message,
	}
}

func makerMessage(o *order.MakerOrder) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"trader":     o.Trader.Hex(),
		"baseToken":  o.BaseToken.Hex(),
		"quoteToken": o.QuoteToken.Hex(),
		"baseAmount": o.BaseAmount.String(),
		"priceLevel": o.PriceLevel,
		"side":       string(o.Side),
		"timestamp":  fmt.Sprintf("%d", o.Timestamp),
		"deadline":   fmt.Sprintf("%d", o.Deadline),
		"salt":       o.Salt,
	}
}

func takerMessage(o *order.TakerOrder) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"trader":     o.Trader.Hex(),
		"baseToken":  o.BaseToken.Hex(),
		"quoteToken": o.QuoteToken.Hex(),
		"baseAmount": o.BaseAmount.String(),
		"priceLevel": o.PriceLevel,
		"side":       string(o.Side),
		"timestamp":  fmt.Sprintf("%d", o.Timestamp),
		"deadline":   fmt.Sprintf("%d", o.Deadline),
		"salt":       o.Salt,
	}
}

// HashMakerOrder hashes a maker order per the EIP-712 spec and returns the
// digest to be signed
func (e *EIP712Signer) HashMakerOrder(o *order.MakerOrder) ([]byte, error) {
	return e.digest(e.typedData(makerMessage(o)))
}

// HashTakerOrder hashes a taker order per the EIP-712 spec
func (e *EIP712Signer) HashTakerOrder(o *order.TakerOrder) ([]byte, error) {
	return e.digest(e.typedData(takerMessage(o)))
}

func (e *EIP712Signer) digest(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)

	return digest.Bytes(), nil
}

// SignMakerOrder signs a maker order and returns the hex signature
func (e *EIP712Signer) SignMakerOrder(signer *Signer, o *order.MakerOrder) (string, error) {
	hash, err := e.HashMakerOrder(o)
	if err != nil {
		return "", fmt.Errorf("failed to hash order: %w", err)
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign order: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignTakerOrder signs a taker order and returns the hex signature
func (e *EIP712Signer) SignTakerOrder(signer *Signer, o *order.TakerOrder) (string, error) {
	hash, err := e.HashTakerOrder(o)
	if err != nil {
		return "", fmt.Errorf("failed to hash order: %w", err)
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign order: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// VerifyMakerOrder checks the order signature against its trader address
func (e *EIP712Signer) VerifyMakerOrder(o *order.MakerOrder) (bool, error) {
	hash, err := e.HashMakerOrder(o)
	if err != nil {
		return false, fmt.Errorf("failed to hash order: %w", err)
	}
	return verifyHex(hash, o.Signature, o.Trader)
}

// VerifyTakerOrder checks the order signature against its trader address
func (e *EIP712Signer) VerifyTakerOrder(o *order.TakerOrder) (bool, error) {
	hash, err := e.HashTakerOrder(o)
	if err != nil {
		return false, fmt.Errorf("failed to hash order: %w", err)
	}
	return verifyHex(hash, o.Signature, o.Trader)
}

func verifyHex(hash []byte, sigHex string, trader common.Address) (bool, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == trader, nil
}

// MakerOrderToJSON renders a maker order as eth_signTypedData_v4 JSON for
// wallet signing
func (e *EIP712Signer) MakerOrderToJSON(o *order.MakerOrder) (string, error) {
	typedData := e.typedData(makerMessage(o))
	payload := map[string]interface{}{
		"types":       typedData.Types,
		"primaryType": typedData.PrimaryType,
		"domain": map[string]interface{}{
			"name":              e.domain.Name,
			"version":           e.domain.Version,
			"chainId":           e.domain.ChainID.String(),
			"verifyingContract": e.domain.VerifyingContract.Hex(),
		},
		"message": typedData.Message,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
