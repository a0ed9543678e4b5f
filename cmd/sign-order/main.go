// sign-order builds, signs and prints a ready-to-submit limit order. Useful
// for local testing without a wallet frontend.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/junhoyeo/dexmatch/params"
	"github.com/junhoyeo/dexmatch/pkg/crypto"
	"github.com/junhoyeo/dexmatch/pkg/order"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "trader private key hex; generated when empty")
		ticker   = flag.String("market", "WETH-USDC", "market ticker")
		side     = flag.String("side", "SELL", "BUY or SELL")
		amount   = flag.String("amount", "1000000000000000000", "base amount in base token units")
		price    = flag.String("price", "2500", "limit price, quote per base")
		ttl      = flag.Duration("ttl", time.Hour, "order lifetime")
		chainID  = flag.Int64("chain-id", 8453, "settlement chain id")
		contract = flag.String("contract", "", "settlement contract address")
	)
	flag.Parse()

	cfg := params.Default()
	info, ok := cfg.Markets[*ticker]
	if !ok {
		fatalf("unknown market %q", *ticker)
	}

	orderSide := order.Side(*side)
	if !orderSide.Valid() {
		fatalf("invalid side %q", *side)
	}

	baseAmount, ok := new(big.Int).SetString(*amount, 10)
	if !ok || baseAmount.Sign() <= 0 {
		fatalf("invalid amount %q", *amount)
	}

	var signer *crypto.Signer
	var err error
	if *keyHex == "" {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fatalf("key: %v", err)
	}
	fmt.Printf("Trader: %s\n\n", signer.Address().Hex())

	salt, err := crypto.GenerateSalt()
	if err != nil {
		fatalf("salt: %v", err)
	}

	now := time.Now()
	maker := &order.MakerOrder{
		Trader:        signer.Address(),
		BaseToken:     info.BaseToken,
		QuoteToken:    info.QuoteToken,
		BaseDecimals:  info.BaseDecimals,
		QuoteDecimals: info.QuoteDecimals,
		BaseAmount:    baseAmount,
		PriceLevel:    *price,
		Side:          orderSide,
		Timestamp:     now.Unix(),
		Deadline:      now.Add(*ttl).Unix(),
		Salt:          salt,
	}

	id, err := order.MakerOrderID(maker)
	if err != nil {
		fatalf("order id: %v", err)
	}
	maker.ID = id

	domain := crypto.DefaultDomain(big.NewInt(*chainID), common.HexToAddress(*contract))
	eip712 := crypto.NewEIP712Signer(domain)

	sig, err := eip712.SignMakerOrder(signer, maker)
	if err != nil {
		fatalf("sign: %v", err)
	}
	maker.Signature = sig

	ok, err = eip712.VerifyMakerOrder(maker)
	if err != nil || !ok {
		fatalf("signature did not verify: %v", err)
	}

	req := order.Request{Action: order.ActionNewLimitOrder, Maker: maker}
	body, err := json.MarshalIndent(&req, "", "  ")
	if err != nil {
		fatalf("marshal: %v", err)
	}

	fmt.Printf("Order ID: %s\n", maker.ID)
	fmt.Printf("Signature: %s\n\n", maker.Signature)
	fmt.Println("To submit:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
