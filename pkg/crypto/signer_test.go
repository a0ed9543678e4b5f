package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := common.Bytes2Hex(eth_crypto.FromECDSA(signer1.PrivateKey()))
	expectedAddr := signer1.Address()

	// Load without prefix
	signer2, err := FromPrivateKeyHex(privHex)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if signer2.Address() != expectedAddr {
		t.Errorf("address = %s, want %s", signer2.Address().Hex(), expectedAddr.Hex())
	}

	// Load with 0x prefix
	signer3, err := FromPrivateKeyHex("0x" + privHex)
	if err != nil {
		t.Fatalf("failed to load prefixed key: %v", err)
	}
	if signer3.Address() != expectedAddr {
		t.Errorf("prefixed address = %s, want %s", signer3.Address().Hex(), expectedAddr.Hex())
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()

	hash := eth_crypto.Keccak256Hash([]byte("order digest")).Bytes()
	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	// Signature should be 65 bytes [R || S || V]
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	if !VerifySignature(signer.Address(), hash, signature) {
		t.Error("signature verification failed")
	}

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if VerifySignature(wrongAddr, hash, signature) {
		t.Error("signature should not verify with wrong address")
	}
}

func TestRecoverAddress(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256Hash([]byte("recovery test")).Bytes()

	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	recoveredAddr, err := RecoverAddress(hash, signature)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recoveredAddr != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recoveredAddr.Hex(), signer.Address().Hex())
	}
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256Hash([]byte("test")).Bytes()

	if VerifySignature(signer.Address(), hash, []byte{1, 2, 3}) {
		t.Error("invalid signature should not verify")
	}

	validLen := make([]byte, 65)
	if VerifySignature(signer.Address(), []byte("short"), validLen) {
		t.Error("invalid hash should not verify")
	}
}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}
	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("failed to generate second salt: %v", err)
	}

	// Salts should differ (statistically)
	if salt1 == salt2 {
		t.Error("generated identical salts (unlikely but possible - retry test)")
	}
}

func TestEIP712OrderRoundTrip(t *testing.T) {
	signerKey, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain(big.NewInt(8453), common.HexToAddress("0x00000000000000000000000000000000000000dd")))

	maker := &order.MakerOrder{
		Trader:        signerKey.Address(),
		BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteToken:    common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		BaseDecimals:  18,
		QuoteDecimals: 6,
		BaseAmount:    big.NewInt(1e18),
		PriceLevel:    "2500.5",
		Side:          order.Sell,
		Timestamp:     1700000000,
		Deadline:      1700003600,
		Salt:          "12345",
	}

	sig, err := e.SignMakerOrder(signerKey, maker)
	if err != nil {
		t.Fatalf("failed to sign maker order: %v", err)
	}
	maker.Signature = sig

	ok, err := e.VerifyMakerOrder(maker)
	if err != nil {
		t.Fatalf("failed to verify maker order: %v", err)
	}
	if !ok {
		t.Error("maker signature did not verify")
	}

	// Tampering with any signed field must break verification
	maker.PriceLevel = "2500.6"
	ok, err = e.VerifyMakerOrder(maker)
	if err != nil {
		t.Fatalf("failed to verify tampered order: %v", err)
	}
	if ok {
		t.Error("tampered order should not verify")
	}
}
