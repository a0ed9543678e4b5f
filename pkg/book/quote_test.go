package book

import (
	"math/big"
	"testing"
)

func TestQuoteAmount(t *testing.T) {
	weth := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
	}

	tests := []struct {
		name          string
		base          *big.Int
		price         string
		baseDecimals  uint8
		quoteDecimals uint8
		want          string
	}{
		{
			name:          "one weth at 2500 usdc",
			base:          weth(1),
			price:         "2500",
			baseDecimals:  18,
			quoteDecimals: 6,
			want:          "2500000000",
		},
		{
			name:          "half weth at fractional price",
			base:          big.NewInt(5e17),
			price:         "2500.5",
			baseDecimals:  18,
			quoteDecimals: 6,
			want:          "1250250000",
		},
		{
			name:          "dust truncates to zero",
			base:          big.NewInt(1),
			price:         "0.5",
			baseDecimals:  18,
			quoteDecimals: 6,
			want:          "0",
		},
		{
			name:          "truncation drops the fractional unit",
			base:          big.NewInt(3),
			price:         "0.5",
			baseDecimals:  6,
			quoteDecimals: 6,
			want:          "1",
		},
		{
			name:          "coarse decimals",
			base:          big.NewInt(1000),
			price:         "1.5",
			baseDecimals:  3,
			quoteDecimals: 2,
			want:          "150",
		},
		{
			name:          "full precision price",
			base:          weth(1),
			price:         "0.000000000000000001",
			baseDecimals:  18,
			quoteDecimals: 18,
			want:          "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteAmount(tt.base, tt.price, tt.baseDecimals, tt.quoteDecimals)
			if err != nil {
				t.Fatalf("QuoteAmount: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("QuoteAmount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuoteAmountRejectsOverPrecisePrice(t *testing.T) {
	if _, err := QuoteAmount(big.NewInt(1e6), "0.0000000000000000001", 18, 6); err == nil {
		t.Error("want error for price with more than 18 decimal places")
	}
}

func TestQuoteAmountRejectsBadPrice(t *testing.T) {
	if _, err := QuoteAmount(big.NewInt(1e6), "not-a-price", 18, 6); err == nil {
		t.Error("want error for unparseable price")
	}
}
