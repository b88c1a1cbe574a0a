package web3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of ether and the launchpad token.
const TokenDecimals = 18

// ParseEther converts a decimal amount such as "0.05" into wei.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, TokenDecimals)
}

// ParseUnits scales a decimal string by 10^decimals. Fractions finer than the
// precision are rejected rather than truncated.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("无效的数量 %q: %w", amount, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("数量不能为负数: %s", amount)
	}
	scaled := value.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("数量 %s 超出 %d 位精度", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -TokenDecimals).String()
}
