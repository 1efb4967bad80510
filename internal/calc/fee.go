package calc

import "math"

type FeeSplit struct {
	Amount      int64   `json:"amount"`
	PlatformFee int64   `json:"platform_fee"`
	NetAmount   int64   `json:"net_amount"`
	FeeRate     float64 `json:"fee_rate"`
}

// SplitFee 以分计算，手续费四舍五入，保证 fee+net == amount
func SplitFee(amount int64, rate float64) FeeSplit {
	if amount <= 0 {
		return FeeSplit{FeeRate: rate}
	}
	if rate < 0 {
		rate = 0
	}
	fee := int64(math.Floor(float64(amount)*rate + 0.5))
	if fee > amount {
		fee = amount
	}
	return FeeSplit{
		Amount:      amount,
		PlatformFee: fee,
		NetAmount:   amount - fee,
		FeeRate:     rate,
	}
}
