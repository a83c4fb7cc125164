package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

var executed = time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)

func sampleTrade() TradeRecord {
	return TradeRecord{
		TradeID:    "01HRZ8Q6J3XK1B2C3D4E5F6G7H",
		OrderID:    "01HRZ8Q6J3XK1B2C3D4E5F6G7G",
		Owner:      "alice",
		Symbol:     "AAPL",
		Side:       "BUY",
		Qty:        10,
		Price:      decimal.RequireFromString("190.5"),
		Value:      decimal.RequireFromString("-1905"),
		ExecutedAt: executed,
	}
}

func sampleEquity() EquitySnapshot {
	return EquitySnapshot{
		Time:     executed,
		Owner:    "alice",
		Cash:     decimal.RequireFromString("98095"),
		Holdings: decimal.RequireFromString("1905.1"),
		Equity:   decimal.RequireFromString("100000.1"),
	}
}
