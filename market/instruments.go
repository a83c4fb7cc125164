// market/instruments.go
package market

import (
	"github.com/rustyeddy/paper/broker"
	"github.com/shopspring/decimal"
)

// Starter is the instrument set seeded into an empty store.
var Starter = []broker.Instrument{
	{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.RequireFromString("190.00")},
	{Symbol: "AMD", Name: "Advanced Micro Devices", Price: decimal.RequireFromString("160.00")},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Price: decimal.RequireFromString("180.00")},
	{Symbol: "GOOG", Name: "Alphabet Inc.", Price: decimal.RequireFromString("140.00")},
	{Symbol: "INTC", Name: "Intel Corp.", Price: decimal.RequireFromString("35.00")},
	{Symbol: "META", Name: "Meta Platforms", Price: decimal.RequireFromString("480.00")},
	{Symbol: "MSFT", Name: "Microsoft Corp.", Price: decimal.RequireFromString("410.00")},
	{Symbol: "NFLX", Name: "Netflix Inc.", Price: decimal.RequireFromString("600.00")},
	{Symbol: "NVDA", Name: "NVIDIA Corp.", Price: decimal.RequireFromString("880.00")},
	{Symbol: "TSLA", Name: "Tesla Inc.", Price: decimal.RequireFromString("240.00")},
}
