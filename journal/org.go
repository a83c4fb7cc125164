package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for pasting into a journal.
// Structured facts go in a PROPERTIES drawer so they stay searchable; the
// Notes heading is left for the reader.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %d %s @ %s (%s)", t.Side, t.Qty, t.Symbol, t.Price.StringFixed(2), shortID(t.TradeID))
	executed := t.ExecutedAt.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", t.OrderID))
	b.WriteString(fmt.Sprintf(":OWNER: %s\n", t.Owner))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":QTY: %d\n", t.Qty))
	b.WriteString(fmt.Sprintf(":PRICE: %s\n", t.Price.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":VALUE: %s\n", t.Value.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":EXECUTED_AT: %s\n", executed))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Notes\n- \n")

	return b.String()
}

// FormatTradesOrg renders trades under one heading, an owner or a date.
func FormatTradesOrg(title string, trades []TradeRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("* Trades: %s\n", title))
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
