package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// promoTable holds the codes the storefront accepts without a server round trip.
var promoTable = map[string]decimal.Decimal{
	"ZODIAC20": decimal.NewFromInt(20),
	"ZODIAC10": decimal.NewFromInt(10),
	"SCENT15":  decimal.NewFromInt(15),
}

// LookupPromo returns the discount percent of a known code.
func LookupPromo(code string) (string, decimal.Decimal, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	pct, ok := promoTable[normalized]
	return normalized, pct, ok
}
