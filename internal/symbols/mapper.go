package symbols

import "strings"

var spotQuotes = []string{"USDT", "USDC", "EUR"}

// Canonical converts a venue-specific symbol to the Deribit naming used as the
// cross-venue instrument key. Options keep the {CCY}-{EXPIRY}-{STRIKE}-{C|P} form and
// spot pairs use BASE_QUOTE.
func Canonical(venue, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))

	switch strings.ToLower(venue) {
	case "bybit":
		parts := strings.Split(sym, "-")
		switch {
		case len(parts) == 5:
			// USDT and USDC settled options carry the settle coin as a fifth segment.
			sym = strings.Join(parts[:4], "-")
		case len(parts) == 1:
			sym = spotPair(sym)
		}
	default:
		// deribit names are already canonical
	}

	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym
}

func spotPair(sym string) string {
	for _, quote := range spotQuotes {
		if base := strings.TrimSuffix(sym, quote); base != sym && base != "" {
			return base + "_" + quote
		}
	}
	return sym
}
