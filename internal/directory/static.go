package directory

// Representative sizes used when the facts endpoint has no usable data.
// These sit near the midpoint of each tier so tier classification stays
// correct even though the absolute number is approximate.
const (
	smallCapEstimate = 1_000_000_000
	midCapEstimate   = 5_000_000_000
	largeCapEstimate = 50_000_000_000
	megaCapEstimate  = 500_000_000_000
)

// staticTiers is a small hand-curated table of well-known tickers.
// It is a fallback only; live facts data always wins.
var staticTiers = map[string]string{
	// Mega cap (> $200B)
	"AAPL": "mega", "MSFT": "mega", "GOOGL": "mega", "GOOG": "mega",
	"AMZN": "mega", "NVDA": "mega", "META": "mega", "TSLA": "mega",
	"V": "mega", "JPM": "mega", "WMT": "mega", "UNH": "mega",
	"XOM": "mega", "JNJ": "mega", "MA": "mega", "PG": "mega",

	// Large cap ($10B - $200B)
	"NFLX": "large", "CSCO": "large", "INTC": "large", "AMD": "large",
	"CRM": "large", "NKE": "large", "DIS": "large", "ORCL": "large",
	"QCOM": "large", "IBM": "large", "UPS": "large", "CAT": "large",
	"NOW": "large", "PANW": "large", "MU": "large", "AMAT": "large",

	// Mid cap ($2B - $10B)
	"OKTA": "mid", "DDOG": "mid", "NET": "mid", "SNOW": "mid",
	"CRWD": "mid", "ZS": "mid", "TEAM": "mid", "DOCU": "mid",
	"TWLO": "mid", "MDB": "mid", "ZM": "mid", "ROKU": "mid",

	// Small cap (< $2B)
	"SMAR": "small", "FROG": "small", "BILL": "small", "AI": "small",
	"PATH": "small", "GTLB": "small", "CFLT": "small", "NCNO": "small",
	"TENB": "small", "ALRM": "small", "QLYS": "small", "FSLY": "small",
}

// staticInfo returns an estimated Info for a known ticker.
func staticInfo(ticker string) (*Info, bool) {
	tier, ok := staticTiers[ticker]
	if !ok {
		return nil, false
	}
	info := &Info{Sector: "Unknown", Industry: "Unknown"}
	switch tier {
	case "small":
		info.SizeUSD = smallCapEstimate
	case "mid":
		info.SizeUSD = midCapEstimate
	case "large":
		info.SizeUSD = largeCapEstimate
	case "mega":
		info.SizeUSD = megaCapEstimate
	}
	return info, true
}
