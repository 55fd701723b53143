package domain

import "strings"

type AssetClass string

const (
	AssetClassUnknown   AssetClass = ""
	AssetClassStock     AssetClass = "stock"
	AssetClassCrypto    AssetClass = "crypto"
	AssetClassForex     AssetClass = "forex"
	AssetClassIndex     AssetClass = "index"
	AssetClassCommodity AssetClass = "commodity"
	AssetClassMetal     AssetClass = "metal"
	AssetClassBond      AssetClass = "bond"
)

// ParseAssetClass maps free-form asset type labels onto a known class.
func ParseAssetClass(s string) AssetClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "stocks", "equity", "hisse":
		return AssetClassStock
	case "crypto", "cryptocurrency", "coin", "kripto":
		return AssetClassCrypto
	case "forex", "fx", "currency", "doviz", "döviz":
		return AssetClassForex
	case "index", "indices", "endeks":
		return AssetClassIndex
	case "commodity", "commodities", "emtia":
		return AssetClassCommodity
	case "metal", "metals", "precious_metal", "gold", "altin", "altın":
		return AssetClassMetal
	case "bond", "bonds", "tahvil":
		return AssetClassBond
	default:
		return AssetClassUnknown
	}
}

// Instrument is a resolved asset: the canonical name plus the ticker flavours
// the upstream providers understand.
type Instrument struct {
	Name      string
	Canonical string
	Class     AssetClass
	// Ticker is the daily-bar provider symbol (e.g. "AAPL", "BTC-USD", "GC=F").
	Ticker string
	// Base is the bare code used by crypto and live metal sources (e.g. "BTC", "XAU").
	Base string
}

// InferAssetClass guesses the class from ticker syntax.
func InferAssetClass(ticker string) AssetClass {
	t := strings.ToUpper(ticker)
	switch {
	case t == "":
		return AssetClassUnknown
	case strings.HasSuffix(t, "-USD"), strings.HasSuffix(t, "USDT"):
		return AssetClassCrypto
	case strings.HasSuffix(t, "=X"):
		return AssetClassForex
	case strings.HasPrefix(t, "^"):
		return AssetClassIndex
	case strings.HasSuffix(t, "=F"):
		return AssetClassCommodity
	default:
		return AssetClassStock
	}
}
