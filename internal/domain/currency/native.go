package currency

// Native currency symbols of the chains the marketplace is deployed on
var nativeSymbols = map[int64]string{
	1:        "ETH",
	5:        "ETH",
	11155111: "ETH",
	31337:    "ETH",
	137:      "MATIC",
	80001:    "MATIC",
	80002:    "MATIC",
	56:       "BNB",
	97:       "BNB",
	43114:    "AVAX",
	43113:    "AVAX",
}

// NativeSymbol returns the native currency symbol of a chain
func NativeSymbol(chainID int64) (string, bool) {
	symbol, ok := nativeSymbols[chainID]
	return symbol, ok
}

// IsSupportedSymbol reports whether symbol is one of the known native currencies
func IsSupportedSymbol(symbol string) bool {
	for _, s := range nativeSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
