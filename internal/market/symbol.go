package market

import "strings"

// Qualify turns a bare ticker into an exchange-qualified symbol:
// "sbin" -> "NSE:SBIN-EQ". Symbols that already carry an exchange prefix are
// returned trimmed but otherwise untouched.
func Qualify(exchange, series, symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || strings.Contains(symbol, ":") {
		return symbol
	}

	symbol = strings.ToUpper(symbol)
	if series != "" && !strings.HasSuffix(symbol, "-"+series) {
		symbol += "-" + series
	}
	if exchange == "" {
		return symbol
	}
	return exchange + ":" + symbol
}

// QualifyAll applies Qualify to every symbol, dropping blanks and duplicates.
func QualifyAll(exchange, series string, symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		q := Qualify(exchange, series, s)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
