package quote

import "errors"

// Feed and session errors. Callers match them with errors.Is; the concrete
// error usually wraps one of these with the underlying cause.
var (
	ErrAuth         = errors.New("credential acquisition failed")
	ErrAuthExpired  = errors.New("credential rejected by quote source")
	ErrFetch        = errors.New("quote fetch failed")
	ErrPartialData  = errors.New("symbol missing from quote response")
	ErrMarketClosed = errors.New("market is closed")
)
