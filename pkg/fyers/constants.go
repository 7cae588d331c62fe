package fyers

const (
	quotesPath = "/quotes"

	grantTypeRefresh = "refresh_token"

	statusOK    = "ok"
	statusError = "error"

	codeUnauthorized = 401
)
