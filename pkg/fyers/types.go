package fyers

// refreshTokenRequest is the body of the validate-refresh-token call.
type refreshTokenRequest struct {
	GrantType    string `json:"grant_type"`
	AppIDHash    string `json:"appIdHash"`
	RefreshToken string `json:"refresh_token"`
	PIN          string `json:"pin"`
}

// Quotes response, abridged to the fields read by this package:
//
//	{
//	  "s": "ok", "code": 200,
//	  "d": [
//	    {"n": "NSE:SBIN-EQ", "s": "ok",
//	     "v": {"lp": 812.4, "volume": 1203344, "bid": 812.35, "ask": 812.4,
//	           "depth": {"buy": [{"price": 812.35}], "sell": [{"price": 812.4}]}}}
//	  ]
//	}
const (
	pathStatus = "s"
	pathCode   = "code"
	pathMsg    = "message"
	pathRows   = "d"

	rowName   = "n"
	rowStatus = "s"

	valLastPrice    = "v.lp"
	valLastPriceAlt = "v.ltp"
	valVolume       = "v.volume"
	valDepthBid     = "v.depth.buy.0.price"
	valDepthAsk     = "v.depth.sell.0.price"
	valBid          = "v.bid"
	valAsk          = "v.ask"
)
