package fyers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// AuthClient exchanges a refresh token and PIN for an access token.
type AuthClient struct {
	url          string
	clientID     string
	secretKey    string
	refreshToken string
	pin          string
	httpClient   *http.Client
}

func NewAuthClient(url, clientID, secretKey, refreshToken, pin string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		url:          url,
		clientID:     clientID,
		secretKey:    secretKey,
		refreshToken: refreshToken,
		pin:          pin,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// AppIDHash is hex(sha256("clientId:secretKey")).
func AppIDHash(clientID, secretKey string) string {
	sum := sha256.Sum256([]byte(clientID + ":" + secretKey))
	return hex.EncodeToString(sum[:])
}

// AccessToken performs one refresh-token exchange.
func (c *AuthClient) AccessToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(refreshTokenRequest{
		GrantType:    grantTypeRefresh,
		AppIDHash:    AppIDHash(c.clientID, c.secretKey),
		RefreshToken: c.refreshToken,
		PIN:          c.pin,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	// The broker reports failures in the envelope, sometimes with a 200.
	res := gjson.ParseBytes(body)
	token := res.Get("access_token").Str
	if res.Get(pathStatus).Str != statusOK || token == "" {
		return "", fmt.Errorf("fyers auth rejected (http %d): %s", resp.StatusCode, res.Get(pathMsg).Str)
	}
	return token, nil
}
