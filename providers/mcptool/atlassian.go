package mcptool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type tokenExchangeRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

type tokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error,omitempty"`
}

// exchangeToken trades a long-lived refresh token for a short-lived
// access token. Used by providers whose MCP endpoint only accepts OAuth
// access tokens.
func exchangeToken(ctx context.Context, httpClient *http.Client, exchange TokenExchange) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	payload, err := json.Marshal(tokenExchangeRequest{
		GrantType:    "refresh_token",
		RefreshToken: exchange.RefreshToken,
		ClientID:     exchange.ClientID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exchange.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange http %d", resp.StatusCode)
	}
	var out tokenExchangeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	token := strings.TrimSpace(out.AccessToken)
	if token == "" {
		if out.Error != "" {
			return "", fmt.Errorf("token exchange failed: %s", out.Error)
		}
		return "", fmt.Errorf("token exchange returned empty access token")
	}
	return token, nil
}
