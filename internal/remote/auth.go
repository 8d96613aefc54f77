package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TokenPair is the response from POST /api/token/.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a JWT access/refresh pair. Unauthenticated
// by design; it is the entry point that bootstraps the token source.
func Login(ctx context.Context, baseURL, username, password string) (*TokenPair, error) {
	body := map[string]string{"username": username, "password": password}
	var pair TokenPair
	if err := postNoAuth(ctx, baseURL, "/api/token/", body, &pair); err != nil {
		return nil, err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, fmt.Errorf("token response missing access or refresh token")
	}
	return &pair, nil
}

// RefreshAccess exchanges a refresh token for a new access token.
func RefreshAccess(ctx context.Context, baseURL, refresh string) (string, error) {
	body := map[string]string{"refresh": refresh}
	var resp struct {
		Access string `json:"access"`
	}
	if err := postNoAuth(ctx, baseURL, "/api/token/refresh/", body, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", fmt.Errorf("refresh response missing access token")
	}
	return resp.Access, nil
}

func postNoAuth(ctx context.Context, baseURL, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpc := &http.Client{Timeout: defaultTimeout}
	resp, err := httpc.Do(req)
	if err != nil {
		return &NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "POST " + path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var apiErr apiError
		json.Unmarshal(respBody, &apiErr)
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.message())
	}
	if resp.StatusCode >= 500 {
		return &NetworkError{Op: "POST " + path, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
