// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"visa-tracker/internal/common/errors"
)

// KeycloakClient verifies bearer tokens against the external identity
// provider. Session issuance stays with Keycloak; this service only checks
// that a presented token is active and reads the identity claims.
type KeycloakClient struct {
	baseURL    string
	realm      string
	httpClient *http.Client
}

// Identity holds the claims the service cares about.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// TokenVerifier is the interface the HTTP middleware depends on.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (*Identity, error)
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(baseURL, realm string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		realm:      realm,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifyToken resolves the token against the userinfo endpoint. An inactive
// or malformed token yields an UNAUTHORIZED error.
func (k *KeycloakClient) VerifyToken(ctx context.Context, accessToken string) (*Identity, error) {
	userinfoURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/userinfo", k.baseURL, k.realm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.NewUnauthorizedError("token rejected by identity provider")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &identity, nil
}
