package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to an authkit service.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a principal. The service assigns its default roles.
func (c *SDKClient) Register(ctx context.Context, email, password string) (*Principal, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/register", "", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := decodeJSON(resp, &p, http.StatusCreated); err != nil {
		return nil, err
	}
	return &p, nil
}

// Login checks a password. When the principal has MFA enabled the error is
// an *MFARequiredError holding the ticket for CompleteMFA.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/login", "", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := decodeJSON(resp, &lr, http.StatusOK); err != nil {
		return nil, err
	}
	if lr.MFARequired {
		return nil, &MFARequiredError{Ticket: lr.MFATicket, ExpiresIn: lr.ExpiresIn}
	}
	return newSession(c, &lr.TokenResponse), nil
}

// CompleteMFA trades a challenge ticket and a TOTP code for a session. A
// wrong code leaves the ticket usable until it expires.
func (c *SDKClient) CompleteMFA(ctx context.Context, ticket, code string) (*Session, error) {
	tokens, err := c.requestToken(ctx, "/v1/login/mfa", mfaLoginRequest{MFATicket: ticket, Code: code})
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// RefreshGrant rotates a refresh token. The old one is revoked by the
// service.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/token/refresh", refreshRequest{RefreshToken: refreshToken})
}

// AuthenticateWithRefreshToken creates a session from a stored refresh
// token.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := c.RefreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere. The session still
// refreshes once the access token nears expiresIn.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int64) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// GetJWKS fetches the verification keys. HMAC deployments publish none.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}
	return &jwks, nil
}

func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness returns an *APIError with status 503 when a dependency is
// down; the decoded body is still returned alongside it.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	status := resp.StatusCode
	var h HealthResponse
	if err := decodeJSON(resp, &h, status); err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &h, &APIError{StatusCode: status, Code: h.Status}
	}
	return &h, nil
}

func (c *SDKClient) requestToken(ctx context.Context, path string, in any) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, "", in)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}
