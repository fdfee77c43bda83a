package authsdk

import "time"

// TokenResponse is a freshly issued access/refresh pair.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// loginResponse is the union returned by POST /v1/login.
type loginResponse struct {
	TokenResponse
	MFARequired bool   `json:"mfa_required"`
	MFATicket   string `json:"mfa_ticket"`
}

type Principal struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	MFAEnabled bool      `json:"mfa_enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MFAEnrollment is the TOTP material to show the user. QRCodePNG is
// base64 encoded.
type MFAEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodePNG       string `json:"qr_code_png"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

type JWKSResponse struct {
	Keys []JWK `json:"keys"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mfaLoginRequest struct {
	MFATicket string `json:"mfa_ticket"`
	Code      string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type mfaConfirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type mfaDisableRequest struct {
	Code string `json:"code"`
}

type setRolesRequest struct {
	Roles []string `json:"roles"`
}
