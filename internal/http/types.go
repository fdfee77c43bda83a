package http

import (
	"time"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MFALoginRequest struct {
	MFATicket string `json:"mfa_ticket"`
	Code      string `json:"code"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type MFAConfirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type MFADisableRequest struct {
	Code string `json:"code"`
}

type SetRolesRequest struct {
	Roles []string `json:"roles"`
}

type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func newTokenResponse(p jwtx.TokenPair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        p.TokenType,
		ExpiresIn:        p.ExpiresIn(now),
		RefreshExpiresIn: max(int64(p.RefreshExpiresAt.Sub(now)/time.Second), 0),
	}
}

// ChallengeResponse is returned by login when a second factor is owed.
type ChallengeResponse struct {
	MFARequired bool   `json:"mfa_required"`
	MFATicket   string `json:"mfa_ticket"`
	ExpiresIn   int64  `json:"expires_in"`
}

type EnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodePNG       string `json:"qr_code_png"` // base64
}

type PrincipalResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	MFAEnabled bool      `json:"mfa_enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newPrincipalResponse(p authkit.Principal) PrincipalResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return PrincipalResponse{
		ID:         p.ID,
		Email:      p.Email,
		Roles:      roles,
		MFAEnabled: p.MFAEnabled,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
