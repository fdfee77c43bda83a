package authkit

import (
	"encoding/base64"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// LoginResult is what Authenticate returns on a correct password: either
// *Authenticated or *Challenge. A challenge is an expected outcome, not an
// error.
type LoginResult interface {
	loginResult()
}

// Authenticated carries the issued token pair.
type Authenticated struct {
	PrincipalID string
	Tokens      jwtx.TokenPair
}

// Challenge means the password was right but a second factor is still
// owed. Ticket is an mfa_pending token; it is rejected by Authorize.
type Challenge struct {
	PrincipalID string
	Ticket      string
	ExpiresAt   time.Time
}

func (*Authenticated) loginResult() {}
func (*Challenge) loginResult() {}

// Enrollment is the material handed to a principal setting up TOTP. The
// secret is only persisted once ConfirmMFAEnrollment sees a valid code.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
}

// QRCodeBase64 returns the PNG base64 encoded, ready for a data: URI.
func (e Enrollment) QRCodeBase64() string {
	return base64.StdEncoding.EncodeToString(e.QRCodePNG)
}
