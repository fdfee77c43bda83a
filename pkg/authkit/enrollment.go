package authkit

import (
	"context"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// QRCodeSize is the edge length in pixels of enrollment QR codes.
const QRCodeSize = 256

// BeginMFAEnrollment generates a TOTP secret for the principal and the
// material needed to load it into an authenticator app. Nothing is stored
// until ConfirmMFAEnrollment.
func (m *Manager) BeginMFAEnrollment(ctx context.Context, principalID string) (e Enrollment, err error) {
	defer m.observe(OpEnrollMFA, &err)

	p, err := m.findByID(ctx, principalID)
	if err != nil {
		return Enrollment{}, err
	}
	if p.MFAEnabled {
		return Enrollment{}, autherr.ErrMFAAlreadyEnabled
	}

	secret, err := m.MFA.NewSecret()
	if err != nil {
		return Enrollment{}, err
	}
	uri, err := m.MFA.ProvisioningURI(p.Email, secret)
	if err != nil {
		return Enrollment{}, err
	}
	qr, err := m.MFA.QRCodePNG(p.Email, secret, QRCodeSize)
	if err != nil {
		return Enrollment{}, err
	}

	return Enrollment{Secret: secret, ProvisioningURI: uri, QRCodePNG: qr}, nil
}

// ConfirmMFAEnrollment enables MFA once code proves the principal holds
// secret.
func (m *Manager) ConfirmMFAEnrollment(ctx context.Context, principalID, secret, code string) (err error) {
	defer m.observe(OpEnrollMFA, &err)

	p, err := m.findByID(ctx, principalID)
	if err != nil {
		return err
	}
	if p.MFAEnabled {
		return autherr.ErrMFAAlreadyEnabled
	}
	if secret == "" || !m.MFA.VerifyCode(secret, code) {
		return autherr.ErrInvalidMFACode
	}

	p.MFAEnabled = true
	p.MFASecret = secret
	p.UpdatedAt = m.Codec.Now().UTC()
	if err := m.save(ctx, p); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("mfa enabled", "principal_id", p.ID)
	return nil
}

// DisableMFA turns MFA off and forgets the secret. The caller proves
// possession of the current secret with a valid code.
func (m *Manager) DisableMFA(ctx context.Context, principalID, code string) (err error) {
	defer m.observe(OpDisableMFA, &err)

	p, err := m.verifyMFA(ctx, principalID, code)
	if err != nil {
		return err
	}

	p.MFAEnabled = false
	p.MFASecret = ""
	p.UpdatedAt = m.Codec.Now().UTC()
	if err := m.save(ctx, p); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("mfa disabled", "principal_id", p.ID)
	return nil
}
