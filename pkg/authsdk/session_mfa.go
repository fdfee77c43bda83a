package authsdk

import (
	"context"
	"net/http"
)

// EnrollMFA starts TOTP enrollment. Nothing changes server-side until
// ConfirmMFA succeeds.
func (s *Session) EnrollMFA(ctx context.Context) (*MFAEnrollment, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/enroll", nil)
	if err != nil {
		return nil, err
	}

	var e MFAEnrollment
	if err := decodeJSON(resp, &e, http.StatusOK); err != nil {
		return nil, err
	}
	return &e, nil
}

// ConfirmMFA enables MFA once code checks out against secret.
func (s *Session) ConfirmMFA(ctx context.Context, secret, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/confirm", mfaConfirmRequest{Secret: secret, Code: code})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DisableMFA turns MFA off. code must be valid for the current secret.
func (s *Session) DisableMFA(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/mfa", mfaDisableRequest{Code: code})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
