package http

import (
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
)

type MFAHandler struct {
	Manager *authkit.Manager
}

// HandleEnroll starts TOTP enrollment for the caller. Nothing is stored
// until HandleConfirm succeeds.
//
//	POST /v1/mfa/enroll -> 200 EnrollmentResponse
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e, err := h.Manager.BeginMFAEnrollment(ctx, httpx.PrincipalID(ctx))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:          e.Secret,
		ProvisioningURI: e.ProvisioningURI,
		QRCodePNG:       e.QRCodeBase64(),
	})
}

// HandleConfirm enables MFA once the caller proves the secret works.
//
//	POST /v1/mfa/confirm {"secret", "code"} -> 204
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MFAConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.Manager.ConfirmMFAEnrollment(ctx, httpx.PrincipalID(ctx), req.Secret, req.Code); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable turns MFA off. The caller must present a current code.
//
//	DELETE /v1/mfa {"code"} -> 204
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MFADisableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.Manager.DisableMFA(ctx, httpx.PrincipalID(ctx), req.Code); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
