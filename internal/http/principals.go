package http

import (
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/authz"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/idx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// AdminRole may read any principal and change roles.
const AdminRole = "admin"

type PrincipalsHandler struct {
	Manager *authkit.Manager
}

// HandleMe returns the caller's own principal.
//
//	GET /v1/me -> 200 PrincipalResponse
func (h *PrincipalsHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.Manager.Principal(ctx, httpx.PrincipalID(ctx))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPrincipalResponse(p))
}

// HandleGet returns a principal to its owner or an admin.
//
//	GET /v1/principals/{id} -> 200 PrincipalResponse
func (h *PrincipalsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, authkit.ErrNotFound)
		return
	}

	claims, _ := httpx.ClaimsFromContext(ctx)
	if err := authz.AssertOwnerOrRole(claims, id.String(), AdminRole); err != nil {
		httpx.WriteError(w, err)
		return
	}

	p, err := h.Manager.Principal(ctx, id.String())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPrincipalResponse(p))
}

// HandleSetRoles replaces a principal's roles. Admin only; enforced by the
// router.
//
//	PUT /v1/principals/{id}/roles {"roles": [...]} -> 200 PrincipalResponse
func (h *PrincipalsHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, authkit.ErrNotFound)
		return
	}

	var req SetRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	p, err := h.Manager.SetRoles(ctx, id.String(), req.Roles)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	slogx.FromContext(ctx).Info("roles granted", "target", p.ID, "roles", p.Roles)
	httpx.WriteJSON(w, http.StatusOK, newPrincipalResponse(p))
}
