package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Me returns the session's own principal.
func (s *Session) Me(ctx context.Context) (*Principal, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/me", nil)
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := decodeJSON(resp, &p, http.StatusOK); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPrincipal reads another principal. Only the owner or an admin may.
func (s *Session) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/principals/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := decodeJSON(resp, &p, http.StatusOK); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetRoles replaces a principal's roles. Requires the admin role. Tokens
// already issued keep their old roles until they expire.
func (s *Session) SetRoles(ctx context.Context, id string, roles []string) (*Principal, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPut, "/v1/principals/"+url.PathEscape(id)+"/roles", setRolesRequest{Roles: roles})
	if err != nil {
		return nil, err
	}

	var p Principal
	if err := decodeJSON(resp, &p, http.StatusOK); err != nil {
		return nil, err
	}
	return &p, nil
}
