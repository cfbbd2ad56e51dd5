package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/clubportal/auth"
	"github.com/warp/clubportal/members"
	"github.com/warp/clubportal/permission"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller with their stored profile.
type Principal struct {
	Identity auth.Identity
	Member   *members.Member
	Token    string
}

// User is the caller as the permission table sees them.
func (p *Principal) User() *permission.User {
	return p.Member.PermissionUser()
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Authenticate resolves the bearer token to a Principal. A caller whose
// profile is missing (first request after sign-up raced the listener) gets
// one synced on the spot.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
			return
		}

		ctx := r.Context()
		id, err := h.Auth.Verify(ctx, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}

		member, err := h.Members.Get(ctx, id.UID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load profile", err)
			return
		}
		if member == nil {
			res, err := h.syncProfile(ctx, id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to sync profile", err)
				return
			}
			member = res.Member
		}

		p := &Principal{Identity: id, Member: member, Token: token}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, principalKey, p)))
	})
}

func principalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// allow checks the caller against the permission table and writes 403 if
// they are refused.
func allow(w http.ResponseWriter, r *http.Request, action permission.Action) bool {
	p := principalFrom(r.Context())
	if p == nil || !permission.Can(p.User(), action, nil) {
		writeError(w, http.StatusForbidden, "Not allowed", nil)
		return false
	}
	return true
}
