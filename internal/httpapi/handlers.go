// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

type userData struct {
	DisplayName string `json:"display_name" validate:"omitempty,max=255"`
	Name        string `json:"name" validate:"omitempty,max=255"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

func (u *userData) fields() auth.UserFields {
	if u == nil {
		return auth.UserFields{}
	}
	return auth.UserFields{
		DisplayName: u.DisplayName,
		Name:        u.Name,
		AvatarURL:   u.AvatarURL,
		PhoneNumber: u.PhoneNumber,
	}
}

type registerOptions struct {
	DefaultRole  string   `json:"default_role" validate:"omitempty,max=64"`
	AllowedRoles []string `json:"allowed_roles" validate:"omitempty,dive,required,max=64"`
}

func (o *registerOptions) roles() (string, []string) {
	if o == nil {
		return "", nil
	}
	return o.DefaultRole, o.AllowedRoles
}

type registerRequest struct {
	Email           string           `json:"email" validate:"required,email"`
	Password        string           `json:"password" validate:"required,max=1024"`
	UserData        *userData        `json:"user_data"`
	RegisterOptions *registerOptions `json:"register_options"`
	Cookie          *bool            `json:"cookie"`
}

type registerByNameRequest struct {
	Name            string           `json:"name" validate:"required,max=255"`
	Email           string           `json:"email" validate:"omitempty,email"`
	Password        string           `json:"password" validate:"required,max=1024"`
	UserData        *userData        `json:"user_data"`
	RegisterOptions *registerOptions `json:"register_options"`
	Cookie          *bool            `json:"cookie"`
}

type loginRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	Name      string `json:"name" validate:"omitempty,max=255"`
	Password  string `json:"password" validate:"omitempty,max=1024"`
	Anonymous bool   `json:"anonymous"`
	Cookie    *bool  `json:"cookie"`
}

type tokenRequest struct {
	Cookie *bool `json:"cookie"`
}

type activateResponse struct {
	User auth.UserProfile `json:"user"`
}

func delivery(cookie *bool) auth.DeliveryMode {
	if cookie != nil && !*cookie {
		return auth.DeliveryBody
	}
	return auth.DeliveryCookie
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	defaultRole, allowed := req.RegisterOptions.roles()
	session, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		DefaultRole:  defaultRole,
		AllowedRoles: allowed,
		User:         req.UserData.fields(),
		Delivery:     delivery(req.Cookie),
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeSession(w, r, session)
}

func (h *Handler) handleRegisterByName(w http.ResponseWriter, r *http.Request) {
	var req registerByNameRequest
	if err := decode(r, &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	defaultRole, allowed := req.RegisterOptions.roles()
	session, err := h.svc.RegisterByName(r.Context(), auth.RegisterByNameInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		DefaultRole:  defaultRole,
		AllowedRoles: allowed,
		User:         req.UserData.fields(),
		Delivery:     delivery(req.Cookie),
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeSession(w, r, session)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ticket := strings.TrimSpace(r.URL.Query().Get("ticket"))
	if ticket == "" {
		h.activationFailed(w, r, oops.Code(auth.CodeInvalidInput).Errorf("ticket is required"))
		return
	}
	account, err := h.svc.Activate(r.Context(), ticket)
	if err != nil {
		h.activationFailed(w, r, err)
		return
	}
	if h.cfg.ActivateSuccessRedirect != "" {
		http.Redirect(w, r, h.cfg.ActivateSuccessRedirect, http.StatusFound)
		return
	}
	h.respond(w, r, http.StatusOK, activateResponse{User: account.Profile()})
}

func (h *Handler) activationFailed(w http.ResponseWriter, r *http.Request, err error) {
	if h.cfg.ActivateFailureRedirect == "" {
		h.writeError(r.Context(), w, err)
		return
	}
	if auth.KindOf(err) == auth.KindDependency {
		h.logger.ErrorContext(r.Context(), "activation failed", "error", err)
	}
	http.Redirect(w, r, h.cfg.ActivateFailureRedirect, http.StatusFound)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	if req.Anonymous {
		session, err := h.svc.LoginAnonymous(r.Context(), delivery(req.Cookie))
		if err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		h.writeSession(w, r, session)
		return
	}

	result, err := h.svc.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Delivery: delivery(req.Cookie),
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	if result.MFA != nil {
		h.respond(w, r, http.StatusOK, result.MFA)
		return
	}
	h.writeSession(w, r, result.Session)
}

// presentedToken reads the refresh token from the query string, falling back
// to the cookie. fromQuery reports which source supplied it.
func (h *Handler) presentedToken(r *http.Request) (token string, fromQuery bool) {
	if token := strings.TrimSpace(r.URL.Query().Get(CookieRefreshToken)); token != "" {
		return token, true
	}
	token, _ = h.cookies.read(r, CookieRefreshToken)
	return token, false
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	token, fromQuery := h.presentedToken(r)
	mode := delivery(req.Cookie)
	if req.Cookie == nil && fromQuery {
		// A bearer token gets its replacement back the same way.
		mode = auth.DeliveryBody
	}
	session, err := h.svc.Refresh(r.Context(), token, mode)
	if err != nil {
		if auth.KindOf(err) == auth.KindUnauthorized {
			h.clearSessionCookies(w)
		}
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeSession(w, r, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := h.presentedToken(r)
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProviderStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	state, err := h.newState()
	if err != nil {
		h.providerFailed(w, r, name, oops.Code(auth.CodeStateGenerateFailed).Wrap(err))
		return
	}
	target, err := h.providers.AuthCodeURL(name, state)
	if err != nil {
		h.providerFailed(w, r, name, err)
		return
	}
	h.cookies.set(w, CookieOAuthState, name+":"+state, h.cfg.StateTTL)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	h.cookies.clear(w, CookieOAuthState)

	if providerErr := r.FormValue("error"); providerErr != "" {
		h.providerFailed(w, r, name, oops.Code(auth.CodeProviderLookupFailed).
			With("provider_error", providerErr).
			Errorf("provider denied the sign-in"))
		return
	}

	expected, ok := h.cookies.read(r, CookieOAuthState)
	presented := name + ":" + r.FormValue("state")
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		h.providerFailed(w, r, name, oops.Code(auth.CodeProviderLookupFailed).Errorf("state mismatch"))
		return
	}

	profile, tokens, err := h.providers.Exchange(ctx, name, r.FormValue("code"))
	if err != nil {
		h.providerFailed(w, r, name, err)
		return
	}

	result := h.svc.ProviderCallback(ctx, auth.ProviderCallbackInput{
		Provider: name,
		Profile:  profile,
		Tokens:   tokens,
	})
	if result.Err != nil {
		h.logger.WarnContext(ctx, "provider sign-in failed", "provider", name, "error", result.Err)
	}
	if result.Refresh != nil {
		h.setSessionCookies(w, r, result.Refresh, result.PermissionVariables)
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (h *Handler) providerFailed(w http.ResponseWriter, r *http.Request, name string, err error) {
	h.logger.WarnContext(r.Context(), "provider sign-in failed", "provider", name, "error", err)
	if h.cfg.ProviderFailureRedirect == "" {
		h.writeError(r.Context(), w, err)
		return
	}
	http.Redirect(w, r, h.cfg.ProviderFailureRedirect, http.StatusFound)
}

// writeSession sets the session cookies for cookie delivery and writes the
// session body.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	if session.Refresh != nil && session.Refresh.Mode == auth.DeliveryCookie {
		h.setSessionCookies(w, r, session.Refresh, session.PermissionVariables)
	}
	h.respond(w, r, http.StatusOK, session)
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, r *http.Request, issued *auth.IssuedRefreshToken, vars map[string]any) {
	maxAge := h.svc.RefreshTTL()
	h.cookies.set(w, CookieRefreshToken, issued.Value, maxAge)
	if vars == nil {
		return
	}
	if err := h.cookies.setPermissionVariables(w, vars, maxAge); err != nil {
		h.logger.WarnContext(r.Context(), "permission variables cookie not set", "error", err)
	}
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.cookies.clear(w, CookieRefreshToken)
	h.cookies.clear(w, CookiePermissionVariables)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
