// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Cookie names.
const (
	CookieRefreshToken        = "refresh_token"
	CookiePermissionVariables = "permission_variables"
	CookieOAuthState          = "oauth_state"
)

// CookieConfig controls cookie attributes and signing.
type CookieConfig struct {
	Secret []byte // values are signed when non-empty
	Secure bool
	Domain string
}

type cookieJar struct {
	cfg CookieConfig
}

func (j cookieJar) sign(value string) string {
	if len(j.cfg.Secret) == 0 {
		return value
	}
	return value + "." + j.mac(value)
}

func (j cookieJar) mac(value string) string {
	m := hmac.New(sha256.New, j.cfg.Secret)
	m.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

// verify returns the unsigned value. Unsigned jars accept any value.
func (j cookieJar) verify(raw string) (string, bool) {
	if len(j.cfg.Secret) == 0 {
		return raw, raw != ""
	}
	i := strings.LastIndexByte(raw, '.')
	if i <= 0 {
		return "", false
	}
	value, sig := raw[:i], raw[i+1:]
	if !hmac.Equal([]byte(sig), []byte(j.mac(value))) {
		return "", false
	}
	return value, true
}

func (j cookieJar) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    j.sign(value),
		Path:     "/",
		Domain:   j.cfg.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j cookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   j.cfg.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// read returns the verified value of a cookie.
func (j cookieJar) read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return j.verify(strings.TrimSpace(c.Value))
}

// setPermissionVariables stores the claim variables as base64url JSON so the
// value stays within the cookie character set.
func (j cookieJar) setPermissionVariables(w http.ResponseWriter, vars map[string]any, maxAge time.Duration) error {
	raw, err := json.Marshal(vars)
	if err != nil {
		return oops.With("operation", "encode permission variables").Wrap(err)
	}
	j.set(w, CookiePermissionVariables, base64.RawURLEncoding.EncodeToString(raw), maxAge)
	return nil
}
