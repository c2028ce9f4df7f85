// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Store implementations wrap these so callers can
// branch with errors.Is regardless of the backing engine.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")

	// ErrExpired is returned when a lookup matched an entity whose validity window has passed.
	ErrExpired = errors.New("expired")
)

// Kind classifies an error for the transport layer.
type Kind int

// Error kinds.
const (
	KindDependency Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindConflict
	KindWeakCredential
	KindProviderResolution
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindWeakCredential:
		return "weak_credential"
	case KindProviderResolution:
		return "provider_resolution"
	default:
		return "dependency"
	}
}

// Error codes surfaced by this package.
const (
	CodeInvalidInput             = "AUTH_INVALID_INPUT"
	CodeRoleNotAllowed           = "AUTH_ROLE_NOT_ALLOWED"
	CodeDefaultRoleNotAllowed    = "AUTH_DEFAULT_ROLE_NOT_ALLOWED"
	CodeAccountExists            = "AUTH_ACCOUNT_EXISTS"
	CodeInvalidCredentials       = "AUTH_INVALID_CREDENTIALS"
	CodeAccountInactive          = "AUTH_ACCOUNT_INACTIVE"
	CodeWeakPassword             = "AUTH_WEAK_PASSWORD"
	CodeHashFailed               = "AUTH_HASH_FAILED"
	CodeTicketNotFound           = "TICKET_NOT_FOUND"
	CodeTicketExpired            = "TICKET_EXPIRED"
	CodeRefreshInvalid           = "REFRESH_INVALID"
	CodeRefreshRotationFailed    = "REFRESH_ROTATION_FAILED"
	CodeProviderLinkConflict     = "PROVIDER_LINK_CONFLICT"
	CodeProviderLookupFailed     = "PROVIDER_LOOKUP_FAILED"
	CodeProviderLinkFailed       = "PROVIDER_LINK_FAILED"
	CodeProviderCreateFailed     = "PROVIDER_ACCOUNT_CREATE_FAILED"
	CodeProviderUnknown          = "PROVIDER_UNKNOWN"
	CodeProviderProfileInvalid   = "PROVIDER_PROFILE_INVALID"
	CodeAnonymousDisabled        = "ANONYMOUS_DISABLED"
	CodeSessionTokenSignFailed   = "SESSION_TOKEN_SIGN_FAILED"
	CodeSessionTokenInvalid      = "SESSION_TOKEN_INVALID"
	CodeBreachCheckUnavailable   = "BREACH_CHECK_UNAVAILABLE"
	CodeStoreUnavailable         = "STORE_UNAVAILABLE"
	CodeNotificationFailed       = "NOTIFICATION_FAILED"
	CodeTicketGenerateFailed     = "TICKET_GENERATE_FAILED"
	CodeRefreshGenerateFailed    = "REFRESH_GENERATE_FAILED"
	CodeStateGenerateFailed      = "PROVIDER_STATE_GENERATE_FAILED"
	CodeAccountCreateFailed      = "AUTH_ACCOUNT_CREATE_FAILED"
	CodeUserRecordCreateFailed   = "AUTH_USER_RECORD_CREATE_FAILED"
	CodeSessionTokenConfigFailed = "SESSION_TOKEN_CONFIG_INVALID"
)

var kindByCode = map[string]Kind{
	CodeInvalidInput:           KindInvalidInput,
	CodeRoleNotAllowed:         KindInvalidInput,
	CodeDefaultRoleNotAllowed:  KindInvalidInput,
	CodeAnonymousDisabled:      KindInvalidInput,
	CodeAccountExists:          KindConflict,
	CodeProviderLinkConflict:   KindConflict,
	CodeInvalidCredentials:     KindUnauthorized,
	CodeAccountInactive:        KindUnauthorized,
	CodeTicketNotFound:         KindUnauthorized,
	CodeTicketExpired:          KindUnauthorized,
	CodeRefreshInvalid:         KindUnauthorized,
	CodeSessionTokenInvalid:    KindUnauthorized,
	CodeWeakPassword:           KindWeakCredential,
	CodeProviderLookupFailed:   KindProviderResolution,
	CodeProviderLinkFailed:     KindProviderResolution,
	CodeProviderCreateFailed:   KindProviderResolution,
	CodeProviderUnknown:        KindProviderResolution,
	CodeProviderProfileInvalid: KindProviderResolution,
}

// KindOf reports the Kind of err. Errors without a recognised code are
// dependency failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindDependency
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindDependency
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := kindByCode[code]; found {
		return kind
	}
	return KindDependency
}
