// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth implements account registration, sign-in, and session issuance.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - creates an Account with validated roles and fresh IDs
//   - NewProviderLink - binds an external identity to an account
//
// Repository implementations receive pre-validated types from these constructors.
//
// # Credentials
//
// Three single-use or short-lived credentials are issued:
//   - Ticket - random, stored on the account, redeemed exactly once by TicketIssuer
//   - Refresh token - random, stored hashed, rotated exactly once by RefreshTokenRotator
//   - Session token - signed JWT carrying permission variables, never stored
//
// # Services
//
// Service assembles the flows (register, activate, login, refresh, logout,
// provider callback) from the collaborators above. OAuthIdentityResolver
// handles the account side of provider sign-in.
package auth
