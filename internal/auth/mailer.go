// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"log/slog"
	"net/url"
)

// LogMailer writes activation notices to a logger instead of sending mail.
// The activation link carries the ticket; it is logged at debug level only.
type LogMailer struct {
	logger    *slog.Logger
	serverURL string
}

// NewLogMailer creates a LogMailer whose links point at serverURL.
func NewLogMailer(logger *slog.Logger, serverURL string) *LogMailer {
	return &LogMailer{logger: logger, serverURL: serverURL}
}

// SendActivation implements Mailer.
func (m *LogMailer) SendActivation(ctx context.Context, msg ActivationMessage) error {
	link := m.serverURL + "/auth/activate?ticket=" + url.QueryEscape(msg.Ticket)
	m.logger.InfoContext(ctx, "activation notice", "to", msg.To, "display_name", msg.DisplayName,
		"expires_at", msg.ExpiresAt)
	m.logger.DebugContext(ctx, "activation link", "to", msg.To, "link", link)
	return nil
}
