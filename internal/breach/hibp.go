// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package breach screens passwords against the Have I Been Pwned range API.
//
// Only the first five hex characters of the password's SHA-1 digest leave
// the process; matching against the returned suffixes happens locally.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // G505: the range API is keyed by SHA-1
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// DefaultEndpoint is the public range API root.
const DefaultEndpoint = "https://api.pwnedpasswords.com/range/"

const prefixLen = 5

// Config configures a Client.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Client implements auth.BreachChecker over the k-anonymity range API.
type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
}

// NewClient creates a Client. An empty endpoint selects DefaultEndpoint.
func NewClient(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, oops.With("endpoint", endpoint).Errorf("breach endpoint must be an http(s) URL")
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "authgate"
	}
	return &Client{endpoint: endpoint, http: client, userAgent: userAgent}, nil
}

// IsBreached reports whether password appears in the corpus with a
// non-zero count.
func (c *Client) IsBreached(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password)) //nolint:gosec // G401: see import
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+prefix, nil)
	if err != nil {
		return false, oops.With("operation", "build range request").Wrap(err)
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, oops.With("operation", "range request").Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, oops.With("operation", "range request").
			With("status", resp.StatusCode).
			Errorf("unexpected range API status %d", resp.StatusCode)
	}

	found, err := matchSuffix(resp, suffix)
	if err != nil {
		return false, oops.With("operation", "read range response").Wrap(err)
	}
	return found, nil
}

// matchSuffix scans "SUFFIX:COUNT" lines. Padding entries carry a zero count.
func matchSuffix(resp *http.Response, suffix string) (bool, error) {
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		candidate, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !strings.EqualFold(candidate, suffix) {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return false, oops.With("line", scanner.Text()).Wrap(err)
		}
		return n > 0, nil
	}
	return false, scanner.Err()
}

var _ auth.BreachChecker = (*Client)(nil)
