// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

type statusConfig struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

var statusProbes = []string{"liveness", "readiness"}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running authgate server",
		Long:  `Query the liveness and readiness probes of a running server's metrics listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "127.0.0.1:9100", "metrics listener address of the server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-probe timeout")

	return cmd
}

// runStatus prints the probe results and fails when the server is not ready.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	statuses := make([]ProbeStatus, 0, len(statusProbes))
	healthy := true
	for _, probe := range statusProbes {
		s := queryProbe(cmd.Context(), client, cfg.addr, probe)
		healthy = healthy && s.OK
		statuses = append(statuses, s)
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	if !healthy {
		return oops.Code("SERVER_NOT_READY").With("addr", cfg.addr).Errorf("server at %s is not ready", cfg.addr)
	}
	return nil
}

func queryProbe(ctx context.Context, client *http.Client, addr, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz/"+probe, http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	status.Status = resp.StatusCode
	status.Body = strings.TrimSpace(string(body))
	status.OK = resp.StatusCode == http.StatusOK
	return status
}

// formatStatusTable formats probe results as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")
	for _, s := range statuses {
		switch {
		case s.Error != "":
			_, _ = fmt.Fprintf(w, "%s\tdown\t%s\n", s.Probe, s.Error)
		case s.OK:
			_, _ = fmt.Fprintf(w, "%s\tok\t%s\n", s.Probe, s.Body)
		default:
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", s.Probe, s.Status, s.Body)
		}
	}

	_ = w.Flush()
	return buf.String()
}
