// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/pkg/errutil"
)

func startObservability(t *testing.T, ready *atomic.Bool) string {
	t.Helper()
	server := observability.NewServer("127.0.0.1:0", ready.Load, nil)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server.Addr()
}

func runStatusCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"status"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatus_Ready(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	addr := startObservability(t, &ready)

	out, err := runStatusCmd(t, "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "PROBE")
	assert.Contains(t, out, "liveness")
	assert.Contains(t, out, "readiness")
	assert.NotContains(t, out, "503")
}

func TestStatus_NotReady(t *testing.T) {
	var ready atomic.Bool
	addr := startObservability(t, &ready)

	out, err := runStatusCmd(t, "--addr", addr, "--json")
	errutil.AssertErrorCode(t, err, "SERVER_NOT_READY")

	var statuses []ProbeStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].OK)
	assert.False(t, statuses[1].OK)
	assert.Equal(t, 503, statuses[1].Status)
	assert.Equal(t, "not ready", statuses[1].Body)
}

func TestStatus_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	out, err := runStatusCmd(t, "--addr", addr, "--timeout", "500ms")
	errutil.AssertErrorCode(t, err, "SERVER_NOT_READY")
	assert.Contains(t, out, "down")
	assert.Contains(t, out, "failed to connect")
}

func TestFormatStatusTable(t *testing.T) {
	out := formatStatusTable([]ProbeStatus{
		{Probe: "liveness", OK: true, Status: 200, Body: "ok"},
		{Probe: "readiness", Status: 503, Body: "not ready"},
	})
	assert.Contains(t, out, "liveness   ok")
	assert.Contains(t, out, "readiness  503")
}
