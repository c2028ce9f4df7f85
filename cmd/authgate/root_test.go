// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
	assert.Contains(t, names, "status")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"serve", "--help"})
	require.NoError(t, cmd.Execute())

	for _, flag := range []string{"--addr", "--metrics-addr", "--log-format", "--database-url", "--jwt-algorithm", "--auto-migrate", "--breach-check"} {
		assert.Contains(t, buf.String(), flag)
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTHGATE_JWT_KEY", "")

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"serve"})
	assert.Error(t, cmd.Execute())
}
