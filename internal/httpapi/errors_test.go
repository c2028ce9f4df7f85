// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/httpapi"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind auth.Kind
		want int
	}{
		{auth.KindInvalidInput, http.StatusBadRequest},
		{auth.KindWeakCredential, http.StatusBadRequest},
		{auth.KindUnauthorized, http.StatusUnauthorized},
		{auth.KindProviderResolution, http.StatusUnauthorized},
		{auth.KindConflict, http.StatusConflict},
		{auth.KindDependency, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, httpapi.StatusFor(tt.kind))
		})
	}
}
