package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name     string
		checks   map[string]Pinger
		advisory map[string]Pinger
		code     int
		status   string
	}{
		{"all ok", map[string]Pinger{"postgres": ok}, map[string]Pinger{"stacks": ok}, http.StatusOK, "ready"},
		{"advisory down", map[string]Pinger{"postgres": ok}, map[string]Pinger{"stacks": down}, http.StatusOK, "degraded"},
		{"required down", map[string]Pinger{"postgres": down}, map[string]Pinger{"stacks": ok}, http.StatusServiceUnavailable, "not_ready"},
		{"no advisory", map[string]Pinger{"postgres": ok}, nil, http.StatusOK, "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks, tt.advisory).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
			assert.Equal(t, tt.code, rec.Code)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.Len(t, body.Checks, len(tt.checks)+len(tt.advisory))
		})
	}
}
