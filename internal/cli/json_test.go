package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) JSONEnvelope {
	t.Helper()
	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	return env
}

func TestWriteJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, map[string]string{"key": "value"}))

	env := decodeEnvelope(t, &buf)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)

	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", data["key"])

	// Two-space indentation.
	assert.Contains(t, buf.String(), "\n  \"success\": true")
}

func TestWriteJSONFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       string
		message    string
		suggestion string
	}{
		{
			name:    "generic error",
			err:     fmt.Errorf("boom"),
			code:    ErrCodeUnknown,
			message: "boom",
		},
		{
			name:       "settings file missing",
			err:        errors.New(errors.ErrConfig, "Settings file not found: /tmp/x.yaml", "Run 'rdpmon settings init'"),
			code:       ErrCodeConfigNotFound,
			message:    "Settings file not found: /tmp/x.yaml",
			suggestion: "Run 'rdpmon settings init'",
		},
		{
			name:    "invalid settings",
			err:     errors.New(errors.ErrConfig, "Unknown runner mode 'x'", ""),
			code:    ErrCodeConfigInvalid,
			message: "Unknown runner mode 'x'",
		},
		{
			name:    "registry error through wrapping",
			err:     fmt.Errorf("adding: %w", errors.New(errors.ErrRegistry, "Server 'DC01' already exists", "")),
			code:    ErrCodeRegistry,
			message: "Server 'DC01' already exists",
		},
		{
			name:    "ssh error",
			err:     errors.New(errors.ErrSSH, "Couldn't reach jump01", ""),
			code:    ErrCodeSSHConnectionFail,
			message: "Couldn't reach jump01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteJSONFromError(&buf, tt.err))

			env := decodeEnvelope(t, &buf)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.message, env.Error.Message)
			assert.Equal(t, tt.suggestion, env.Error.Suggestion)
		})
	}
}

func TestErrorToJSON_ProbeError(t *testing.T) {
	tests := []struct {
		reason probe.FailReason
		code   string
	}{
		{probe.ReasonTimeout, ErrCodeProbeTimeout},
		{probe.ReasonUnreachable, ErrCodeProbeUnreachable},
		{probe.ReasonMalformedOutput, ErrCodeProbeMalformed},
		{probe.ReasonExecution, ErrCodeCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			pe := &probe.Error{Host: "10.0.0.1", Query: probe.QuerySessions, Reason: tt.reason, Cause: context.DeadlineExceeded}
			got := ErrorToJSON(pe)
			assert.Equal(t, tt.code, got.Code)

			details, ok := got.Details.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "10.0.0.1", details["host"])
			assert.Equal(t, "qwinsta", details["query"])
		})
	}
}

func TestErrorToJSON_Nil(t *testing.T) {
	assert.Nil(t, ErrorToJSON(nil))
}
