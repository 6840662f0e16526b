package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrRegistry,
		ErrProbe,
		ErrExec,
		ErrSSH,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "Invalid settings in config.yaml",
			suggestion: "Check your settings file syntax",
		},
		{
			name:       "registry error",
			code:       ErrRegistry,
			message:    "Server 'DC01' already exists",
			suggestion: "Pick another name or remove the existing server first",
		},
		{
			name:       "probe error",
			code:       ErrProbe,
			message:    "qwinsta timed out",
			suggestion: "Check the host is reachable",
		},
		{
			name:       "exec error",
			code:       ErrExec,
			message:    "tasklist not found",
			suggestion: "Run rdpmon on a Windows host or use the ssh runner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name          string
		err           *Error
		expectedParts []string
		notExpected   []string
	}{
		{
			name: "basic error formatting",
			err:  New(ErrConfig, "Invalid configuration", "Check config.yaml syntax"),
			expectedParts: []string{
				"Invalid configuration",
				"Check config.yaml syntax",
			},
		},
		{
			name: "error with failure symbol",
			err:  New(ErrSSH, "Connection failed", "Try again"),
			expectedParts: []string{
				"✗",
				"Connection failed",
			},
		},
		{
			name: "error without suggestion",
			err:  New(ErrExec, "Command failed", ""),
			expectedParts: []string{
				"Command failed",
			},
			notExpected: []string{
				"\n\n  \n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := tt.err.Error()

			for _, part := range tt.expectedParts {
				assert.Contains(t, output, part, "output should contain %q", part)
			}

			for _, part := range tt.notExpected {
				assert.NotContains(t, output, part, "output should not contain %q", part)
			}
		})
	}
}

func TestWrapWithCode(t *testing.T) {
	cause := errors.New("permission denied")
	wrapped := WrapWithCode(cause, ErrRegistry, "Failed to save servers", "Check the file permissions")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrRegistry, wrapped.Code)
	assert.Equal(t, "Failed to save servers", wrapped.Message)
	assert.Equal(t, "Check the file permissions", wrapped.Suggestion)
	assert.Equal(t, cause, wrapped.Cause)
	assert.Contains(t, wrapped.Error(), "permission denied")
}

func TestErrorsIsAndAs(t *testing.T) {
	cause := errors.New("specific error")
	wrapped := WrapWithCode(cause, ErrExec, "Execution failed", "")

	assert.Equal(t, cause, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, cause))

	var rdpErr *Error
	require.True(t, errors.As(wrapped, &rdpErr))
	assert.Equal(t, ErrExec, rdpErr.Code)
}

func TestIsCode(t *testing.T) {
	err := New(ErrConfig, "Config error", "")

	assert.True(t, IsCode(err, ErrConfig))
	assert.False(t, IsCode(err, ErrSSH))
	assert.False(t, IsCode(errors.New("standard error"), ErrConfig))
	assert.False(t, IsCode(nil, ErrConfig))
}

func TestCodeOf(t *testing.T) {
	inner := New(ErrSSH, "Jump host closed the connection", "")
	outer := WrapWithCode(inner, ErrRegistry, "Failed to save servers", "")

	assert.Equal(t, ErrRegistry, CodeOf(outer))
	assert.Equal(t, ErrSSH, CodeOf(fmt.Errorf("refresh: %w", inner)))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
	assert.False(t, IsCode(errors.New("plain"), ""))
}

func TestErrorRendersAllSections(t *testing.T) {
	err := WrapWithCode(errors.New("EOF"), ErrSSH, "Lost the jump host", "Reconnect with: rdpmon watch")
	assert.Equal(t, "✗ Lost the jump host\n\n  EOF\n\n  Reconnect with: rdpmon watch\n", err.Error())

	assert.Equal(t, "✗ Bad interval\n", New(ErrConfig, "Bad interval", "").Error())
}

func TestErrorMessageStructure(t *testing.T) {
	err := WrapWithCode(
		errors.New("dial tcp 10.0.0.5:22: i/o timeout"),
		ErrSSH,
		"Can't reach the jump host",
		"Check runner.ssh_host in your settings",
	)

	lines := strings.Split(err.Error(), "\n")

	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "✗"), "First line should start with failure symbol")
	assert.Contains(t, lines[0], "Can't reach the jump host")
}
