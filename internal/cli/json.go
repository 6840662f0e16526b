package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/probe"
)

// JSONEnvelope wraps --json output in a consistent structure for scripts.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeRegistry          = "REGISTRY_ERROR"
	ErrCodeProbeTimeout      = "PROBE_TIMEOUT"
	ErrCodeProbeUnreachable  = "PROBE_UNREACHABLE"
	ErrCodeProbeMalformed    = "PROBE_MALFORMED_OUTPUT"
	ErrCodeProbeFailed       = "PROBE_FAILED"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts an error to a JSONError, looking through wrapping
// for structured and probe errors.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var probeErr *probe.Error
	if stderrors.As(err, &probeErr) {
		return probeErrorToJSON(probeErr)
	}

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return &JSONError{
			Code:       mapErrorCode(appErr.Code, appErr.Message),
			Message:    appErr.Message,
			Suggestion: appErr.Suggestion,
		}
	}

	return &JSONError{Code: ErrCodeUnknown, Message: err.Error()}
}

func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		if strings.Contains(strings.ToLower(message), "not found") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrRegistry:
		return ErrCodeRegistry
	case errors.ErrProbe:
		return ErrCodeProbeFailed
	case errors.ErrSSH:
		return ErrCodeSSHConnectionFail
	case errors.ErrExec:
		return ErrCodeCommandFailed
	}
	return ErrCodeUnknown
}

func probeErrorToJSON(e *probe.Error) *JSONError {
	var code string
	switch e.Reason {
	case probe.ReasonTimeout:
		code = ErrCodeProbeTimeout
	case probe.ReasonUnreachable:
		code = ErrCodeProbeUnreachable
	case probe.ReasonMalformedOutput:
		code = ErrCodeProbeMalformed
	default:
		code = ErrCodeCommandFailed
	}

	return &JSONError{
		Code:    code,
		Message: e.Error(),
		Details: map[string]interface{}{
			"host":   e.Host,
			"query":  e.Query,
			"reason": e.Reason.String(),
		},
	}
}
