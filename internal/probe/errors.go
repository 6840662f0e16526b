package probe

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
)

// FailReason categorizes why a sub-query failed.
type FailReason int

const (
	// ReasonExecution means the query mechanism itself failed to launch or run.
	ReasonExecution FailReason = iota
	// ReasonTimeout means the sub-query hit the executor timeout.
	ReasonTimeout
	// ReasonUnreachable means the host gave no output or refused the connection.
	ReasonUnreachable
	// ReasonMalformedOutput means the output didn't have the expected shape.
	ReasonMalformedOutput
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timed out"
	case ReasonUnreachable:
		return "host unreachable"
	case ReasonMalformedOutput:
		return "malformed output"
	default:
		return "execution failed"
	}
}

// Error is a classified sub-query failure. It is reported as data on a
// Result and never aborts the other sub-queries.
type Error struct {
	Host   string
	Query  string
	Reason FailReason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s on %s: %s (%s)", e.Query, e.Host, e.Reason, causeText(e.Cause))
	}
	return fmt.Sprintf("%s on %s: %s", e.Query, e.Host, e.Reason)
}

// causeText keeps the single-line message of structured errors, whose
// Error() renders a multi-line block meant for the terminal.
func causeText(err error) string {
	var rdpErr *errors.Error
	if stderrors.As(err, &rdpErr) {
		return rdpErr.Message
	}
	return err.Error()
}

// Summary is the short form shown in place of a session list.
func (e *Error) Summary() string {
	if e.Reason == ReasonTimeout || e.Cause == nil {
		return e.Reason.String()
	}
	return causeText(e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var (
	errNoHost     = stderrors.New("no host address configured")
	errNoResponse = stderrors.New("no output from session query")
)

// classify wraps a runner error with its failure reason.
func classify(host, query string, err error) *Error {
	return &Error{Host: host, Query: query, Reason: reasonFor(err), Cause: err}
}

func reasonFor(err error) FailReason {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var execErr *exec.Error
	if stderrors.As(err, &execErr) || stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, os.ErrNotExist) {
		return ReasonExecution
	}

	// A jump host that can't be reached is our problem, not the target's.
	if errors.IsCode(err, errors.ErrSSH) {
		return ReasonExecution
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"no route to host",
		"network is unreachable",
		"rpc server is unavailable",
		"host unreachable",
	} {
		if strings.Contains(msg, marker) {
			return ReasonUnreachable
		}
	}

	return ReasonExecution
}
