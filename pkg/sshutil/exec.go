package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// killWait bounds how long ExecContext waits for a killed command to wind
// down before returning.
const killWait = time.Second

type openedSession struct {
	session *ssh.Session
	err     error
}

// ExecContext runs cmd on the jump host and returns its stdout and exit code.
// A non-zero exit code with a nil error means the command ran but failed.
// When ctx ends first the session is closed and ctx.Err() is returned, even
// if the jump host never answers.
func (c *Client) ExecContext(ctx context.Context, cmd string) (stdout []byte, exitCode int, err error) {
	session, err := c.newSession(ctx)
	if err != nil {
		return nil, -1, err
	}
	defer session.Close()

	var stdoutBuf bytes.Buffer
	session.Stdout = &stdoutBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		select {
		case <-done:
		case <-time.After(killWait):
		}
		return nil, -1, ctx.Err()
	case runErr := <-done:
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				return stdoutBuf.Bytes(), exitErr.ExitStatus(), nil
			}
			return nil, -1, errors.WrapWithCode(runErr, errors.ErrExec,
				fmt.Sprintf("Failed to execute command: %s", cmd),
				"Check the command exists on the jump host.")
		}
	}

	return stdoutBuf.Bytes(), 0, nil
}

// newSession opens a session channel, giving up when ctx ends. A session
// that opens after that is closed as soon as it arrives.
func (c *Client) newSession(ctx context.Context) (*ssh.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opened := make(chan openedSession, 1)
	go func() {
		s, err := c.Client.NewSession()
		opened <- openedSession{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if o := <-opened; o.session != nil {
				_ = o.session.Close()
			}
		}()
		return nil, ctx.Err()
	case o := <-opened:
		if o.err != nil {
			return nil, errors.WrapWithCode(o.err, errors.ErrSSH,
				"Failed to create SSH session",
				sessionHint(o.err))
		}
		return o.session, nil
	}
}

// IsSessionRejected reports whether err is the jump host refusing a new
// session, for example because sshd's MaxSessions is reached. The
// connection itself is still usable.
func IsSessionRejected(err error) bool {
	var rejected *ssh.OpenChannelError
	return stderrors.As(err, &rejected)
}

// IsConnectionClosed reports whether err means the connection to the jump
// host is gone.
func IsConnectionClosed(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed)
}

func sessionHint(err error) string {
	if IsSessionRejected(err) {
		return "The jump host is at its session limit. Lower runner.max_sessions or raise MaxSessions in sshd_config."
	}
	return "Connection may have been closed. Try reconnecting."
}
