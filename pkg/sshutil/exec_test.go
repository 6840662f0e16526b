package sshutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestIsSessionRejected(t *testing.T) {
	refused := &ssh.OpenChannelError{Reason: ssh.ResourceShortage, Message: "no more sessions"}
	wrapped := errors.WrapWithCode(refused, errors.ErrSSH, "Failed to create SSH session", sessionHint(refused))

	assert.True(t, IsSessionRejected(wrapped))
	assert.Contains(t, wrapped.Suggestion, "runner.max_sessions")
	assert.False(t, IsSessionRejected(io.EOF))
	assert.False(t, IsSessionRejected(nil))
}

func TestIsConnectionClosed(t *testing.T) {
	assert.True(t, IsConnectionClosed(fmt.Errorf("session: %w", io.EOF)))
	assert.True(t, IsConnectionClosed(&net.OpError{Op: "write", Net: "tcp", Err: net.ErrClosed}))
	assert.False(t, IsConnectionClosed(&ssh.OpenChannelError{Reason: ssh.ResourceShortage}))
	assert.Equal(t, "Connection may have been closed. Try reconnecting.", sessionHint(io.EOF))
}

func TestExecContext_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Client{}
	out, code, err := c.ExecContext(ctx, "qwinsta /server:10.0.0.1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Equal(t, -1, code)
}

func TestAlive_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, (&Client{}).Alive(ctx))
}
