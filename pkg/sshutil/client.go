package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Client is an open connection to the Windows jump host.
type Client struct {
	*ssh.Client
	Host    string // runner.ssh_host as configured
	Address string // resolved host:port
}

// DialOptions controls how the jump host connection is made.
type DialOptions struct {
	// Timeout bounds the TCP connect and the SSH handshake. Zero means 10s.
	Timeout time.Duration

	// StrictHostKey checks the host key against ~/.ssh/known_hosts.
	// When false any key is accepted.
	StrictHostKey bool
}

// WarningHandler receives non-fatal warnings, such as a Match block in
// ~/.ssh/config hiding later entries. Nil drops them.
var WarningHandler func(message string)

func warn(format string, args ...interface{}) {
	if WarningHandler != nil {
		WarningHandler(fmt.Sprintf(format, args...))
	}
}

// Dial connects to the jump host. host may be a ~/.ssh/config alias, a
// bare hostname, user@host, host:port or user@host:port.
func Dial(host string, opts DialOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	t := resolveTarget(host)

	auth, locked := collectAuth(t.identity)
	if len(auth) == 0 {
		if len(locked) > 0 {
			return nil, errors.New(errors.ErrSSH,
				"Only passphrase-protected keys found: "+strings.Join(locked, ", "),
				unlockHint(locked))
		}
		return nil, errors.New(errors.ErrSSH,
			"No SSH auth methods available for the jump host",
			"Load a key into the agent (ssh-add) or set IdentityFile for the host in ~/.ssh/config.")
	}

	hostKeys := ssh.InsecureIgnoreHostKey() //nolint:gosec // runner.strict_host_key: false
	if opts.StrictHostKey {
		cb, err := knownHostsCallback(knownHostsPath())
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				"Couldn't load ~/.ssh/known_hosts",
				"Fix the file's permissions, or set runner.strict_host_key: false.")
		}
		hostKeys = cb
	}

	conn, err := net.DialTimeout("tcp", t.addr(), opts.Timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach jump host '%s' at %s", host, t.addr()),
			dialHint(err))
	}

	cfg := &ssh.ClientConfig{
		User:            t.user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         opts.Timeout,
	}
	// ClientConfig.Timeout only covers the TCP connect of ssh.Dial.
	_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr(), cfg)
	if err != nil {
		conn.Close()

		var changed *HostKeyChangedError
		if stderrors.As(err, &changed) {
			return nil, errors.New(errors.ErrSSH, changed.Error(), changed.Hint())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with jump host '%s' failed", host),
			handshakeHint(err, locked))
	}

	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: t.addr(),
	}, nil
}

// Close closes the connection. Safe on a zero Client.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// Alive sends a keepalive and reports whether the jump host answered
// before ctx ended.
func (c *Client) Alive(ctx context.Context) bool {
	if c.Client == nil {
		return false
	}
	answered := make(chan error, 1)
	go func() {
		_, _, err := c.SendRequest("keepalive@openssh.com", true, nil)
		answered <- err
	}()
	select {
	case err := <-answered:
		return err == nil
	case <-ctx.Done():
		return false
	}
}

func dialHint(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return "Nothing listens on the SSH port. Is the OpenSSH Server feature enabled on the jump host?"
	case strings.Contains(msg, "no route"), strings.Contains(msg, "unreachable"):
		return "No route to the jump host. Check VPN and network settings."
	case strings.Contains(msg, "timeout"):
		return "The connection timed out. A firewall may be dropping port 22."
	}
	return "Check that the jump host is up and reachable from here."
}

func handshakeHint(err error, locked []string) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods"):
		if len(locked) > 0 {
			return unlockHint(locked)
		}
		return "The jump host rejected every key. List loaded keys with: ssh-add -l"
	case strings.Contains(msg, "host key"):
		return "Connect once by hand (ssh <host>) to record the host key."
	}
	return "Try the same connection by hand with: ssh -v <host>"
}

func unlockHint(keys []string) string {
	var b strings.Builder
	b.WriteString("Load the key(s) into the agent first:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  ssh-add %s\n", k)
	}
	return strings.TrimRight(b.String(), "\n")
}
