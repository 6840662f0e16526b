package probe

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"sync"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/pkg/sshutil"
)

// Runner executes one query command and returns its stdout.
// A command that ran and exited non-zero is not an error.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// LocalRunner runs commands on this machine.
type LocalRunner struct{}

// Run executes cmd with exec.CommandContext. stderr is discarded.
func (LocalRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	var stdout bytes.Buffer

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdout = &stdout

	runErr := c.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			return stdout.Bytes(), nil
		}
		return nil, errors.WrapWithCode(runErr, errors.ErrExec,
			"Couldn't run "+cmd.Name+" locally",
			"rdpmon needs the Windows admin tools (qwinsta, tasklist, sc) or runner.mode: ssh.")
	}

	return stdout.Bytes(), nil
}

// DefaultMaxSessions matches the MaxSessions default of OpenSSH sshd.
const DefaultMaxSessions = 10

// Backoff between attempts when the jump host refuses a new session.
const (
	rejectBackoffMin = 25 * time.Millisecond
	rejectBackoffMax = 500 * time.Millisecond
)

// SSHRunner runs commands on a Windows jump host. One connection is kept
// and reused across refresh cycles. At most maxSessions commands share it
// at a time. A connection is only dropped once it is known to be dead.
type SSHRunner struct {
	host     string
	opts     sshutil.DialOptions
	sessions chan struct{}

	mu       sync.Mutex
	client   *sshutil.Client
	dialing  *dialCall
	checking bool

	dial func(host string, opts sshutil.DialOptions) (*sshutil.Client, error)
}

// dialCall is one in-progress dial shared by every caller waiting on it.
type dialCall struct {
	done   chan struct{}
	client *sshutil.Client
	err    error
}

// NewSSHRunner creates a runner for the given jump host. maxSessions below
// one means DefaultMaxSessions.
func NewSSHRunner(host string, dialTimeout time.Duration, strictHostKey bool, maxSessions int) *SSHRunner {
	if maxSessions < 1 {
		maxSessions = DefaultMaxSessions
	}
	return &SSHRunner{
		host:     host,
		opts:     sshutil.DialOptions{Timeout: dialTimeout, StrictHostKey: strictHostKey},
		sessions: make(chan struct{}, maxSessions),
		dial:     sshutil.Dial,
	}
}

// Run executes cmd on the jump host. A refused session is retried until
// ctx ends.
func (r *SSHRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	select {
	case r.sessions <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sessions }()

	backoff := rejectBackoffMin
	redialed := false
	for {
		client, err := r.get(ctx)
		if err != nil {
			return nil, err
		}

		out, _, err := client.ExecContext(ctx, cmd.String())
		switch {
		case err == nil:
			return out, nil

		case ctx.Err() != nil:
			r.verify(client)
			return nil, ctx.Err()

		case sshutil.IsSessionRejected(err):
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff = min(backoff*2, rejectBackoffMax)

		case sshutil.IsConnectionClosed(err) && !redialed:
			r.drop(client)
			redialed = true

		default:
			r.verify(client)
			return nil, err
		}
	}
}

// get returns the cached connection or dials one. Concurrent callers share
// a single dial, and each stops waiting when its ctx ends.
func (r *SSHRunner) get(ctx context.Context) (*sshutil.Client, error) {
	r.mu.Lock()
	if r.client != nil {
		client := r.client
		r.mu.Unlock()
		return client, nil
	}
	call := r.dialing
	if call == nil {
		call = &dialCall{done: make(chan struct{})}
		r.dialing = call
		go r.dialFor(call)
	}
	r.mu.Unlock()

	select {
	case <-call.done:
		return call.client, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *SSHRunner) dialFor(call *dialCall) {
	client, err := r.dial(r.host, r.opts)

	r.mu.Lock()
	r.dialing = nil
	if err == nil {
		r.client = client
	}
	r.mu.Unlock()

	if err == nil {
		go r.dropOnDisconnect(client)
	}
	call.client, call.err = client, err
	close(call.done)
}

// dropOnDisconnect forgets client as soon as its transport goes away.
func (r *SSHRunner) dropOnDisconnect(client *sshutil.Client) {
	if client.Client == nil {
		return
	}
	_ = client.Wait()
	r.drop(client)
}

// verify checks in the background whether client still answers
// keepalives and drops it if not. One check runs at a time.
func (r *SSHRunner) verify(client *sshutil.Client) {
	r.mu.Lock()
	if r.checking || r.client != client {
		r.mu.Unlock()
		return
	}
	r.checking = true
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.keepaliveTimeout())
		alive := client.Alive(ctx)
		cancel()

		r.mu.Lock()
		r.checking = false
		r.mu.Unlock()
		if !alive {
			r.drop(client)
		}
	}()
}

func (r *SSHRunner) keepaliveTimeout() time.Duration {
	if r.opts.Timeout > 0 {
		return r.opts.Timeout
	}
	return 10 * time.Second
}

// drop forgets client if it is still the cached connection and closes it.
func (r *SSHRunner) drop(client *sshutil.Client) {
	r.mu.Lock()
	stale := r.client == client
	if stale {
		r.client = nil
	}
	r.mu.Unlock()

	if stale {
		_ = client.Close()
	}
}

// Close closes the jump host connection, if any.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
