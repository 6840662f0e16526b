package probe

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/rdpmon/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// jumpHost is an in-process sshd that answers every exec with a fixed
// output. It refuses sessions beyond maxSessions the way OpenSSH does.
type jumpHost struct {
	addr        string
	maxSessions int32
	output      string
	delay       time.Duration
	hang        bool

	open     atomic.Int32
	peak     atomic.Int32
	rejected atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

func startJumpHost(t *testing.T, jh *jumpHost) *jumpHost {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	jh.addr = ln.Addr().String()

	t.Cleanup(func() {
		ln.Close()
		jh.mu.Lock()
		defer jh.mu.Unlock()
		for _, c := range jh.conns {
			c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			jh.mu.Lock()
			jh.conns = append(jh.conns, conn)
			jh.mu.Unlock()
			go jh.serve(conn, cfg)
		}
	}()
	return jh
}

func (jh *jumpHost) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}

	if jh.hang {
		// Never answer keepalives or session requests.
		go func() {
			for range reqs {
			}
		}()
		for range chans {
		}
		return
	}

	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "sessions only")
			continue
		}
		n := jh.open.Add(1)
		if n > jh.maxSessions {
			jh.open.Add(-1)
			jh.rejected.Add(1)
			_ = nc.Reject(ssh.ResourceShortage, "no more sessions")
			continue
		}
		for {
			peak := jh.peak.Load()
			if n <= peak || jh.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		ch, chReqs, err := nc.Accept()
		if err != nil {
			jh.open.Add(-1)
			continue
		}
		go jh.exec(ch, chReqs)
	}
}

func (jh *jumpHost) exec(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	defer jh.open.Add(-1)

	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)
		time.Sleep(jh.delay)
		_, _ = io.WriteString(ch, jh.output)
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
		return
	}
}

// dialer connects to jh without host key checks or auth and counts dials.
func (jh *jumpHost) dialer(dials *atomic.Int32) func(string, sshutil.DialOptions) (*sshutil.Client, error) {
	return func(host string, opts sshutil.DialOptions) (*sshutil.Client, error) {
		dials.Add(1)
		c, err := ssh.Dial("tcp", jh.addr, &ssh.ClientConfig{
			User:            "ops",
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &sshutil.Client{Client: c, Host: host, Address: jh.addr}, nil
	}
}

func TestSSHRunner_SessionLimitKeepsConnection(t *testing.T) {
	jh := startJumpHost(t, &jumpHost{
		maxSessions: 3,
		output:      "SERVICE_NAME: Spooler\r\n        STATE              : 4  RUNNING\r\n",
		delay:       50 * time.Millisecond,
	})

	var dials atomic.Int32
	r := NewSSHRunner("jump01", 2*time.Second, false, 0)
	r.dial = jh.dialer(&dials)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var ok, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Run(ctx, ServiceCommand("10.0.0.1", "Spooler"))
			if err != nil || !ServiceRunning(string(out)) {
				failed.Add(1)
				return
			}
			ok.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), ok.Load())
	assert.Equal(t, int32(0), failed.Load())
	assert.Equal(t, int32(1), dials.Load(), "a refused session must not redial")
	assert.Positive(t, jh.rejected.Load(), "the host should have refused some sessions")
}

func TestSSHRunner_MaxSessionsBoundsConcurrency(t *testing.T) {
	jh := startJumpHost(t, &jumpHost{
		maxSessions: 10,
		output:      "ok\r\n",
		delay:       30 * time.Millisecond,
	})

	var dials atomic.Int32
	r := NewSSHRunner("jump01", 2*time.Second, false, 2)
	r.dial = jh.dialer(&dials)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), SessionCommand("10.0.0.1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, jh.peak.Load(), int32(2))
	assert.Equal(t, int32(0), jh.rejected.Load())
	assert.Equal(t, int32(1), dials.Load())
}

func TestSSHRunner_UnresponsiveHostHonorsTimeout(t *testing.T) {
	jh := startJumpHost(t, &jumpHost{hang: true})

	var dials atomic.Int32
	r := NewSSHRunner("jump01", 300*time.Millisecond, false, 0)
	r.dial = jh.dialer(&dials)
	defer r.Close()

	// Cache a connection first; the handshake completes even on a hung host.
	_, err := r.get(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	start := time.Now()
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_, errs[i] = r.Run(ctx, SessionCommand("10.0.0.1"))
		}(i)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 2*time.Second)
	for _, err := range errs {
		require.Error(t, err)
		assert.Equal(t, ReasonTimeout, reasonFor(err))
	}

	// The keepalive goes unanswered, so the connection is dropped.
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.client == nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSSHRunner_ClosedConnectionRedials(t *testing.T) {
	jh := startJumpHost(t, &jumpHost{maxSessions: 10, output: "ok\r\n"})

	var dials atomic.Int32
	r := NewSSHRunner("jump01", 2*time.Second, false, 0)
	r.dial = jh.dialer(&dials)
	defer r.Close()

	first, err := r.get(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.client == nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := r.Run(ctx, SessionCommand("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "ok\r\n", string(out))
	assert.Equal(t, int32(2), dials.Load())
}
