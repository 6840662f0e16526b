package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// LockedKeyError means a private key needs a passphrase rdpmon can't ask for.
type LockedKeyError struct {
	Path string
}

func (e *LockedKeyError) Error() string {
	return "private key " + e.Path + " is passphrase protected"
}

var (
	agentOnce sync.Once
	agentConn net.Conn
	agentKeys agent.ExtendedAgent
)

// collectAuth gathers auth methods: the agent first, then the configured
// identity, then the default key files. Keys that need a passphrase are
// returned in locked.
func collectAuth(identity string) (methods []ssh.AuthMethod, locked []string) {
	if a := agentAuth(); a != nil {
		methods = append(methods, a)
	}

	seen := map[string]bool{}
	for _, path := range append([]string{identity}, defaultKeyFiles()...) {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		signer, err := loadKey(path)
		var lk *LockedKeyError
		switch {
		case err == nil:
			methods = append(methods, ssh.PublicKeys(signer))
		case stderrors.As(err, &lk):
			locked = append(locked, path)
		}
	}
	return methods, locked
}

// agentAuth returns nil when there is no agent or it holds no keys, so an
// empty agent doesn't use up an auth attempt.
func agentAuth() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	agentOnce.Do(func() {
		if c, err := net.Dial("unix", sock); err == nil {
			agentConn = c
			agentKeys = agent.NewClient(c)
		}
	})
	if agentKeys == nil {
		return nil
	}
	if signers, err := agentKeys.Signers(); err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentKeys.Signers)
}

// CloseAgent drops the agent connection, if one was opened.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

func loadKey(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || bytes.Contains(pem, []byte("ENCRYPTED")) {
			return nil, &LockedKeyError{Path: path}
		}
		return nil, err
	}
	return signer, nil
}

func defaultKeyFiles() []string {
	dir := filepath.Join(homeDir(), ".ssh")
	return []string{
		filepath.Join(dir, "id_ed25519"),
		filepath.Join(dir, "id_ecdsa"),
		filepath.Join(dir, "id_rsa"),
	}
}

// HostKeyChangedError reports a jump host key that differs from the one
// in known_hosts.
type HostKeyChangedError struct {
	Addr    string
	Offered string
	File    string
	Known   []string
}

func (e *HostKeyChangedError) Error() string {
	return fmt.Sprintf("jump host %s offered a %s key that doesn't match known_hosts", e.Addr, e.Offered)
}

// Hint tells the user how to replace the stale known_hosts entry.
func (e *HostKeyChangedError) Hint() string {
	host := e.Addr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	known := "none"
	if len(e.Known) > 0 {
		known = strings.Join(e.Known, ", ")
	}
	return fmt.Sprintf("known_hosts has: %s\n"+
		"If the jump host was reinstalled, drop the old entry and reconnect:\n"+
		"  ssh-keygen -f %s -R %s\n"+
		"  ssh %s", known, e.File, host, host)
}

// knownHostsCallback verifies against path, creating an empty file when
// missing so first contact fails cleanly instead of erroring on open.
func knownHostsCallback(path string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, err
		}
	}

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}

	return func(addr string, remote net.Addr, key ssh.PublicKey) error {
		err := check(addr, remote, key)
		var ke *knownhosts.KeyError
		if stderrors.As(err, &ke) && len(ke.Want) > 0 {
			known := make([]string, len(ke.Want))
			for i, k := range ke.Want {
				known[i] = k.Key.Type()
			}
			return &HostKeyChangedError{Addr: addr, Offered: key.Type(), File: path, Known: known}
		}
		return err
	}, nil
}
