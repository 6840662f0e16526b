package sshutil

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"
)

// target is where and as whom to connect.
type target struct {
	host     string
	port     string
	user     string
	identity string
}

func (t target) addr() string {
	return net.JoinHostPort(t.host, t.port)
}

// parseTarget splits [user@]host[:port]. A suffix that isn't a port
// number stays part of the host.
func parseTarget(spec string) target {
	t := target{port: "22", user: localUser()}

	if i := strings.Index(spec, "@"); i >= 0 {
		t.user, spec = spec[:i], spec[i+1:]
	}
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		if _, err := strconv.Atoi(spec[i+1:]); err == nil {
			t.port, spec = spec[i+1:], spec[:i]
		}
	}
	t.host = spec
	return t
}

var matchWarned sync.Once

// resolveTarget applies the ~/.ssh/config entry for spec's host, if any,
// on top of parseTarget.
func resolveTarget(spec string) target {
	t := parseTarget(spec)
	alias := t.host

	content, matchLine, err := readConfigBeforeMatch(sshConfigPath())
	if err != nil {
		return t
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return t
	}

	found := false
	for key, dst := range map[string]*string{
		"HostName":     &t.host,
		"Port":         &t.port,
		"User":         &t.user,
		"IdentityFile": &t.identity,
	} {
		if v, _ := cfg.Get(alias, key); v != "" {
			*dst = v
			found = true
		}
	}
	t.identity = expandHome(t.identity)

	if !found && matchLine > 0 {
		matchWarned.Do(func() {
			warn("Jump host '%s' not found in ~/.ssh/config; entries after the Match block on line %d are not read",
				alias, matchLine)
		})
	}
	return t
}

// readConfigBeforeMatch returns the ssh config up to its first Match
// directive, which ssh_config can't parse, and that directive's line
// number (0 when there is none).
func readConfigBeforeMatch(path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "match") {
			return []byte(strings.Join(lines[:i], "\n")), i + 1, nil
		}
	}
	return data, 0, nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func sshConfigPath() string  { return filepath.Join(homeDir(), ".ssh", "config") }
func knownHostsPath() string { return filepath.Join(homeDir(), ".ssh", "known_hosts") }

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(homeDir(), rest)
	}
	return path
}

// localUser is the default login: $USER, then %USERNAME%, then the
// Windows built-in administrator.
func localUser() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" {
			return u
		}
	}
	return "Administrator"
}
