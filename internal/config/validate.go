package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/i18n"
	"github.com/rileyhilliard/rdpmon/internal/probe"
)

// Validate checks settings for errors and returns structured error messages.
func Validate(s *Settings) error {
	if s.Interval < time.Second {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Refresh interval %s is too short", s.Interval),
			"Use at least 1s, e.g. 'interval: 60s'.")
	}

	if s.ProbeTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"probe_timeout must be positive",
			"Set something like 'probe_timeout: 20s'.")
	}

	if strings.TrimSpace(s.SessionPrefix) == "" {
		return errors.New(errors.ErrConfig,
			"session_prefix can't be empty",
			fmt.Sprintf("Remote-desktop sessions are usually named '%s<n>'.", DefaultSessionPrefix))
	}

	if strings.TrimSpace(s.Registry) == "" {
		return errors.New(errors.ErrConfig,
			"registry path can't be empty",
			"Point 'registry' at a JSON file, e.g. "+DefaultRegistryPath())
	}

	if !i18n.Supported(s.Language) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported language '%s'", s.Language),
			"Use 'en' or 'pt'.")
	}

	if err := validateEncodings(s); err != nil {
		return err
	}

	return validateRunner(s.Runner)
}

func validateEncodings(s *Settings) error {
	if _, err := probe.LookupEncoding(s.DefaultEncoding); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Unknown default_encoding '%s'", s.DefaultEncoding),
			"Supported: "+strings.Join(probe.EncodingNames(), ", "))
	}
	for host, name := range s.Encodings {
		if _, err := probe.LookupEncoding(name); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Unknown encoding '%s' for host %s", name, host),
				"Supported: "+strings.Join(probe.EncodingNames(), ", "))
		}
	}
	return nil
}

func validateRunner(r RunnerSettings) error {
	if r.MaxSessions < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("runner.max_sessions must be at least 1, got %d", r.MaxSessions),
			fmt.Sprintf("Remove the setting to use the default of %d.", DefaultMaxSessions))
	}

	switch r.Mode {
	case RunnerLocal:
		return nil
	case RunnerSSH:
		if strings.TrimSpace(r.SSHHost) == "" {
			return errors.New(errors.ErrConfig,
				"runner.mode is 'ssh' but runner.ssh_host is empty",
				"Set runner.ssh_host to a Windows jump host (alias, user@host or host:port).")
		}
		return nil
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown runner mode '%s'", r.Mode),
			"Use 'local' or 'ssh'.")
	}
}
