package config

import (
	"strings"
	"time"
)

// Runner modes select where the Windows query commands execute.
const (
	RunnerLocal = "local"
	RunnerSSH   = "ssh"
)

// Defaults applied when the settings file omits a key.
const (
	DefaultInterval       = 60 * time.Second
	DefaultProbeTimeout   = 20 * time.Second
	DefaultSessionPrefix  = "rdp-tcp#"
	DefaultEncoding       = "utf-8"
	DefaultLanguage       = "en"
	DefaultRegistryFile   = "server_config.json"
	DefaultRunnerMode     = RunnerLocal
	DefaultStrictHostKeys = true
	DefaultMaxSessions    = 10
)

// Settings holds the application settings read from config.yaml.
// The monitored server roster lives separately in the registry file.
type Settings struct {
	// Interval between automatic fleet-wide refreshes.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// ProbeTimeout bounds every individual query command.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`

	// Registry is the path of the JSON file holding servers and watched users.
	Registry string `yaml:"registry" mapstructure:"registry"`

	// SessionPrefix is the session-name prefix that marks a remote-desktop row.
	SessionPrefix string `yaml:"session_prefix" mapstructure:"session_prefix"`

	// DefaultEncoding decodes session output for hosts not listed in Encodings.
	DefaultEncoding string `yaml:"default_encoding" mapstructure:"default_encoding"`

	// Encodings maps a host address to the encoding its session output uses.
	Encodings map[string]string `yaml:"encodings" mapstructure:"encodings"`

	// Language selects the dashboard strings ("en" or "pt").
	Language string `yaml:"language" mapstructure:"language"`

	// LogFile receives log output while the dashboard owns the terminal.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`

	Runner RunnerSettings `yaml:"runner" mapstructure:"runner"`
}

// RunnerSettings controls how query commands are executed.
type RunnerSettings struct {
	// Mode is "local" (run on this machine) or "ssh" (run on a Windows jump host).
	Mode string `yaml:"mode" mapstructure:"mode"`

	// SSHHost is the jump host alias, user@host or host:port for ssh mode.
	SSHHost string `yaml:"ssh_host" mapstructure:"ssh_host"`

	// StrictHostKey verifies the jump host against ~/.ssh/known_hosts.
	StrictHostKey bool `yaml:"strict_host_key" mapstructure:"strict_host_key"`

	// MaxSessions caps concurrent commands on the jump host connection.
	// Keep it at or below the host's sshd MaxSessions.
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions"`
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Interval:        DefaultInterval,
		ProbeTimeout:    DefaultProbeTimeout,
		Registry:        DefaultRegistryPath(),
		SessionPrefix:   DefaultSessionPrefix,
		DefaultEncoding: DefaultEncoding,
		Encodings:       make(map[string]string),
		Language:        DefaultLanguage,
		Runner: RunnerSettings{
			Mode:          DefaultRunnerMode,
			StrictHostKey: DefaultStrictHostKeys,
			MaxSessions:   DefaultMaxSessions,
		},
	}
}

// EncodingFor returns the configured output encoding for host.
// Host lookups are case-insensitive since viper lowercases map keys.
func (s *Settings) EncodingFor(host string) string {
	if enc, ok := s.Encodings[strings.ToLower(host)]; ok && enc != "" {
		return enc
	}
	if s.DefaultEncoding == "" {
		return DefaultEncoding
	}
	return s.DefaultEncoding
}
