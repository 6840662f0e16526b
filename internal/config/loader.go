package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigDir is the settings directory, relative to the user's home.
	ConfigDir = ".config/rdpmon"
	// ConfigFileName is the settings file name inside ConfigDir.
	ConfigFileName = "config.yaml"
	// EnvPrefix is the prefix for environment overrides (RDPMON_INTERVAL, ...).
	EnvPrefix = "RDPMON"

	// keyDelimiter replaces viper's "." so IP addresses can be map keys
	// under encodings without being split into nested maps.
	keyDelimiter = "::"
)

// DefaultPath returns ~/.config/rdpmon/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), ConfigDir, ConfigFileName)
}

// DefaultRegistryPath returns ~/.config/rdpmon/server_config.json.
func DefaultRegistryPath() string {
	return filepath.Join(homeDir(), ConfigDir, DefaultRegistryFile)
}

// Load reads settings from path. An empty path means the default location,
// where a missing file is not an error and yields defaults. An explicit path
// must exist.
func Load(path string) (*Settings, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Settings file not found: "+path,
					"Run 'rdpmon settings init' to create one, or drop the --config flag")
			}
		} else {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read settings file",
				"Check "+path+" is valid YAML")
		}
	}

	return parseSettings(v, path)
}

// parseSettings converts viper state into Settings with defaults merged in.
func parseSettings(v *viper.Viper, path string) (*Settings, error) {
	s := DefaultSettings()

	if err := v.Unmarshal(s); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid settings format",
			"Check the YAML syntax in "+path)
	}

	if s.Encodings == nil {
		s.Encodings = make(map[string]string)
	}
	s.Registry = expandPath(s.Registry)
	s.LogFile = expandPath(s.LogFile)

	return s, nil
}

// setDefaults registers every key so env overrides work even without a file.
func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("interval", d.Interval)
	v.SetDefault("probe_timeout", d.ProbeTimeout)
	v.SetDefault("registry", d.Registry)
	v.SetDefault("session_prefix", d.SessionPrefix)
	v.SetDefault("default_encoding", d.DefaultEncoding)
	v.SetDefault("encodings", map[string]string{})
	v.SetDefault("language", d.Language)
	v.SetDefault("log_file", "")
	v.SetDefault("runner"+keyDelimiter+"mode", d.Runner.Mode)
	v.SetDefault("runner"+keyDelimiter+"ssh_host", "")
	v.SetDefault("runner"+keyDelimiter+"strict_host_key", d.Runner.StrictHostKey)
	v.SetDefault("runner"+keyDelimiter+"max_sessions", d.Runner.MaxSessions)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
