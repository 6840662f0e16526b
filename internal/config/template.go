package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// settingsComments documents each top-level key in the generated template.
var settingsComments = map[string]string{
	"interval":         "How often every server is refreshed.",
	"probe_timeout":    "Upper bound for each qwinsta/tasklist/sc call.",
	"registry":         "JSON file holding monitored servers and the IT watch list.",
	"session_prefix":   "Session names starting with this are counted as remote-desktop sessions.",
	"default_encoding": "Encoding of qwinsta output (utf-8, utf-16le, utf-16be, cp437, cp850, windows-1252).",
	"encodings":        "Per-host overrides, e.g. legacy 2012 R2 hosts that answer in utf-16le.",
	"language":         "Dashboard language: en or pt.",
	"log_file":         "Where logs go while the dashboard is running (empty discards them).",
	"runner":           "mode: local runs the commands here; ssh runs them on a Windows jump host.\nmax_sessions must not exceed MaxSessions in the jump host's sshd_config.",
}

// RenderDefault returns the default settings as commented YAML.
func RenderDefault() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(templateValues(DefaultSettings())); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	// Encode produces a mapping node directly; annotate its keys.
	if doc.Kind == yaml.MappingNode {
		for i := 0; i < len(doc.Content)-1; i += 2 {
			key := doc.Content[i]
			if c, ok := settingsComments[key.Value]; ok {
				key.HeadComment = c
			}
		}
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	encoder.Close()

	return []byte(buf.String()), nil
}

// WriteDefault writes the default settings template to path.
// An existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.ErrConfig,
			"Settings file already exists: "+path,
			"Use --force to overwrite it.")
	}

	data, err := RenderDefault()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't render default settings", "")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create settings directory",
			"Check permissions on "+filepath.Dir(path))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write settings file",
			"Check permissions on "+path)
	}

	return nil
}

// templateSettings mirrors Settings with durations rendered as seconds,
// so the template reads "60s" instead of nanoseconds.
type templateSettings struct {
	Interval        string            `yaml:"interval"`
	ProbeTimeout    string            `yaml:"probe_timeout"`
	Registry        string            `yaml:"registry"`
	SessionPrefix   string            `yaml:"session_prefix"`
	DefaultEncoding string            `yaml:"default_encoding"`
	Encodings       map[string]string `yaml:"encodings"`
	Language        string            `yaml:"language"`
	LogFile         string            `yaml:"log_file"`
	Runner          RunnerSettings    `yaml:"runner"`
}

func templateValues(s *Settings) templateSettings {
	return templateSettings{
		Interval:        fmt.Sprintf("%ds", int(s.Interval.Seconds())),
		ProbeTimeout:    fmt.Sprintf("%ds", int(s.ProbeTimeout.Seconds())),
		Registry:        s.Registry,
		SessionPrefix:   s.SessionPrefix,
		DefaultEncoding: s.DefaultEncoding,
		Encodings:       s.Encodings,
		Language:        s.Language,
		LogFile:         s.LogFile,
		Runner:          s.Runner,
	}
}
