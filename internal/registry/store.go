package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"github.com/rileyhilliard/rdpmon/internal/logger"
)

// Store loads and saves the whole registry at once.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// FileStore persists the registry as a JSON file.
type FileStore struct {
	path string
	log  logger.Logger
}

// NewFileStore creates a store for the file at path.
func NewFileStore(path string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.Noop()
	}
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the registry file. A missing file yields the bootstrap
// snapshot; so does a file that isn't valid JSON, with a warning.
// Malformed server entries are skipped.
func (s *FileStore) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("registry %s not found, using bootstrap roster", s.path)
			return DefaultSnapshot(), nil
		}
		return Snapshot{}, errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't read server registry",
			"Check permissions on "+s.path)
	}

	snap, err := s.decode(data)
	if err != nil {
		s.log.Warn("registry %s is corrupt (%v), using bootstrap roster", s.path, err)
		return DefaultSnapshot(), nil
	}
	return snap, nil
}

// Read is Load without the fallbacks: a missing or corrupt file is an
// error. Reloads use it so a half-written file never replaces the roster.
func (s *FileStore) Read() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't read server registry",
			"Check that "+s.path+" exists and is readable")
	}
	snap, err := s.decode(data)
	if err != nil {
		return Snapshot{}, errors.WrapWithCode(err, errors.ErrRegistry,
			"Server registry is not valid JSON",
			"Fix "+s.path+" or restore it from a backup")
	}
	return snap, nil
}

func (s *FileStore) decode(data []byte) (Snapshot, error) {
	snap, skipped, err := decodeSnapshot(data)
	if err != nil {
		return Snapshot{}, err
	}
	for _, reason := range skipped {
		s.log.Warn("registry %s: skipped %s", s.path, reason)
	}
	return snap, nil
}

// Save overwrites the registry file atomically: the snapshot is written to
// a temp file in the same directory and renamed over the target.
func (s *FileStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry, "Couldn't encode server registry", "")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't create registry directory",
			"Check permissions on "+dir)
	}

	tmp, err := os.CreateTemp(dir, ".server_config-*.json")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't save server registry",
			"Check permissions on "+dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrRegistry, "Couldn't save server registry", "Is the disk full?")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrRegistry, "Couldn't save server registry", "")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry, "Couldn't save server registry", "")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't replace server registry",
			"Check permissions on "+s.path)
	}
	return nil
}

// decodeSnapshot parses registry JSON leniently. Only a document that isn't
// a JSON object is an error; bad entries are skipped and described.
func decodeSnapshot(data []byte) (Snapshot, []string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, nil, err
	}
	if doc == nil {
		return Snapshot{}, nil, fmt.Errorf("top level is not an object")
	}

	snap := Snapshot{Servers: []ServerDefinition{}, WatchedUsers: []string{}}
	var skipped []string

	if raw, ok := doc["servers"]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			skipped = append(skipped, "'servers' (not a list)")
		}
		seen := make(map[string]struct{})
		for i, e := range entries {
			def, err := decodeServer(e)
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("server #%d (%v)", i+1, err))
				continue
			}
			if _, dup := seen[def.Name]; dup {
				skipped = append(skipped, fmt.Sprintf("server #%d (duplicate name %q)", i+1, def.Name))
				continue
			}
			seen[def.Name] = struct{}{}
			snap.Servers = append(snap.Servers, def)
		}
	}

	if raw, ok := doc["ti_users"]; ok {
		users, err := decodeStrings(raw)
		if err != nil {
			skipped = append(skipped, "'ti_users' ("+err.Error()+")")
		}
		snap.WatchedUsers = normalizeList(users)
	}

	return snap, skipped, nil
}

func decodeServer(raw json.RawMessage) (ServerDefinition, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ServerDefinition{}, fmt.Errorf("not an object")
	}

	var def ServerDefinition
	if err := decodeString(fields["name"], &def.Name); err != nil || def.Name == "" {
		return ServerDefinition{}, fmt.Errorf("missing or invalid name")
	}
	if raw, ok := fields["ip"]; ok {
		if err := decodeString(raw, &def.IP); err != nil {
			return ServerDefinition{}, fmt.Errorf("invalid ip")
		}
	}

	var err error
	if def.Processes, err = decodeStrings(fields["processes"]); err != nil {
		return ServerDefinition{}, fmt.Errorf("invalid processes: %w", err)
	}
	if def.Services, err = decodeStrings(fields["services"]); err != nil {
		return ServerDefinition{}, fmt.Errorf("invalid services: %w", err)
	}

	def.Name = strings.TrimSpace(def.Name)
	def.IP = strings.TrimSpace(def.IP)
	def.Processes = normalizeList(def.Processes)
	def.Services = normalizeList(def.Services)
	if def.Name == "" {
		return ServerDefinition{}, fmt.Errorf("missing or invalid name")
	}
	return def, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if raw == nil {
		return fmt.Errorf("missing")
	}
	return json.Unmarshal(raw, dst)
}

// decodeStrings accepts a missing or null value as an empty list.
func decodeStrings(raw json.RawMessage) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}, fmt.Errorf("not a list of strings")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
