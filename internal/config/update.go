package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/rdpmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// SetJumpHost switches the settings file at path to the ssh runner with
// the given jump host. Comments and unrelated keys are preserved.
func SetJumpHost(path, host string) error {
	if path == "" {
		path = DefaultPath()
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return errors.New(errors.ErrConfig, "Jump host can't be empty", "")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrConfig,
				"Settings file not found: "+path,
				"Create one first with: rdpmon settings init")
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't read settings file", "")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't parse settings file",
			"Fix the YAML syntax in "+path)
	}

	var doc *yaml.Node
	switch {
	case root.Kind == yaml.DocumentNode && len(root.Content) > 0:
		doc = root.Content[0]
	case root.Kind == 0:
		// Empty file.
		doc = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}
	}
	if doc == nil || doc.Kind != yaml.MappingNode {
		return errors.New(errors.ErrConfig,
			"Settings file is not a YAML mapping",
			"Regenerate it with: rdpmon settings init --force")
	}

	runner := findMapValue(doc, "runner")
	if runner == nil {
		runner = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc.Content = append(doc.Content, scalarNode("runner"), runner)
	}
	if runner.Kind != yaml.MappingNode {
		return errors.New(errors.ErrConfig,
			"'runner' in settings is not a mapping",
			"Expected something like:\n  runner:\n    mode: ssh\n    ssh_host: jump01")
	}

	setMapScalar(runner, "mode", RunnerSSH)
	setMapScalar(runner, "ssh_host", host)

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write settings file",
			"Check permissions on "+path)
	}
	return nil
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		if k := node.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// setMapScalar sets key to a string value, replacing or appending it.
func setMapScalar(node *yaml.Node, key, value string) {
	if v := findMapValue(node, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Content = nil
		return
	}
	node.Content = append(node.Content, scalarNode(key), scalarNode(value))
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
