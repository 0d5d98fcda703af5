package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AddHost adds or replaces a host in the config file. It preserves the
// existing YAML structure and comments.
func AddHost(configPath, name string, host Host) error {
	if err := validateHost(name, host); err != nil {
		return err
	}

	// Read the existing file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse as yaml.Node to preserve structure
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid YAML document structure")
	}

	docNode := root.Content[0]
	if docNode.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping at document root")
	}

	// Find or create hosts
	hostsNode := findMapValue(docNode, "hosts")
	if hostsNode == nil || hostsNode.Kind != yaml.MappingNode {
		if hostsNode == nil {
			hostsNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			docNode.Content = append(docNode.Content, scalar("hosts"), hostsNode)
		} else {
			// "hosts:" with no value decodes as a null scalar.
			*hostsNode = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
	}

	var hostNode yaml.Node
	if err := hostNode.Encode(host); err != nil {
		return fmt.Errorf("failed to encode host: %w", err)
	}

	if existing := findMapValue(hostsNode, name); existing != nil {
		*existing = hostNode
	} else {
		hostsNode.Content = append(hostsNode.Content, scalar(name), &hostNode)
	}

	// Write back to file
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(configPath, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
