package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// placeholder matches ${NAME:fallback}. The fallback may be empty.
var placeholder = regexp.MustCompile(`\$\{(\w+):([^}]*)\}`)

// FromYAML decodes data into T after replacing every ${NAME:fallback} in
// string values with the environment variable NAME, or fallback when NAME is
// unset or empty.
func FromYAML[T Config](data string) (T, error) {
	var cfg T

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(data), &doc); err != nil {
		return cfg, fmt.Errorf("failed to load config: invalid yaml: %w", err)
	}
	if doc.Kind == 0 {
		return cfg, nil
	}

	expandScalars(&doc)

	if err := doc.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// FromFile reads the file at path and parses it with FromYAML.
func FromFile[T Config](path string) (T, error) {
	var cfg T

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return FromYAML[T](string(data))
}

// expandScalars walks the tree and expands placeholders in string scalars.
// An expanded scalar loses its !!str tag so "${PORT:8000}" still decodes into an int.
func expandScalars(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		if expanded := expand(node.Value); expanded != node.Value {
			node.Value = expanded
			node.Tag = ""
		}
	}

	for _, child := range node.Content {
		expandScalars(child)
	}
}

func expand(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}
