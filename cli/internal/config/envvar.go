package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVarRef is a parsed config value that may reference an environment
// variable.
type EnvVarRef struct {
	VarName      string
	HasDefault   bool
	DefaultValue string

	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value.
//
// Supported formats:
//   - ${VAR}         - required environment variable
//   - ${VAR:default} - optional environment variable with default
//   - anything else  - literal value
//
// Examples:
//
//	ParseEnvVar("${REDIS_ADDR}") -> required env var "REDIS_ADDR"
//	ParseEnvVar("${REDIS_ADDR:localhost:6379}") -> env var with default
//	ParseEnvVar("localhost:6379") -> literal value
func ParseEnvVar(value string) (*EnvVarRef, error) {
	if !strings.HasPrefix(value, "${") {
		return &EnvVarRef{IsLiteral: true, LiteralValue: value}, nil
	}

	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return nil, fmt.Errorf("invalid environment variable reference: %s", value)
	}

	ref := &EnvVarRef{
		VarName:    matches[1],
		HasDefault: matches[2] != "",
	}
	if ref.HasDefault {
		ref.DefaultValue = strings.TrimPrefix(matches[2], ":")
	}
	return ref, nil
}

// Value resolves the reference against the process environment.
func (s *EnvVarRef) Value() (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := os.LookupEnv(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("required environment variable %s is not set", s.VarName)
}

// expandNode replaces environment references in every scalar of a YAML
// tree. Substituted values are re-tagged so that numbers and booleans keep
// decoding into typed fields.
func expandNode(n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := expandNode(c); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			if err := expandNode(n.Content[i]); err != nil {
				return fmt.Errorf("%s: %w", n.Content[i-1].Value, err)
			}
		}
	case yaml.ScalarNode:
		ref, err := ParseEnvVar(n.Value)
		if err != nil {
			return err
		}
		if ref.IsLiteral {
			return nil
		}
		v, err := ref.Value()
		if err != nil {
			return err
		}
		n.Value = v
		n.Tag = ""
		n.Style = 0
	}
	return nil
}
