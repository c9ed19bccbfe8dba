// Package parser reads fleet declaration YAML documents.
package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// APIVersion is the declaration schema version this parser accepts.
const APIVersion = "fleet/v1"

// Kind is the expected document kind.
const Kind = "Fleet"

// Parser parses fleet declaration files.
type Parser struct {
	// Variables for substitution, checked before the environment.
	Variables map[string]string
}

// New creates a parser with optional substitution variables.
func New(variables map[string]string) *Parser {
	if variables == nil {
		variables = make(map[string]string)
	}
	return &Parser{Variables: variables}
}

// ParseFile parses a declaration from a YAML file.
func (p *Parser) ParseFile(path string) (*fleet.Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet declaration: %w", err)
	}
	return p.Parse(data)
}

// Parse parses a declaration from YAML bytes, substituting ${VAR} and
// $VAR references from the parser variables and the environment.
func (p *Parser) Parse(data []byte) (*fleet.Declaration, error) {
	substituted := p.substituteVariables(string(data))

	var decl fleet.Declaration
	if err := yaml.Unmarshal([]byte(substituted), &decl); err != nil {
		return nil, fmt.Errorf("failed to parse fleet YAML: %w", err)
	}

	if err := p.validateRequiredFields(&decl); err != nil {
		return nil, err
	}
	return &decl, nil
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func (p *Parser) substituteVariables(content string) string {
	return varPattern.ReplaceAllStringFunc(content, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if val, ok := p.Variables[name]; ok {
			return val
		}
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}

// SetVariable sets a substitution variable.
func (p *Parser) SetVariable(key, value string) {
	p.Variables[key] = value
}

func (p *Parser) validateRequiredFields(decl *fleet.Declaration) error {
	if decl.APIVersion == "" {
		return fmt.Errorf("apiVersion is required")
	}
	if decl.APIVersion != APIVersion {
		return fmt.Errorf("unsupported apiVersion %q (expected %q)", decl.APIVersion, APIVersion)
	}
	if decl.Kind != Kind {
		return fmt.Errorf("unsupported kind %q (expected %q)", decl.Kind, Kind)
	}
	if decl.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if len(decl.Spec.Instances) == 0 {
		return fmt.Errorf("spec.instances is required and must have at least one instance")
	}
	return nil
}
