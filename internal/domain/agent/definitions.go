package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefinitionSet is the read-only name-to-definition mapping populated once
// before any spawn. Keys are unique; lookups after construction are
// lock-free since the set is never mutated.
type DefinitionSet struct {
	byName map[string]*Definition
}

// NewDefinitionSet builds a set from the given definitions.
// Duplicate or empty names are an error.
func NewDefinitionSet(defs []Definition) (*DefinitionSet, error) {
	byName := make(map[string]*Definition, len(defs))
	for i := range defs {
		d := &defs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("definition %d: name is required", i)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate definition name %q", d.Name)
		}
		byName[d.Name] = d
	}
	return &DefinitionSet{byName: byName}, nil
}

// LoadDefinitions reads agent definitions from a YAML file. A missing file
// returns an empty set, matching the config loading pattern.
func LoadDefinitions(path string) (*DefinitionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefinitionSet(nil)
		}
		return nil, fmt.Errorf("read definitions file %s: %w", path, err)
	}

	var file struct {
		Agents []Definition `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse definitions file %s: %w", path, err)
	}

	return NewDefinitionSet(file.Agents)
}

// Get returns the definition with the given name.
func (s *DefinitionSet) Get(name string) (*Definition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Names returns all definition names in the set.
func (s *DefinitionSet) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	return names
}

// Len returns the number of definitions in the set.
func (s *DefinitionSet) Len() int { return len(s.byName) }
