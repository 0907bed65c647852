package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SetLatestKnown rewrites artifact.latest_known in the config file at path.
// YAML files are edited through the node tree so comments and ordering
// survive; TOML files are re-encoded.
func SetLatestKnown(path, version string) error {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var out []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		out, err = setTOML(data, version)
	default:
		out, err = setYAML(data, version)
	}
	if err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}

	return os.WriteFile(path, out, 0o644)
}

func setYAML(data []byte, version string) ([]byte, error) {
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level is not a mapping")
	}

	artifact := mappingChild(doc.Content[0], "artifact")
	setScalar(artifact, "latest_known", version)

	return yaml.Marshal(&doc)
}

// mappingChild returns the mapping under key, creating it when missing.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key && m.Content[i+1].Kind == yaml.MappingNode {
			return m.Content[i+1]
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		child,
	)
	return child
}

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: yaml.DoubleQuotedStyle}
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: yaml.DoubleQuotedStyle},
	)
}

func setTOML(data []byte, version string) ([]byte, error) {
	doc := map[string]any{}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	artifact, ok := doc["artifact"].(map[string]any)
	if !ok {
		artifact = map[string]any{}
	}
	artifact["latest_known"] = version
	doc["artifact"] = artifact
	return toml.Marshal(doc)
}
