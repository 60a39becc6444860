package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/appimage-installer/internal/atomicfile"
)

// ErrExists is returned by WriteFile when the target exists and force is off.
var ErrExists = errors.New("config file already exists")

// Render returns c as a YAML document with every key described by a
// comment.
func Render(c Config) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range c.settings() {
		value := s.value
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.key, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: s.key, HeadComment: s.comment},
			&v,
		)
	}
	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "appimage-installer configuration.\nEvery key may also be set as APPIMAGE_INSTALLER_<KEY>.",
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes c to path as a commented YAML file. An existing file is
// only replaced when force is set.
func WriteFile(ctx context.Context, path string, c Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := Render(c)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(ctx, path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
