package memory

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// ParseSeed decodes YAML (or JSON, which is valid YAML) into a tree value.
func ParseSeed(data []byte) (any, error) {
	return parseSeed(data, "yaml", "")
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (any, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.WrapResource("read", "seed", path, err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "yaml"
	}
	return parseSeed(data, format, path)
}

func parseSeed(data []byte, format, file string) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.WrapParse(format, file, err)
	}
	return database.Canonical(v)
}

// WithSeedFile seeds the store from a YAML or JSON file.
func WithSeedFile(path string) Option {
	return func(o *options) error {
		v, err := LoadSeed(path)
		if err != nil {
			return err
		}
		o.seed = v
		return nil
	}
}
