package config

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/trackforge/internal/fsutil"
)

// Marshal renders the config as YAML in the layout Decode reads.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveTo replaces the file at path with the config, creating parent
// directories as needed.
func (c *Config) SaveTo(fs afero.Fs, path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, path, data, 0o644)
}
