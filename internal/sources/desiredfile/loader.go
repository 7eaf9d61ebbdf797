package desiredfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads the desired listings file
type Loader struct {
	filePath string
}

// NewLoader creates a new loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads
func (l *Loader) Path() string {
	return l.filePath
}

// Load reads and parses the file. Environment references like ${VAR} are expanded first.
func (l *Loader) Load() (*File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse desired yaml: %w", err)
	}

	return &f, nil
}
