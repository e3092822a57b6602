package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
)

// materialize writes config to a new JSON file in dir and returns its path.
// The file is left in place for the child to read.
func materialize(dir string, config map[string]any) (string, error) {
	if config == nil {
		config = map[string]any{}
	}

	f, err := os.CreateTemp(dir, "script-config-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(config); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return f.Name(), nil
}
