package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"
)

// SavedConfigPath is where the saved configuration of a script lives.
// Scripts sharing a directory name share their saved configuration.
func (i *Inventory) SavedConfigPath(id string) string {
	return filepath.Join(i.configsDir, baseName(id)+".json")
}

// Form returns the parsed form of a script, or an empty form if the
// script declares none.
func (i *Inventory) Form(id string) (Form, error) {
	entry, err := i.Resolve(id)
	if err != nil {
		return Form{}, err
	}

	if entry.Form == "" {
		return Form{}, nil
	}

	return LoadForm(entry.Form)
}

// LoadConfig builds the configuration a script is run with: the form
// defaults, overridden by the saved configuration. A saved configuration
// that is not valid JSON fails with ErrMalformedConfig.
func (i *Inventory) LoadConfig(id string) (map[string]any, error) {
	form, err := i.Form(id)
	if err != nil {
		return nil, err
	}

	config := form.Defaults(time.Now())

	saved, err := i.loadSaved(i.SavedConfigPath(id))
	if err != nil {
		return nil, err
	}

	maps.Copy(config, saved)

	return config, nil
}

// SaveConfig persists config as the saved configuration of a script.
func (i *Inventory) SaveConfig(id string, config map[string]any) error {
	if _, err := i.Resolve(id); err != nil {
		return err
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}

	if err := os.MkdirAll(i.configsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create configs dir: %w", err)
	}

	return os.WriteFile(i.SavedConfigPath(id), buf.Bytes(), 0o644)
}

func (i *Inventory) loadSaved(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if isNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read saved config: %w", err)
	}

	var config map[string]any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedConfig, path, err)
	}

	return config, nil
}
