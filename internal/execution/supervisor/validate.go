package supervisor

import (
	"fmt"
	"os"
	"strings"

	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/xeipuuv/gojsonschema"
)

// validateConfig checks config against the schema.json of the script,
// if it has one.
func validateConfig(entry inventory.Entry, config map[string]any) error {
	if entry.Schema == "" {
		return nil
	}

	data, err := os.ReadFile(entry.Schema)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: invalid schema: %w", ErrInvalidConfig, err)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
