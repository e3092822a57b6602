package inventory

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Field is a single input of a script form.
type Field struct {
	Name     string   `yaml:"name" json:"name"`
	Label    string   `yaml:"label" json:"label,omitempty"`
	Type     string   `yaml:"type" json:"type,omitempty"`
	Default  any      `yaml:"default" json:"default,omitempty"`
	Options  []any    `yaml:"options" json:"options,omitempty"`
	Multiple bool     `yaml:"multiple" json:"multiple,omitempty"`
	Min      *float64 `yaml:"min" json:"min,omitempty"`
	Max      *float64 `yaml:"max" json:"max,omitempty"`
	Content  string   `yaml:"content" json:"content,omitempty"`
}

// Form describes the inputs a script expects, as declared in form.yaml.
type Form struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

func LoadForm(path string) (Form, error) {
	var form Form

	data, err := os.ReadFile(path)
	if err != nil {
		return form, err
	}

	if err := yaml.Unmarshal(data, &form); err != nil {
		return form, fmt.Errorf("%w: %s: %w", ErrMalformedConfig, path, err)
	}

	return form, nil
}

// Defaults returns the value every field starts out with. Date fields
// without a valid default use the date of now.
func (f Form) Defaults(now time.Time) map[string]any {
	values := make(map[string]any, len(f.Fields))

	for _, field := range f.Fields {
		if field.Name == "" {
			continue
		}

		if value, ok := field.defaultValue(now); ok {
			values[field.Name] = value
		}
	}

	return values
}

func (f Field) defaultValue(now time.Time) (any, bool) {
	switch f.Type {
	case "", "text", "multiline", "file", "dir":
		return stringify(f.Default), true
	case "int":
		return clamp(float64(toInt(f.Default)), f.Min, f.Max, true), true
	case "float":
		return clamp(toFloat(f.Default), f.Min, f.Max, false), true
	case "bool":
		return truthy(f.Default), true
	case "select":
		if f.Multiple {
			return f.selectedOptions(), true
		}
		return f.selectedOption(), true
	case "date":
		if s, ok := f.Default.(string); ok {
			if _, err := time.Parse(time.DateOnly, s); err == nil {
				return s, true
			}
		}
		return now.Format(time.DateOnly), true
	}

	// doc fields and unknown types carry no value
	return nil, false
}

func (f Field) selectedOptions() []string {
	selected := []string{}

	for _, opt := range f.Options {
		switch def := f.Default.(type) {
		case []any:
			for _, d := range def {
				if stringify(d) == stringify(opt) {
					selected = append(selected, stringify(opt))
					break
				}
			}
		case string:
			if def == stringify(opt) {
				selected = append(selected, def)
			}
		}
	}

	return selected
}

func (f Field) selectedOption() string {
	if len(f.Options) == 0 {
		return ""
	}

	if f.Default != nil {
		def := stringify(f.Default)
		for _, opt := range f.Options {
			if stringify(opt) == def {
				return def
			}
		}
	}

	return stringify(f.Options[0])
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}

	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}

	return 0
}

func clamp(v float64, lo, hi *float64, integer bool) any {
	if lo != nil && v < *lo {
		v = *lo
	}

	if hi != nil && v > *hi {
		v = *hi
	}

	if integer {
		return int(v)
	}

	return v
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != ""
	case []any:
		return len(b) > 0
	}

	return false
}
