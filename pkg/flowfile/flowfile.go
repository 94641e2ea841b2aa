// Package flowfile reads flow descriptions from disk. Both the Node-RED JSON
// export (a bare array or the {"flows": [...]} envelope) and a YAML document of
// the same shape are accepted and checked against an embedded JSON schema.
package flowfile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/microred/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a flow file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported flow file format")
	ErrInvalidFlowFile   = errors.New("invalid flow file")
)

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and validates the flow file at path.
func Load(path string) ([]models.Item, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file %s: %w", path, err)
	}

	items, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return items, nil
}

// Parse decodes data, validates it and converts it into items in file order.
func Parse(data []byte, format Format) ([]models.Item, error) {
	var doc any

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlowFile, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlowFile, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	doc = unwrap(doc)

	if err := Validate(doc); err != nil {
		return nil, err
	}

	entries, _ := doc.([]any)
	raw := make([]map[string]any, 0, len(entries))

	for _, entry := range entries {
		m, _ := entry.(map[string]any)
		raw = append(raw, m)
	}

	items, err := models.ItemsFromMaps(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlowFile, err)
	}

	return items, nil
}

// Validate checks a decoded document against the flow schema.
func Validate(doc any) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFlowFile, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidFlowFile, strings.Join(problems, "; "))
	}

	return nil
}

// unwrap strips the {"rev": ..., "flows": [...]} envelope of the admin API export.
func unwrap(doc any) any {
	if m, ok := doc.(map[string]any); ok {
		if flows, ok := m["flows"]; ok {
			return flows
		}
	}

	return doc
}
