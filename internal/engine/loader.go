package engine

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/opflow/pkg/schema"
)

// ParseDefinition decodes a flow definition from YAML or JSON bytes.
func ParseDefinition(data []byte) (*schema.FlowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow definition is empty")
	}
	var def schema.FlowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode flow definition: %s", err.Error()).WithCause(err)
	}
	return &def, nil
}

// LoadDefinitionReader reads a flow definition from r.
func LoadDefinitionReader(r io.Reader) (*schema.FlowDefinition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read flow definition: %s", err.Error()).WithCause(err)
	}
	return ParseDefinition(content)
}

// LoadDefinitionFile loads a flow definition from path.
func LoadDefinitionFile(path string) (*schema.FlowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read %s: %s", path, err.Error()).WithCause(err)
	}
	def, err := ParseDefinition(content)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: %s", path, err.Error()).WithCause(err)
	}
	return def, nil
}
