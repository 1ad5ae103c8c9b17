// Package nodes defines the JSON schemas for node payloads and validates
// payloads against the schema for their node type.
package nodes

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/macadamia-hq/macadamia/pkg/models"
)

// schemas maps each node type to the JSON schema its payload must satisfy.
// Payloads stay free-form beyond these fields; the execution job serializes
// the whole payload into the model prompt.
var schemas = map[models.NodeType]map[string]any{
	models.NodeTypeSimulation: {
		"type": "object",
		"properties": map[string]any{
			"simulationType": map[string]any{"type": "string"},
			"parameters":     map[string]any{"type": "object"},
		},
	},
	models.NodeTypeGeometry: {
		"type": "object",
		"properties": map[string]any{
			"shape":      map[string]any{"type": "string"},
			"dimensions": map[string]any{"type": "object"},
		},
	},
	models.NodeTypeSpecs: {
		"type": "object",
		"properties": map[string]any{
			"requirements": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"constraints":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
	models.NodeTypeMaterial: {
		"type": "object",
		"properties": map[string]any{
			"material": map[string]any{"type": "string"},
			"properties": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"density":    map[string]any{"type": "number"},
					"elasticity": map[string]any{"type": "number"},
				},
			},
		},
	},
	models.NodeTypeResource: {
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
	},
	models.NodeTypeStandard: {
		"type": "object",
		"properties": map[string]any{
			"code":    map[string]any{"type": "string"},
			"clauses": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
	models.NodeTypeIntegration: {
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
	},
}

// SchemaFor returns the payload schema for a node type, or nil when the type
// is unknown.
func SchemaFor(nodeType models.NodeType) map[string]any {
	return schemas[nodeType]
}

// ValidatePayload checks a node payload against the schema for its type.
// A nil payload is valid; all fields are optional but typed.
func ValidatePayload(nodeType models.NodeType, payload map[string]any) error {
	schema, ok := schemas[nodeType]
	if !ok {
		return fmt.Errorf("unknown node type '%s'", nodeType)
	}

	if payload == nil {
		payload = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate payload: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			details = append(details, issue.String())
		}

		return fmt.Errorf("payload schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
