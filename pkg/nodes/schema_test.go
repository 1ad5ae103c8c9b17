package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/macadamia-hq/macadamia/pkg/models"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name     string
		nodeType models.NodeType
		payload  map[string]any
		wantErr  bool
	}{
		{
			name:     "nil payload valid for simulation",
			nodeType: models.NodeTypeSimulation,
			payload:  nil,
		},
		{
			name:     "simulation with parameters",
			nodeType: models.NodeTypeSimulation,
			payload:  map[string]any{"simulationType": "thermal", "parameters": map[string]any{"mesh": "fine"}},
		},
		{
			name:     "simulationType must be string",
			nodeType: models.NodeTypeSimulation,
			payload:  map[string]any{"simulationType": 42},
			wantErr:  true,
		},
		{
			name:     "geometry with shape and dimensions",
			nodeType: models.NodeTypeGeometry,
			payload:  map[string]any{"shape": "bracket", "dimensions": map[string]any{"width": 40}},
		},
		{
			name:     "geometry dimensions must be object",
			nodeType: models.NodeTypeGeometry,
			payload:  map[string]any{"dimensions": "40x20"},
			wantErr:  true,
		},
		{
			name:     "material with numeric properties",
			nodeType: models.NodeTypeMaterial,
			payload:  map[string]any{"material": "Al 6061", "properties": map[string]any{"density": 2.7, "elasticity": 68.9}},
		},
		{
			name:     "material density must be numeric",
			nodeType: models.NodeTypeMaterial,
			payload:  map[string]any{"properties": map[string]any{"density": "heavy"}},
			wantErr:  true,
		},
		{
			name:     "specs requirements must be string array",
			nodeType: models.NodeTypeSpecs,
			payload:  map[string]any{"requirements": []any{"max temp 85C", 7}},
			wantErr:  true,
		},
		{
			name:     "standard with code and clauses",
			nodeType: models.NodeTypeStandard,
			payload:  map[string]any{"code": "ISO 2768", "clauses": []any{"m", "K"}},
		},
		{
			name:     "unknown node type",
			nodeType: models.NodeType("mystery"),
			payload:  map[string]any{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.nodeType, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchemaFor_KnownTypesHaveSchemas(t *testing.T) {
	for _, nodeType := range models.NodeTypes() {
		assert.NotNil(t, SchemaFor(nodeType), "missing schema for %s", nodeType)
	}

	assert.Nil(t, SchemaFor(models.NodeType("mystery")))
}
