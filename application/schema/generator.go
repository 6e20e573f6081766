// Package schema exports JSON Schemas describing the plugin manifest format.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
)

// ManifestSchemaID identifies the published manifest schema.
const ManifestSchemaID = "https://dentdelion.dev/schemas/plugin-manifest.json"

// GenerateSchema reflects a JSON Schema (draft 2020-12) from a Go value.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "json",
	}
	s := reflector.Reflect(v)

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}

// ManifestSchema describes a manifest with its preferred [wasm] table.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := reflector.Reflect(&entities.Manifest{})
	s.ID = jsonschema.ID(ManifestSchemaID)
	s.Title = "dentdelion plugin manifest"
	s.Description = "Resource limits and capabilities of a WASM plugin. Tables are looked up as [wasm], then [plugin], then the document root."

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest schema: %w", err)
	}
	return out, nil
}
