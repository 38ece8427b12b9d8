package scoring

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects T into a JSON schema accepted by the provider's
// strict structured-output mode: no references, every property required,
// additionalProperties false at every level.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		panic(err)
	}
	ensureStrictSchema(schema)
	return schema
}

func ensureStrictSchema(schema map[string]any) {
	if kind, ok := schema["type"].(string); ok && kind == "object" {
		schema["additionalProperties"] = false
		if properties, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(properties))
			for name := range properties {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}

	if properties, ok := schema["properties"].(map[string]any); ok {
		for _, property := range properties {
			if m, ok := property.(map[string]any); ok {
				ensureStrictSchema(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrictSchema(items)
	}
}
