package tool

import "github.com/invopop/jsonschema"

// GenerateSchema reflects the JSON schema of T's argument object. Definitions
// are inlined, unknown properties are rejected, and only fields tagged
// `jsonschema:"required"` are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}

	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	return schema
}
