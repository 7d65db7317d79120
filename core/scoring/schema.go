package scoring

import (
	"github.com/invopop/jsonschema"
)

// Schemas describes the wire format of a scoring request and its result.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"request": reflector.Reflect(&wireRequest{}),
		"result":  reflector.Reflect(&StageResult{}),
	}
}
