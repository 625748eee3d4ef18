package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchemaJSON validates a RawPolicyRecord document before it ever
// reaches Build, so a malformed record fails at the ingest boundary with a
// JSON-pointer-located error rather than silently producing an empty or
// partial rule downstream.
const recordSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["policy_id"],
    "properties": {
      "policy_id": {"type": "string", "minLength": 1},
      "conditions": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["type"],
          "properties": {
            "type": {"type": "string"},
            "parameter": {"type": "string"},
            "target": {"type": "string"},
            "operator": {"type": "string", "enum": ["==", "!=", "<=", ">=", "<", ">"]},
            "source_text": {"type": "string"}
          }
        }
      },
      "actions": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["type"],
          "properties": {
            "type": {"type": "string"},
            "action": {"type": "string"},
            "requires": {"type": "array", "items": {"type": "string"}}
          }
        }
      },
      "metadata": {
        "type": "object",
        "properties": {
          "domain": {"type": "string"},
          "priority": {"type": "string"},
          "owner": {"type": "string"},
          "source": {"type": "string"}
        }
      }
    }
  }
}`

var recordSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policyguard://raw-policy-records.json", strings.NewReader(recordSchemaJSON)); err != nil {
		panic(fmt.Sprintf("ir: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("policyguard://raw-policy-records.json")
	if err != nil {
		panic(fmt.Sprintf("ir: schema compilation failed: %v", err))
	}
	return schema
}

// ValidationFailure reports a single JSON-Schema violation located by
// JSON pointer, matching §7's error-kind contract for the ingest boundary.
type ValidationFailure struct {
	Pointer string
	Message string
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Pointer, f.Message)
}

// ValidateRaw checks raw JSON-array policy-record bytes against the
// ingest schema before they are unmarshaled into []RawPolicyRecord.
func ValidateRaw(raw []byte) error {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("ir: invalid JSON: %w", err)
	}
	if err := recordSchema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			pointer := "/"
			if len(verr.InstanceLocation) > 0 {
				pointer = "/" + strings.Join(verr.InstanceLocation, "/")
			}
			return &ValidationFailure{Pointer: pointer, Message: verr.Error()}
		}
		return fmt.Errorf("ir: schema validation failed: %w", err)
	}
	return nil
}
