package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON schema every loaded configuration must satisfy
// before any session work begins.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["api_key", "chat_history", "model", "temperature", "system_message"],
  "properties": {
    "api_key": {
      "type": "string",
      "minLength": 1
    },
    "api_base": {
      "type": "string",
      "minLength": 1
    },
    "chat_history": {
      "type": "string",
      "minLength": 1
    },
    "model": {
      "type": "string",
      "minLength": 1
    },
    "temperature": {
      "type": "number",
      "minimum": 0,
      "maximum": 2
    },
    "system_message": {
      "type": "string"
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {
          "type": "string",
          "enum": ["trace", "debug", "info", "warn", "error"]
        },
        "file": {
          "type": "string"
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// Validate checks a config against the schema. All violations are reported
// in one error.
func Validate(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(violations, "; "))
	}

	return nil
}
