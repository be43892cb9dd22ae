// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package planning

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// questionSchema constrains a planning reply to exactly one
// multiple-choice question.
const questionSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "options": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 2
    }
  },
  "required": ["question", "options"],
  "additionalProperties": true
}`

var questionSchemaLoader = gojsonschema.NewStringLoader(questionSchema)

// ValidateQuestion checks an extracted reply against the question
// schema and requires an "other" escape option among the choices.
func ValidateQuestion(payload map[string]any) error {
	result, err := gojsonschema.Validate(questionSchemaLoader, gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid question payload: %s", strings.Join(msgs, "; "))
	}

	options, _ := payload["options"].([]any)
	for _, o := range options {
		if s, ok := o.(string); ok && strings.EqualFold(strings.TrimSpace(s), "other") {
			return nil
		}
	}
	return fmt.Errorf("question payload is missing the required \"other\" option")
}
