// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_WholeText(t *testing.T) {
	obj := Extract(`  {"question": "Q?", "options": ["a", "other"]}  `)
	require.NotNil(t, obj)
	assert.Equal(t, "Q?", obj["question"])
}

func TestExtract_FencedBlock(t *testing.T) {
	obj := Extract("Here is my question:\n```json\n{\"a\": 1}\n```\nLet me know.")
	require.NotNil(t, obj)
	assert.Equal(t, float64(1), obj["a"])

	// Untagged fence works too.
	obj = Extract("```\n{\"b\": 2}\n```")
	require.NotNil(t, obj)
	assert.Equal(t, float64(2), obj["b"])
}

func TestExtract_BraceSpan(t *testing.T) {
	obj := Extract(`some prose {"question":"Q?","options":[]} trailing`)
	require.NotNil(t, obj)
	assert.Equal(t, "Q?", obj["question"])
}

func TestExtract_None(t *testing.T) {
	assert.Nil(t, Extract("not json at all"))
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("unbalanced { brace"))
	// A JSON array is not an object.
	assert.Nil(t, Extract(`[1, 2, 3]`))
}

func TestExtract_StrategyOrder(t *testing.T) {
	// When the whole text parses, inner fences are never consulted.
	obj := Extract("{\"outer\": \"```{\\\"inner\\\": true}```\"}")
	require.NotNil(t, obj)
	assert.Contains(t, obj, "outer")
}

func TestValidateQuestion(t *testing.T) {
	valid := map[string]any{
		"question": "Which database?",
		"options":  []any{"sqlite", "postgres", "other"},
	}
	assert.NoError(t, ValidateQuestion(valid))

	// "Other" matching is case-insensitive.
	valid["options"] = []any{"sqlite", "Other"}
	assert.NoError(t, ValidateQuestion(valid))

	missing := map[string]any{"question": "Q?"}
	assert.Error(t, ValidateQuestion(missing))

	noOther := map[string]any{
		"question": "Q?",
		"options":  []any{"a", "b"},
	}
	assert.Error(t, ValidateQuestion(noOther))

	tooFew := map[string]any{
		"question": "Q?",
		"options":  []any{"other"},
	}
	assert.Error(t, ValidateQuestion(tooFew))

	empty := map[string]any{
		"question": "",
		"options":  []any{"a", "other"},
	}
	assert.Error(t, ValidateQuestion(empty))
}
