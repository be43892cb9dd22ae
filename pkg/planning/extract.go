// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package planning runs the structured question/answer protocol against
// an agent before work begins: a fixed prompt, a bounded transcript
// poll, and fault-tolerant extraction of structured replies.
package planning

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extract recovers a JSON object from unstructured agent text. Three
// strategies run in order, first success wins: the whole trimmed text,
// the interior of a fenced code block, then the substring from the
// first '{' to the last '}'. Returns nil when nothing parses; callers
// must treat nil as "no structured answer yet", not as a fault.
func Extract(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if obj := parseObject(trimmed); obj != nil {
		return obj
	}

	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		if obj := parseObject(strings.TrimSpace(m[1])); obj != nil {
			return obj
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj := parseObject(trimmed[start : end+1]); obj != nil {
			return obj
		}
	}

	return nil
}

func parseObject(s string) map[string]any {
	if s == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}
