// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dispatch

import (
	"fmt"
	"path"
	"strings"

	"github.com/teradata-labs/tether/pkg/session"
	"github.com/teradata-labs/tether/pkg/types"
)

// priorityMarkers are the four fixed markers a dispatch message opens
// with. Agents key off these strings; do not reword them.
var priorityMarkers = map[types.TaskPriority]string{
	types.PriorityLow:    "[LOW]",
	types.PriorityNormal: "[NORMAL]",
	types.PriorityHigh:   "[HIGH]",
	types.PriorityUrgent: "[URGENT]",
}

// PriorityMarker returns the marker for a priority, defaulting to the
// normal marker for unknown values.
func PriorityMarker(p types.TaskPriority) string {
	if m, ok := priorityMarkers[p]; ok {
		return m
	}
	return priorityMarkers[types.PriorityNormal]
}

// OutputDir derives the filesystem-safe output directory for a task.
func OutputDir(baseDir, taskTitle string) string {
	return path.Join(baseDir, session.Slugify(taskTitle))
}

// RenderMessage produces the dispatch message for a task. The output is
// deterministic in the task fields and config so retried sends carry
// identical content.
func RenderMessage(task *types.Task, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s New task assignment\n\n", PriorityMarker(task.Priority))
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if task.DueDate != nil {
		fmt.Fprintf(&b, "\nDue: %s\n", task.DueDate.UTC().Format("2006-01-02"))
	}

	fmt.Fprintf(&b, "\nWrite all output files under: %s\n", OutputDir(cfg.OutputBaseDir, task.Title))

	b.WriteString("\nWhen the task is finished, report completion with an HTTP POST:\n")
	fmt.Fprintf(&b, "  URL: %s\n", cfg.WebhookURL)
	b.WriteString("  Headers:\n")
	b.WriteString("    Content-Type: application/json\n")
	b.WriteString("    X-Tether-Signature: <hex HMAC-SHA-256 of the request body>\n")
	if cfg.WebhookAuthToken != "" {
		fmt.Fprintf(&b, "    Authorization: Bearer %s\n", cfg.WebhookAuthToken)
	}
	fmt.Fprintf(&b, "  Body: {\"task_id\": %q, \"status\": \"done\", \"summary\": \"<what you did>\", \"deliverables\": []}\n", task.ID)

	return b.String()
}
