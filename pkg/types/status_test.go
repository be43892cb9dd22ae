// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceStatus_StrictlyForwardOnly(t *testing.T) {
	order := AllStatuses()
	require.Len(t, order, 7)

	for i, current := range order {
		for j, requested := range order {
			result, applied := AdvanceStatus(current, requested)
			if j > i {
				assert.True(t, applied, "%s -> %s should apply", current, requested)
				assert.Equal(t, requested, result)
			} else {
				assert.False(t, applied, "%s -> %s should be a no-op", current, requested)
				assert.Equal(t, current, result)
			}
		}
	}
}

func TestAdvanceStatus_Idempotent(t *testing.T) {
	// Applying the same request twice: the second call is a no-op.
	result, applied := AdvanceStatus(StatusAssigned, StatusDone)
	require.True(t, applied)
	require.Equal(t, StatusDone, result)

	result, applied = AdvanceStatus(result, StatusDone)
	assert.False(t, applied)
	assert.Equal(t, StatusDone, result)
}

func TestAdvanceStatus_StaleSignalCannotRegress(t *testing.T) {
	// A stray "testing" arriving after "done" leaves the task done.
	result, applied := AdvanceStatus(StatusDone, StatusTesting)
	assert.False(t, applied)
	assert.Equal(t, StatusDone, result)

	result, applied = AdvanceStatus(StatusDone, StatusReview)
	assert.False(t, applied)
	assert.Equal(t, StatusDone, result)
}

func TestAdvanceStatus_UnknownStatus(t *testing.T) {
	result, applied := AdvanceStatus(StatusInbox, TaskStatus("archived"))
	assert.False(t, applied)
	assert.Equal(t, StatusInbox, result)

	result, applied = AdvanceStatus(TaskStatus(""), StatusDone)
	assert.False(t, applied)
	assert.Equal(t, TaskStatus(""), result)
}

func TestTaskStatus_Valid(t *testing.T) {
	assert.True(t, StatusPlanning.Valid())
	assert.True(t, StatusDone.Valid())
	assert.False(t, TaskStatus("archived").Valid())
	assert.False(t, TaskStatus("").Valid())
}

func TestNormalizeDeliverableType(t *testing.T) {
	assert.Equal(t, DeliverableFile, NormalizeDeliverableType("file"))
	assert.Equal(t, DeliverableURL, NormalizeDeliverableType("url"))
	assert.Equal(t, DeliverableArtifact, NormalizeDeliverableType("artifact"))
	assert.Equal(t, DeliverableArtifact, NormalizeDeliverableType("zip"))
	assert.Equal(t, DeliverableArtifact, NormalizeDeliverableType(""))
}
