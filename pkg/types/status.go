// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

// TaskStatus is a position in the fixed, ordered task lifecycle.
type TaskStatus string

const (
	StatusPlanning   TaskStatus = "planning"
	StatusInbox      TaskStatus = "inbox"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusTesting    TaskStatus = "testing"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

// statusOrder is the complete lifecycle in dispatch order. Transitions
// are only ever applied forward along this slice.
var statusOrder = []TaskStatus{
	StatusPlanning,
	StatusInbox,
	StatusAssigned,
	StatusInProgress,
	StatusTesting,
	StatusReview,
	StatusDone,
}

// statusIndex maps each status to its position in statusOrder.
// Unknown statuses map to -1 via the Index helper.
var statusIndex = func() map[TaskStatus]int {
	m := make(map[TaskStatus]int, len(statusOrder))
	for i, s := range statusOrder {
		m[s] = i
	}
	return m
}()

// Valid reports whether s is one of the known lifecycle statuses.
func (s TaskStatus) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

// Index returns the position of s in the lifecycle ordering, or -1 for
// unknown statuses.
func (s TaskStatus) Index() int {
	i, ok := statusIndex[s]
	if !ok {
		return -1
	}
	return i
}

// CanAdvanceTo reports whether moving from s to target is a strictly
// forward transition. Unknown statuses never advance.
func (s TaskStatus) CanAdvanceTo(target TaskStatus) bool {
	from, to := s.Index(), target.Index()
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// AdvanceStatus applies requested to current only when it moves the
// lifecycle strictly forward. It returns the resulting status and
// whether the request was applied. Non-forward requests are a silent
// no-op, not an error: a stale "testing" signal arriving after "done"
// must be harmless, and callers that care can inspect the applied flag.
func AdvanceStatus(current, requested TaskStatus) (TaskStatus, bool) {
	if !current.CanAdvanceTo(requested) {
		return current, false
	}
	return requested, true
}

// AllStatuses returns the lifecycle ordering, earliest first.
func AllStatuses() []TaskStatus {
	out := make([]TaskStatus, len(statusOrder))
	copy(out, statusOrder)
	return out
}
