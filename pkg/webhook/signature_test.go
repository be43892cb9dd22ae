// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"task_id":"task-1"}`)

	sig := Sign("secret", body)
	assert.True(t, VerifySignature("secret", body, sig))

	assert.False(t, VerifySignature("secret", body, Sign("other", body)))
	assert.False(t, VerifySignature("secret", []byte(`{"task_id":"task-2"}`), sig))
	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("secret", body, "not-hex-not-right"))
}

func TestSignIsRawBodyExact(t *testing.T) {
	// A single byte of difference in the raw body must change the signature.
	a := Sign("secret", []byte(`{"x":1}`))
	b := Sign("secret", []byte(`{"x":1} `))
	assert.NotEqual(t, a, b)
}
