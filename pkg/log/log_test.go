// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachedLogOutput(t *testing.T) {
	prependTime = false
	EnableLogCaching(4)

	Logf(0, "line %v", 1)
	Logf(1, "line %v", 2)
	Logf(2, "high verbosity is not cached")
	assert.Equal(t, "line 1\nline 2\n", CachedLogOutput())

	// Overflowing the cache keeps only the newest lines, oldest first.
	for i := 3; i <= 7; i++ {
		Logf(0, "line %v", i)
	}
	assert.Equal(t, "line 4\nline 5\nline 6\nline 7\n", CachedLogOutput())
}
