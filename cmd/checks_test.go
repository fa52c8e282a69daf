//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksCommand_ListsRegistries(t *testing.T) {
	var buf bytes.Buffer
	checksCmd.SetOut(&buf)
	defer checksCmd.SetOut(nil)

	checksCmd.Run(checksCmd, nil)

	out := buf.String()
	assert.Contains(t, out, "Quality checks:")
	assert.Contains(t, out, "unmapped_rate")
	assert.Contains(t, out, "duplicates")
	assert.Contains(t, out, "Cleaning rules:")
	assert.Contains(t, out, "trim_whitespace")
	assert.Contains(t, out, "normalize_sex")
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "harmonize")
}
