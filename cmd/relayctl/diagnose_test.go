package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptConfirmer_ReadsOneLinePerQuestion(t *testing.T) {
	t.Parallel()

	// All answers arrive up front, the way a piped stdin delivers them.
	// Each question must consume exactly one line.
	var out bytes.Buffer
	confirm := newPromptConfirmer(strings.NewReader("y\nn\nyes\n"), &out)

	assert.True(t, confirm.Confirm("proxy vhost enabled", "link missing"))
	assert.False(t, confirm.Confirm("app unit files installed", "relay-web.service missing"))
	assert.True(t, confirm.Confirm("web service active", "inactive"))
	assert.Contains(t, out.String(), "repair? [y/N]")
}

func TestPromptConfirmer_EOFDeclines(t *testing.T) {
	t.Parallel()

	confirm := newPromptConfirmer(strings.NewReader(""), &bytes.Buffer{})
	assert.False(t, confirm.Confirm("cache reachable", "connection refused"))
}
