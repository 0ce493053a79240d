package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnified_IdenticalContent(t *testing.T) {
	t.Parallel()

	out := Unified([]byte("same\n"), []byte("same\n"), "a", "b")
	assert.Empty(t, out)
}

func TestUnified_ShowsChange(t *testing.T) {
	t.Parallel()

	before := []byte("listen 80;\nserver_name old.example.com;\n")
	after := []byte("listen 80;\nserver_name new.example.com;\n")

	out := Unified(before, after, "live", "proposed")
	assert.Contains(t, out, "--- live")
	assert.Contains(t, out, "+++ proposed")
	assert.Contains(t, out, "-")
	assert.Contains(t, out, "+")
	assert.Contains(t, out, "new.example.com")
}

func TestUnified_Truncates(t *testing.T) {
	t.Parallel()

	before := []byte("")
	after := []byte(strings.Repeat("added line\n", maxLines+10))

	out := Unified(before, after, "a", "b")
	assert.Contains(t, out, "diff truncated")
}
