package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAndLevel(t *testing.T) {
	orig := L
	t.Cleanup(func() {
		L = orig
		SetLevel("info")
	})

	var buf bytes.Buffer
	Setup(&buf, "json")
	SetLevel("warn")

	For("store").Info("hidden")
	For("store").Warn("shown", "id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "store", rec["component"])
	assert.EqualValues(t, 7, rec["id"])
}

func TestSetup_Text(t *testing.T) {
	orig := L
	t.Cleanup(func() { L = orig })

	var buf bytes.Buffer
	Setup(&buf, "TEXT")
	SetLevel("debug")
	t.Cleanup(func() { SetLevel("info") })

	For("http").Debug("request")
	assert.Contains(t, buf.String(), "component=http")
	assert.Contains(t, buf.String(), "msg=request")
}
