package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	p, err := Lookup("confused_elderly")
	require.NoError(t, err)
	assert.Equal(t, "Ethel Mae", p.Name)
	assert.Equal(t, 78, p.Age)

	_, err = Lookup("nobody")
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestAll_IsACopy(t *testing.T) {
	list := All()
	require.Len(t, list, 8)
	list[0].Name = "mutated"
	assert.Equal(t, "Ethel Mae", Default().Name)
}

func TestCatalog_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range All() {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
}

func TestSystemPrompt_WithoutContext(t *testing.T) {
	out := SystemPrompt(Default(), "   ")
	assert.True(t, strings.HasPrefix(out, "You are Ethel Mae, age 78."))
	assert.NotContains(t, out, contextHeader)
	assert.Contains(t, out, "TEXT MESSAGE TACTICS:")
	assert.True(t, strings.HasSuffix(out, "Respond as Ethel Mae would text."))
}

func TestSystemPrompt_ContextIncludedOnce(t *testing.T) {
	ctx := "My grandson is named Tommy and lives in Ohio."
	out := SystemPrompt(Default(), "\n"+ctx+"\n")

	assert.Equal(t, 1, strings.Count(out, ctx))
	assert.Equal(t, 1, strings.Count(out, contextHeader))
	assert.Contains(t, out, contextHeader+"\n"+ctx+"\n")

	styleAt := strings.Index(out, "WRITING STYLE:")
	ctxAt := strings.Index(out, ctx)
	tacticsAt := strings.Index(out, "TEXT MESSAGE TACTICS:")
	assert.Less(t, styleAt, ctxAt)
	assert.Less(t, ctxAt, tacticsAt)
}
