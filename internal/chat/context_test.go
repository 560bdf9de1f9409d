package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

func TestBuildContextNoFiles(t *testing.T) {
	messages := []*store.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}

	ctx := BuildContext(messages, nil)

	require.Len(t, ctx, 2)
	assert.Equal(t, provider.Message{Role: "user", Content: "hello"}, ctx[0])
	assert.Equal(t, provider.Message{Role: "assistant", Content: "hi"}, ctx[1])
}

func TestBuildContextIncludesAllFiles(t *testing.T) {
	messages := []*store.Message{{Role: "user", Content: "Q2"}}
	files := []*store.File{
		{Filename: "a.txt", ExtractedText: "The answer is 42"},
		{Filename: "b.txt", ExtractedText: "Content B"},
	}

	ctx := BuildContext(messages, files)

	require.Len(t, ctx, 2)
	system := ctx[0]
	assert.Equal(t, provider.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "[File: a.txt]\nThe answer is 42\n[End of file]")
	assert.Contains(t, system.Content, "[File: b.txt]\nContent B\n[End of file]")
	assert.Equal(t, "Q2", ctx[1].Content)
}

func TestBuildContextEmptyExtractedText(t *testing.T) {
	files := []*store.File{{Filename: "empty.pdf", ExtractedText: ""}}

	ctx := BuildContext(nil, files)

	require.Len(t, ctx, 1)
	assert.Contains(t, ctx[0].Content, "[File: empty.pdf]\n\n[End of file]")
}
