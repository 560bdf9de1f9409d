package chat

import (
	"fmt"
	"strings"

	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

const filePreamble = "The following files have been uploaded by the user. Use their content to answer questions:\n\n"

// BuildContext assembles the model context for a turn: one leading system
// message describing every file attached to the session, then all persisted
// messages in conversation order.
//
// Every attached file is always included, whatever the current request's
// display metadata named. Metadata is a UI hint; it never selects model
// input.
func BuildContext(messages []*store.Message, files []*store.File) []provider.Message {
	out := make([]provider.Message, 0, len(messages)+1)

	if len(files) > 0 {
		blocks := make([]string, len(files))
		for i, f := range files {
			blocks[i] = fmt.Sprintf("[File: %s]\n%s\n[End of file]", f.Filename, f.ExtractedText)
		}
		out = append(out, provider.Message{
			Role:    provider.RoleSystem,
			Content: filePreamble + strings.Join(blocks, "\n\n"),
		})
	}

	for _, m := range messages {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
