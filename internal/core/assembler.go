package core

import (
	"fmt"
	"strings"

	"github.com/murshid-ai/murshid/internal/store"
)

// AssembleContext formats retrieval results into the context block injected
// into the system prompt, plus a deduplicated source list for the reply
// metadata. Two chunks from the same titled source collapse to one source
// entry, though both chunks stay in the context for grounding. An empty
// result set yields an empty context and no sources — the orchestrator treats
// that as "no knowledge available", not an error.
func AssembleContext(results []Result) (string, []store.Source) {
	if len(results) == 0 {
		return "", nil
	}

	var blocks []string
	var sources []store.Source
	seen := make(map[string]bool)
	for i, res := range results {
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s]\n%s", i+1, res.Chunk.Title, res.Chunk.Content))
		if !seen[res.Chunk.Title] {
			seen[res.Chunk.Title] = true
			sources = append(sources, store.Source{
				Title:  res.Chunk.Title,
				URL:    res.Chunk.SourceURL,
				ItemID: res.Chunk.ItemID,
			})
		}
	}
	return strings.Join(blocks, "\n\n"), sources
}
