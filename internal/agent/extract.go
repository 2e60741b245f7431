package agent

import (
	"encoding/json"

	"github.com/saianfordx/vellum/internal/tools/imagery"
	"github.com/saianfordx/vellum/internal/tools/retrieval"
	"github.com/saianfordx/vellum/pkg/types"
)

// extract scans the finished conversation for tool results and attaches
// their artifacts to the answer: every distinct retrieved chunk becomes a
// source entry, and the most recent generated image becomes the answer
// image. Results that are not parseable tool output (error text, foreign
// tools) are skipped.
func extract(msgs []types.Message, ans *Answer) {
	idToName := make(map[string]string)
	for _, m := range msgs {
		for _, call := range m.ToolCalls {
			idToName[call.ID] = call.Name
		}
	}

	seen := make(map[chunkKey]struct{})
	for _, m := range msgs {
		if m.Role != types.RoleTool {
			continue
		}
		name := m.Name
		if name == "" {
			name = idToName[m.ToolCallID]
		}
		switch name {
		case retrieval.ToolRetrieveDocuments, retrieval.ToolSearchBySource:
			collectSources(m.Content, seen, ans)
		case imagery.ToolGenerateImage:
			if img := parseImage(m.Content); img != nil {
				ans.Image = img
			}
		}
	}
}

// chunkKey identifies one retrieved chunk for de-duplication across multiple
// tool calls in the same turn.
type chunkKey struct {
	documentID string
	chunkIndex int
}

func collectSources(content string, seen map[chunkKey]struct{}, ans *Answer) {
	var res retrieval.Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return
	}
	for _, doc := range res.Documents {
		key := chunkKey{documentID: doc.DocumentID, chunkIndex: doc.ChunkIndex}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ans.Sources = append(ans.Sources, Source{
			DocumentID:    doc.DocumentID,
			Source:        doc.Source,
			DocumentTitle: doc.DocumentTitle,
			PageNumber:    doc.PageNumber,
			ChunkIndex:    doc.ChunkIndex,
			Score:         doc.Score,
		})
	}
}

func parseImage(content string) *Image {
	var res imagery.Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil
	}
	if res.ImageURL == "" {
		return nil
	}
	return &Image{
		URL:           res.ImageURL,
		Prompt:        res.OriginalPrompt,
		RevisedPrompt: res.RevisedPrompt,
	}
}
