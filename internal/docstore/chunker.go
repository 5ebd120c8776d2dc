// Package docstore handles uploaded reference documents: chunking their text
// along paragraph boundaries, embedding each chunk and serving scoped
// similarity searches over them.
package docstore

import "strings"

// DefaultMaxChunkChars is the default chunk size budget.
const DefaultMaxChunkChars = 1200

// ChunkParagraphs splits text into chunks of at most maxChars characters
// without breaking paragraphs. Paragraphs are separated by blank lines;
// consecutive paragraphs are greedily packed into a chunk, rejoined with a
// blank line. A single paragraph longer than maxChars becomes its own
// oversized chunk rather than being split mid-sentence.
func ChunkParagraphs(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if len(paragraphs) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var (
		chunks     []string
		current    []string
		currentLen int
	)
	for _, para := range paragraphs {
		paraLen := len(para)
		if len(current) > 0 && currentLen+paraLen+2 > maxChars {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = []string{para}
			currentLen = paraLen
			continue
		}
		current = append(current, para)
		if currentLen == 0 {
			currentLen = paraLen
		} else {
			currentLen += paraLen + 2
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}
