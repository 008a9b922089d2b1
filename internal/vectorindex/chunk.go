package vectorindex

import "strings"

// Default chunking parameters for filing text.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping windows of roughly size characters.
// Boundaries snap back to the nearest whitespace so words stay intact.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		// Snap the cut to a whitespace boundary when one is nearby.
		cut := end
		for cut > start+size/2 && !isSpace(text[cut-1]) {
			cut--
		}
		if cut <= start+size/2 {
			cut = end
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
