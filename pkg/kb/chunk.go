package kb

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// SplitText cuts text into overlapping chunks of size runes, stepping by
// size-overlap. The final chunk may be shorter than size. Once a chunk
// reaches the end of the text no further tail is emitted: such a tail would
// be wholly contained in the chunk before it.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
