package kb

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"
)

// Failure reasons surfaced by Search. An empty result list is a successful
// outcome, not one of these.
const (
	ReasonNotReady      = "kb_not_ready"
	ReasonEmptyQuery    = "empty_query"
	ReasonMissingAPIKey = "missing_api_key"
	ReasonEmbedFailed   = "embed_failed"
)

const (
	DefaultTopK     = 4
	DefaultMinScore = 0.35
	snippetMaxChars = 400
)

type Match struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type SearchResult struct {
	OK      bool    `json:"ok"`
	Reason  string  `json:"reason,omitempty"`
	Matches []Match `json:"results"`
}

// Search embeds the query and scores every chunk in the snapshot by dot
// product, which equals cosine similarity because both sides are unit
// vectors. Results at or above minScore come back sorted descending, ties
// breaking by original chunk order.
func Search(ctx context.Context, idx *Index, embedder Embedder, query string, topK int, minScore float64) SearchResult {
	if idx == nil || len(idx.Chunks) == 0 {
		return SearchResult{Reason: ReasonNotReady}
	}
	if strings.TrimSpace(query) == "" {
		return SearchResult{Reason: ReasonEmptyQuery}
	}
	if embedder == nil || !embedder.Configured() {
		return SearchResult{Reason: ReasonMissingAPIKey}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := embedder.Embed(ctx, []string{strings.TrimSpace(query)})
	if err != nil || len(vectors) != 1 {
		return SearchResult{Reason: ReasonEmbedFailed}
	}
	queryVector := vectors[0]
	normalizeVector(queryVector)

	type scored struct {
		chunk Chunk
		score float64
	}
	var candidates []scored
	for _, chunk := range idx.Chunks {
		score := dotProduct(queryVector, chunk.Embedding)
		if score >= minScore {
			candidates = append(candidates, scored{chunk: chunk, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		matches = append(matches, Match{
			Title:   candidate.chunk.Title,
			URL:     candidate.chunk.URL,
			Snippet: truncateSnippet(candidate.chunk.Text, snippetMaxChars),
			Score:   candidate.score,
		})
	}
	return SearchResult{OK: true, Matches: matches}
}

func truncateSnippet(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxChars])) + "…"
}
