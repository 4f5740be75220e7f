package kb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	embedBatchSize   = 64
	embedConcurrency = 4
)

type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Limits       CrawlLimits
}

type Embedder interface {
	Configured() bool
	Model() string
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Ingest crawls the seed URLs, chunks the kept pages, embeds every chunk in
// fixed-size batches, and returns a complete index snapshot. The caller
// persists and publishes the snapshot.
func Ingest(ctx context.Context, crawler *Crawler, embedder Embedder, seeds []string, opts IngestOptions, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil || !embedder.Configured() {
		return nil, fmt.Errorf("embedding client is not configured")
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed url is required")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
	}

	pages, err := crawler.Crawl(ctx, seeds, opts.Limits)
	if err != nil {
		return nil, err
	}
	logger.Info("crawl complete", "pages", len(pages))

	var chunks []Chunk
	for _, page := range pages {
		for _, text := range SplitText(page.Text, chunkSize, overlap) {
			chunks = append(chunks, Chunk{
				ID:    uuid.NewString(),
				URL:   page.URL,
				Title: page.Title,
				Text:  text,
			})
		}
	}
	logger.Info("chunking complete", "chunks", len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(embedConcurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		group.Go(func() error {
			inputs := make([]string, len(batch))
			for i, chunk := range batch {
				inputs[i] = chunk.Text
			}
			vectors, err := embedder.Embed(groupCtx, inputs)
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed batch returned %d vectors for %d chunks", len(vectors), len(batch))
			}
			for i := range batch {
				normalizeVector(vectors[i])
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Index{
		CreatedAt:      time.Now().UTC(),
		EmbeddingModel: embedder.Model(),
		ChunkSize:      chunkSize,
		ChunkOverlap:   overlap,
		Sources:        append([]string(nil), seeds...),
		Chunks:         chunks,
	}, nil
}
