package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonara-ai/sonara/pkg/gateway/config"
	"github.com/sonara-ai/sonara/pkg/kb"
	"github.com/sonara-ai/sonara/pkg/kb/embed"
)

var (
	ingestSeeds        []string
	ingestIndexPath    string
	ingestMaxPages     int
	ingestChunkSize    int
	ingestChunkOverlap int
	ingestAllowedHosts []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Crawl seed URLs and rebuild the knowledge index",
	Long: `Crawl the given seed URLs breadth-first, split the kept pages into
overlapping chunks, embed every chunk, and atomically replace the on-disk
index snapshot. The gateway picks the new snapshot up on its next restart
or reload.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringSliceVar(&ingestSeeds, "seed", nil, "Seed URL to crawl (repeatable)")
	ingestCmd.Flags().StringVar(&ingestIndexPath, "index", "", "Index output path (default: SONARA_KB_INDEX_PATH)")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 0, "Page fetch budget (default: SONARA_KB_MAX_PAGES)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Chunk size in characters (default: SONARA_KB_CHUNK_SIZE)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", -1, "Chunk overlap in characters (default: SONARA_KB_CHUNK_OVERLAP)")
	ingestCmd.Flags().StringSliceVar(&ingestAllowedHosts, "allow-host", nil, "Extra host allowed during the crawl (repeatable)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	seeds := append([]string(nil), ingestSeeds...)
	for _, arg := range args {
		if strings.TrimSpace(arg) != "" {
			seeds = append(seeds, arg)
		}
	}
	if len(seeds) == 0 {
		return fmt.Errorf("at least one seed url is required (--seed or positional)")
	}

	indexPath := cfg.KBIndexPath
	if strings.TrimSpace(ingestIndexPath) != "" {
		indexPath = ingestIndexPath
	}
	maxPages := cfg.KBMaxPages
	if ingestMaxPages > 0 {
		maxPages = ingestMaxPages
	}
	chunkSize := cfg.KBChunkSize
	if ingestChunkSize > 0 {
		chunkSize = ingestChunkSize
	}
	chunkOverlap := cfg.KBChunkOverlap
	if ingestChunkOverlap >= 0 {
		chunkOverlap = ingestChunkOverlap
	}
	allowedHosts := append(append([]string(nil), cfg.KBAllowedHosts...), ingestAllowedHosts...)

	crawler := kb.NewCrawler(logger)
	embedder := embed.NewClient(cfg.OpenAIAPIKey, embed.WithModel(cfg.EmbedModel))

	idx, err := kb.Ingest(cmd.Context(), crawler, embedder, seeds, kb.IngestOptions{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Limits: kb.CrawlLimits{
			MaxPages:     maxPages,
			AllowedHosts: allowedHosts,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if err := kb.SaveIndex(indexPath, idx); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	logger.Info("knowledge index written",
		"path", indexPath,
		"seeds", len(idx.Sources),
		"chunks", len(idx.Chunks),
		"model", idx.EmbeddingModel,
	)
	return nil
}
