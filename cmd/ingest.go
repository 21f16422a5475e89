package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/repository/chunk"
	"github.com/mindsift/mindsift/internal/repository/lease"
	"github.com/mindsift/mindsift/internal/repository/video"
	"github.com/mindsift/mindsift/internal/service/captions"
	"github.com/mindsift/mindsift/internal/service/ingest"
	"github.com/mindsift/mindsift/internal/service/openai"
)

// ingestCmd runs the transcript ingestion pipeline for a video
var ingestCmd = &cobra.Command{
	Use:   "ingest [VIDEO_ID]",
	Short: "Ingest a video's transcript",
	Long: `Fetch a registered video's transcript, split it into chunks, embed
them and store everything for retrieval. Running it again reprocesses the
video from scratch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoID := args[0]

		// Transcripts can be long and embedding is rate limited
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		dbPool, err := config.NewDatabasePool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbPool.Close()

		svc := ingest.NewService(
			captions.NewClient(cfg.Ingest.CaptionLanguage),
			openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel),
			video.NewRepository(dbPool),
			chunk.NewRepository(dbPool),
			lease.NewManager(dbPool),
			cfg.Ingest,
			slog.Default(),
		)

		if backfill, _ := cmd.Flags().GetBool("backfill"); backfill {
			limit, _ := cmd.Flags().GetInt("limit")
			n, err := svc.BackfillEmbeddings(ctx, videoID, limit)
			if err != nil {
				return fmt.Errorf("failed to backfill embeddings: %w", err)
			}
			fmt.Printf("Backfilled %d embedding(s) for video %s\n", n, videoID)
			return nil
		}

		result, err := svc.Ingest(ctx, videoID)
		if err != nil {
			return fmt.Errorf("failed to ingest video: %w", err)
		}

		fmt.Printf("Ingested video %s: %d chunk(s), %d embedded",
			result.VideoID, result.ChunkCount, result.EmbeddedCount)
		if result.FailedEmbeds > 0 {
			fmt.Printf(" (%d failed, run again with --backfill)", result.FailedEmbeds)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("backfill", false, "Only embed chunks that are missing embeddings")
	ingestCmd.Flags().Int("limit", 100, "Maximum number of chunks to backfill")
	rootCmd.AddCommand(ingestCmd)
}
