package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/chunk"
	"github.com/mindsift/mindsift/internal/repository/video"
	"github.com/mindsift/mindsift/internal/service/chat"
	"github.com/mindsift/mindsift/internal/service/openai"
	"github.com/mindsift/mindsift/internal/service/search"
)

// searchCmd retrieves ranked transcript chunks for a query
var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search ingested transcripts",
	Long: `Search the transcript chunks of a video or a whole channel and print
the best matches with their timestamps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		scope, targetID, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		dbPool, err := config.NewDatabasePool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbPool.Close()

		svc := search.NewService(
			openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel),
			video.NewRepository(dbPool),
			chunk.NewRepository(dbPool),
			cfg.Search,
		)

		results, err := svc.Search(ctx, query, scope, targetID)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No matching transcript chunks found.")
			return nil
		}

		for i, c := range results {
			fmt.Printf("%2d. [%s - %s] %s (score %.3f)\n    %s\n",
				i+1,
				chat.FormatTimestamp(c.StartTime),
				chat.FormatTimestamp(c.EndTime),
				c.VideoTitle,
				c.Score,
				truncate(c.Text, 200))
		}
		return nil
	},
}

// scopeFromFlags reads the --video / --channel pair shared by search and chat
func scopeFromFlags(cmd *cobra.Command) (scope, targetID string, err error) {
	videoID, _ := cmd.Flags().GetString("video")
	channelID, _ := cmd.Flags().GetString("channel")

	switch {
	case videoID != "" && channelID != "":
		return "", "", fmt.Errorf("--video and --channel are mutually exclusive")
	case videoID != "":
		return model.ScopeVideo, videoID, nil
	case channelID != "":
		return model.ScopeChannel, channelID, nil
	default:
		return "", "", fmt.Errorf("either --video or --channel is required")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func init() {
	searchCmd.Flags().String("video", "", "Search within a single video")
	searchCmd.Flags().String("channel", "", "Search across a channel's videos")
	rootCmd.AddCommand(searchCmd)
}
