package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/video"
	"github.com/mindsift/mindsift/internal/service/captions"
)

// videoCmd represents the video command
var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Manage registered YouTube videos",
	Long:  `Register YouTube videos and inspect their ingestion state.`,
}

// videoAddCmd registers a video by URL or ID
var videoAddCmd = &cobra.Command{
	Use:   "add [URL_OR_VIDEO_ID]",
	Short: "Register a YouTube video",
	Long:  `Register a YouTube video by URL or video ID. Title and channel are looked up automatically.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		videoID, err := captions.ExtractVideoID(args[0])
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

		captionsClient := captions.NewClient(cfg.Ingest.CaptionLanguage)
		meta, err := captionsClient.FetchMetadata(ctx, videoID)
		if err != nil {
			return fmt.Errorf("failed to look up video metadata: %w", err)
		}

		v := &model.Video{
			ID:        videoID,
			ChannelID: channelIDFromAuthorURL(meta.AuthorURL),
			Title:     meta.Title,
			URL:       "https://www.youtube.com/watch?v=" + videoID,
		}

		videoRepo := video.NewRepository(dbPool)
		if err := videoRepo.Create(ctx, v); err != nil {
			return fmt.Errorf("failed to save video: %w", err)
		}

		result, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		fmt.Printf("Video registered:\n%s\n", string(result))
		return nil
	},
}

// videoListCmd lists registered videos
var videoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered videos",
	Long:  `List registered videos, optionally filtered to a single channel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		channelID, _ := cmd.Flags().GetString("channel")

		videoRepo := video.NewRepository(dbPool)

		var videos []*model.Video
		if channelID != "" {
			videos, err = videoRepo.GetByChannelID(ctx, channelID, limit, offset)
		} else {
			videos, err = videoRepo.List(ctx, limit, offset)
		}
		if err != nil {
			return fmt.Errorf("failed to list videos: %w", err)
		}

		if len(videos) == 0 {
			fmt.Println("No videos found.")
			return nil
		}

		result, err := json.MarshalIndent(videos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		fmt.Printf("Found %d video(s):\n%s\n", len(videos), string(result))
		return nil
	},
}

// channelIDFromAuthorURL extracts a stable channel identifier from an
// oEmbed author URL like https://www.youtube.com/@handle.
func channelIDFromAuthorURL(authorURL string) string {
	trimmed := strings.TrimRight(authorURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func init() {
	videoListCmd.Flags().Int("limit", 20, "Maximum number of videos to list")
	videoListCmd.Flags().Int("offset", 0, "Number of videos to skip")
	videoListCmd.Flags().String("channel", "", "Only list videos of this channel")

	videoCmd.AddCommand(videoAddCmd)
	videoCmd.AddCommand(videoListCmd)
	rootCmd.AddCommand(videoCmd)
}
