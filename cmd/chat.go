package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/repository/chunk"
	"github.com/mindsift/mindsift/internal/repository/session"
	"github.com/mindsift/mindsift/internal/repository/video"
	"github.com/mindsift/mindsift/internal/service/chat"
	"github.com/mindsift/mindsift/internal/service/openai"
	"github.com/mindsift/mindsift/internal/service/search"
)

// chatCmd starts an interactive conversation over ingested transcripts
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat about a video or channel",
	Long: `Start an interactive conversation grounded in ingested transcripts.
Answers cite the moments in the video they are based on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

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

		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel)
		searchSvc := search.NewService(client, video.NewRepository(dbPool), chunk.NewRepository(dbPool), cfg.Search)
		chatSvc := chat.NewService(client, searchSvc, session.NewRepository(dbPool), cfg.OpenAI, slog.Default())

		sess, err := chatSvc.CreateSession(ctx, scope, targetID)
		if err != nil {
			return fmt.Errorf("failed to create chat session: %w", err)
		}

		fmt.Printf("Chat session %s (%s %s). Type your question, or 'exit' to quit.\n\n", sess.ID, scope, targetID)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			if question == "exit" || question == "quit" {
				break
			}

			askCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			msg, err := chatSvc.Ask(askCtx, sess.ID, question)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}

			fmt.Printf("\n%s\n", msg.Content)
			for _, c := range msg.Citations {
				if c.Text == "" {
					continue
				}
				fmt.Printf("  [%s] %s\n", c.Timestamp, truncate(c.Text, 120))
			}
			fmt.Println()
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().String("video", "", "Chat about a single video")
	chatCmd.Flags().String("channel", "", "Chat about a channel's videos")
	rootCmd.AddCommand(chatCmd)
}
