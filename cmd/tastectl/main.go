// Command tastectl talks to the food-recommendation agent from a terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taste-agent/internal/app"
	"taste-agent/internal/config"
	"taste-agent/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tastectl",
		Short:        "Chat with the food recommendation agent",
		SilenceUsage: true,
	}
	root.AddCommand(newChatCmd(), newToolsCmd(), newJournalCmd())
	return root
}

// build loads configuration from the environment and logs to stderr so
// replies on stdout stay readable.
func build(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return app.Build(ctx, cfg, logger)
}

func newChatCmd() *cobra.Command {
	var userID, conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			return chatLoop(cmd.Context(), a, userID, conversationID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "resume an existing conversation")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func chatLoop(ctx context.Context, a *app.App, userID, conversationID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		res, err := a.Orchestrator.ProcessTurn(ctx, usecase.TurnInput{
			UserID:         userID,
			Message:        line,
			ConversationID: conversationID,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n> ", err)
			continue
		}
		conversationID = res.ConversationID
		for _, call := range res.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			fmt.Fprintf(out, "  [%s %s]\n", call.Name, args)
		}
		fmt.Fprintf(out, "%s\n(%s, %s)\n> ", res.FinalMessage, res.Outcome, conversationID)
	}
	return scanner.Err()
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog offered to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.Tools.Schemas())
		},
	}
}

func newJournalCmd() *cobra.Command {
	var userID, conversationID string
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print journaled messages of a conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			if a.Journal == nil {
				return errors.New("JOURNAL_TABLE is not set")
			}
			msgs, err := a.Journal.History(cmd.Context(), userID, conversationID, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-9s %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}
