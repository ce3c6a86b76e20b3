package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/types"
)

var (
	searchChat   string
	searchVector bool
	searchDocs   bool
	searchLimit  int
	searchOffset int
)

func init() {
	rootCmd.AddCommand(searchCmd, migrateCmd)
	searchCmd.Flags().StringVar(&searchChat, "chat", "", "restrict to one chat id")
	searchCmd.Flags().BoolVar(&searchVector, "vector", false, "rank by embedding similarity")
	searchCmd.Flags().BoolVar(&searchDocs, "documents", false, "search derived documents (token and summary vector matches)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", types.DefaultPageLimit, "maximum results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "results to skip")
}

// searchCmd runs an in-process core, the same services a websocket client
// talks to, and issues one search through its bus.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search archived messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogging(cfg)

		deps, err := buildDeps(cfg, config.NewMemoryProvider(cfg), logger)
		if err != nil {
			return err
		}
		defer deps.Gateway.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		if err := deps.Gateway.Init(ctx); err != nil {
			return err
		}

		page := &types.Pagination{Limit: searchLimit, Offset: searchOffset}
		query := strings.Join(args, " ")
		if searchDocs {
			docs, err := deps.RetrieveDocuments(ctx, query, page)
			if err != nil {
				return err
			}
			return printDocuments(cmd, docs)
		}

		b := bus.New("cli", logger)
		c := core.New(ctx, deps, b)
		defer c.Close()

		reply := b.Next(bus.NameStorageSearchMessagesData)
		b.Emit(bus.StorageSearchMessages{
			ChatID:     searchChat,
			Content:    query,
			UseVector:  searchVector,
			Pagination: page,
		})
		// Emit runs the handler synchronously, so a missing reply means the
		// search failed and was logged.
		waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
		defer waitCancel()
		ev, err := reply.Wait(waitCtx)
		if err != nil {
			return fmt.Errorf("search failed, see log: %w", err)
		}
		results := ev.(bus.StorageSearchMessagesData).Messages
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tCHAT\tFROM\tDATE\tCONTENT")
		for _, m := range results {
			fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\n",
				m.CombinedScore,
				m.ChatID,
				m.FromName,
				time.UnixMilli(m.PlatformTimestamp).Format("2006-01-02 15:04"),
				preview(m.Content, 80),
			)
		}
		return w.Flush()
	},
}

// printDocuments lists retrieval hits. Token matches come first, then
// vector matches, so one document may be listed twice.
func printDocuments(cmd *cobra.Command, docs []*types.Document) error {
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tMESSAGE\tDATE\tSUMMARY")
	for _, d := range docs {
		text := d.Summary
		if text == "" {
			text = d.ProcessedContent
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.ID,
			d.MessageID,
			time.UnixMilli(d.CreatedAt).Format("2006-01-02 15:04"),
			preview(text, 80),
		)
	}
	return w.Flush()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogging(cfg)

		deps, err := buildDeps(cfg, config.NewMemoryProvider(cfg), logger)
		if err != nil {
			return err
		}
		defer deps.Gateway.Close()

		if err := deps.Gateway.Init(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date.\n", deps.Gateway.BackendName())
		return nil
	},
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
