package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/tgsearch/internal/session"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := session.NewStore(cfg.DataDir)
		list, err := store.List()
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		active, err := store.ActiveID()
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTIVE\tCONNECTED\tUSER\tUPDATED")
		for _, s := range list {
			user := "-"
			if s.Me != nil && s.Me.Username != "" {
				user = s.Me.Username
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n",
				s.ID,
				s.ID == active,
				s.Connected,
				user,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all sessions and start a fresh one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := session.NewStore(cfg.DataDir).Cleanup()
		if err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "All sessions cleared. New active session: %s\n", id)
		return nil
	},
}
