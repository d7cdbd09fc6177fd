package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/internal/adapter/outbound/sqlite"
	"github.com/metamcp/metamcp/internal/domain/upstream"
)

var resetDBPath string

var resetCmd = &cobra.Command{
	Use:   "reset-upstream <id>",
	Short: "Clear an upstream server's ERROR status",
	Long: `reset-upstream clears the terminal ERROR status the error tracker set on
an upstream server after too many consecutive crashes, allowing the pool
to dial it again on its next use.

With no --db, there is no persistent store for this command to reach —
it only makes sense against a SQLite-backed deployment, so --db is
required.

Example:
  metamcp reset-upstream srv-1 --db metamcp.db`,
	Args: cobra.ExactArgs(1),
	RunE: runResetUpstream,
}

func init() {
	resetCmd.Flags().StringVar(&resetDBPath, "db", "", "SQLite file the running server persists upstream state in (required)")
	rootCmd.AddCommand(resetCmd)
}

func runResetUpstream(cmd *cobra.Command, args []string) error {
	if resetDBPath == "" {
		return errors.New("--db is required: reset-upstream operates on the persistent upstream store")
	}

	ctx := context.Background()
	db, err := sqlite.Open(ctx, resetDBPath)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()

	store := sqlite.NewUpstreamStore(db)
	id := args[0]

	srv, err := store.Get(ctx, id)
	if errors.Is(err, upstream.ErrNotFound) {
		return fmt.Errorf("upstream %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("look up upstream %q: %w", id, err)
	}

	if !srv.IsError() {
		fmt.Printf("upstream %q (%s) is not in ERROR status, nothing to do\n", id, srv.Name)
		return nil
	}

	if err := store.SetErrorStatus(ctx, id, upstream.StatusNone); err != nil {
		return fmt.Errorf("reset upstream %q: %w", id, err)
	}

	fmt.Printf("upstream %q (%s) reset to NONE\n", id, srv.Name)
	return nil
}
