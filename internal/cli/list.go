package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
	All      bool // include soft-removed records
	Commits  bool // print the commit log instead of records
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list --db <file.db>",
		Short: "Print the records of a store",
		Long: `Print the records of a SQLite record store in creation order.

Soft-removed records are hidden unless --all is given. --commits prints
the commit log instead.

Examples:
  gridedit list --db ./records.db
  gridedit list --db ./records.db --all --format json
  gridedit list --db ./records.db --commits`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include soft-removed records")
	cmd.Flags().BoolVar(&opts.Commits, "commits", false, "print the commit log")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database, store.WithLogger(opts.logger(cmd.ErrOrStderr())))
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Commits {
		commits, err := st.Commits(ctx)
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read commit log", err)
		}
		if f.JSON() {
			return f.Success(commits)
		}
		for _, c := range commits {
			fmt.Fprintf(f.Writer, "%d\t%s\t%s\t%s\n", c.Seq, c.Operation, c.Key, c.Fingerprint)
		}
		return nil
	}

	entries, err := st.ListAll(ctx)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list records", err)
	}
	shown := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Deleted && !opts.All {
			continue
		}
		shown = append(shown, e)
	}
	f.VerboseLog("%d record(s), %d shown", len(entries), len(shown))

	if f.JSON() {
		return f.Success(shown)
	}
	if len(shown) == 0 {
		fmt.Fprintln(f.Writer, "No records.")
		return nil
	}
	for _, e := range shown {
		data, err := record.MarshalCanonical(e.Data)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode record", err)
		}
		marker := ""
		if e.Deleted {
			marker = "\t(deleted)"
		}
		fmt.Fprintf(f.Writer, "%s\t%s%s\n", e.Key, data, marker)
	}
	return nil
}
