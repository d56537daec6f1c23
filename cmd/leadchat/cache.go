package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	var asJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st := a.store.Stats(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Total:\t%d\n", st.Total)
			fmt.Fprintf(w, "Active:\t%d\n", st.Active)
			fmt.Fprintf(w, "Expired:\t%d\n", st.Expired)
			fmt.Fprintf(w, "Size:\t%s\n", humanize.Bytes(uint64(st.ByteSize)))
			fmt.Fprintf(w, "Duration:\t%s\n", st.Duration)
			fmt.Fprintf(w, "Location:\t%s\n", st.Location)
			return w.Flush()
		},
	}
	statsCmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry and the persisted snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries.\n", n)
			return nil
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove only expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			// Opening the store already pruned once.
			n := a.store.StartupPruned() + a.store.Prune(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries, %d remain.\n", n, a.store.Len())
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, pruneCmd)
	return cmd
}
