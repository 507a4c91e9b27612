package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/metrics"
	"github.com/roach88/shopsync/internal/store"
)

// RecordView is one raw cache row.
type RecordView struct {
	ID      string `json:"id"`
	Digest  string `json:"digest"`
	Payload string `json:"payload"`
}

// DumpResult is the JSON payload of cache dump.
type DumpResult struct {
	Collection string       `json:"collection"`
	Records    []RecordView `json:"records"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the durable cache",
		Long: `Inspect or reset the durable cache without mounting a session.

Collections: products, categories, cart.

Examples:
  shopsync cache dump cart
  shopsync cache clear products
  shopsync cache clear --all`,
	}

	cmd.AddCommand(newCacheDumpCommand(rootOpts))
	cmd.AddCommand(newCacheClearCommand(rootOpts))

	return cmd
}

func newCacheDumpCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <collection>",
		Short: "Print every stored record of a collection, corrupt ones included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheDump(opts, cmd, args[0])
		},
	}
}

func newCacheClearCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [collection]",
		Short: "Delete every record of a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) == 0:
				return runCacheClear(opts, cmd, store.Collections)
			case !all && len(args) == 1:
				return runCacheClear(opts, cmd, args)
			default:
				return NewExitError(ExitCommandError, "name one collection or pass --all")
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every collection")
	return cmd
}

func openCacheOnly(opts *RootOptions) (*store.Cache, error) {
	return openCache(opts.Config, opts.Logger, metrics.New(prometheus.NewRegistry()))
}

func checkCollection(name string) error {
	if !store.ValidCollection(name) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown collection %q: must be one of %v", name, store.Collections))
	}
	return nil
}

func runCacheDump(opts *RootOptions, cmd *cobra.Command, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cache, err := openCacheOnly(opts)
	if err != nil {
		return err
	}
	defer cache.Close()

	rows, err := cache.Raw(cmd.Context(), collection)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache", err)
	}
	result := DumpResult{Collection: collection, Records: make([]RecordView, 0, len(rows))}
	for _, r := range rows {
		result.Records = append(result.Records, RecordView{ID: r.ID, Digest: r.Digest, Payload: string(r.Payload)})
	}

	if out.JSON() {
		return out.Success(result)
	}
	w := out.Writer
	headStyle.Fprintf(w, "%s: %d %s\n", collection, len(result.Records), domain.Pluralize("record", len(result.Records)))
	for _, r := range result.Records {
		digest := r.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(w, "  %s ", r.ID)
		dimStyle.Fprintf(w, "%s ", digest)
		fmt.Fprintln(w, r.Payload)
	}
	return nil
}

func runCacheClear(opts *RootOptions, cmd *cobra.Command, collections []string) error {
	for _, coll := range collections {
		if err := checkCollection(coll); err != nil {
			return err
		}
	}
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cache, err := openCacheOnly(opts)
	if err != nil {
		return err
	}
	defer cache.Close()

	for _, coll := range collections {
		if err := cache.Clear(cmd.Context(), coll); err != nil {
			return WrapExitError(ExitCommandError, "failed to clear cache", err)
		}
	}

	if out.JSON() {
		return out.Success(map[string][]string{"cleared": collections})
	}
	for _, coll := range collections {
		fmt.Fprintf(out.Writer, "%s cleared %s\n", okStyle.Sprint("✓"), coll)
	}
	return nil
}

