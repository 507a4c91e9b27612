package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/syncer"
)

// HydrateOptions holds flags for the hydrate command.
type HydrateOptions struct {
	*RootOptions
	Metrics bool
}

// HydrateResult is the JSON payload of the hydrate command.
type HydrateResult struct {
	Domains []syncer.DomainStatus `json:"domains"`
	Metrics map[string]float64    `json:"metrics,omitempty"`
}

// NewHydrateCommand creates the hydrate command.
func NewHydrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HydrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Hydrate every domain and report where its data came from",
		Long: `Mount a session against the configured remote and cache, wait for
products, categories and the cart to settle, and print how each was hydrated.

A domain whose remote fetch failed is restored from the cache. Remote results
are written through to the cache before the command exits.

Examples:
  shopsync hydrate
  shopsync hydrate --config shopsync.yaml --metrics
  shopsync hydrate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHydrate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "include session counters")

	return cmd
}

func runHydrate(opts *HydrateOptions, cmd *cobra.Command) (err error) {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to flush cache", cerr)
		}
	}()

	if err := sess.Start(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "hydration interrupted", err)
	}
	// Flush write-through before reporting so metrics include it.
	if err := sess.Orchestrator.Wait(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "cache writes interrupted", err)
	}

	result := HydrateResult{Domains: sess.Orchestrator.Status()}
	if opts.Metrics {
		summary, err := metricSummary(sess.Registry)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
		result.Metrics = summary
	}

	if out.JSON() {
		return out.SuccessWithSession(sess.Orchestrator.Session(), result)
	}
	writeHydrateText(out.Writer, sess.Orchestrator.Session(), result)
	return nil
}

func writeHydrateText(w io.Writer, session string, result HydrateResult) {
	headStyle.Fprintf(w, "Session %s\n", session)
	for _, st := range result.Domains {
		fmt.Fprintf(w, "  %s %-10s %-8s %-6s %d\n",
			statusMark(st), st.Domain, st.Phase, st.Source, st.Records)
		if st.Error != "" {
			dimStyle.Fprintf(w, "      %s\n", st.Error)
		}
	}

	if len(result.Metrics) == 0 {
		return
	}
	keys := make([]string, 0, len(result.Metrics))
	for k := range result.Metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	headStyle.Fprintln(w, "Metrics")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %g\n", k, result.Metrics[k])
	}
}

func statusMark(st syncer.DomainStatus) string {
	switch {
	// The cart never has a remote, so a cache restore is its success path.
	case st.Phase == syncer.PhaseResolved,
		st.Domain == syncer.DomainCart && st.Source == syncer.SourceCache:
		return okStyle.Sprint("✓")
	case st.Source == syncer.SourceCache:
		return warnStyle.Sprint("!")
	default:
		return failStyle.Sprint("✗")
	}
}
