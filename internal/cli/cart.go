package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
)

// LineView is the printed form of a cart line.
type LineView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Qty      int    `json:"qty"`
	Price    string `json:"price"`
	Subtotal string `json:"subtotal"`
}

// CartView is the JSON payload of every cart subcommand.
type CartView struct {
	Lines []LineView `json:"lines"`
	Count int        `json:"count"`
	Total string     `json:"total"`
}

// NewCartCommand creates the cart command and its subcommands.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or edit the persisted cart",
		Long: `Show or edit the cart. The cart is restored from the cache, edited in
memory, and every change is mirrored back to the cache before exit.

Examples:
  shopsync cart show
  shopsync cart add p1 --qty 2
  shopsync cart set p1 5
  shopsync cart remove p1
  shopsync cart clear`,
	}

	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartSetCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))

	return cmd
}

func newCartShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(opts, cmd, func(domain.State) (engine.Action, bool, error) {
				return engine.Action{}, false, nil
			})
		},
	}
}

func newCartAddCommand(opts *RootOptions) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if qty < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("--qty must be at least 1, got %d", qty))
			}
			id := args[0]
			return runCart(opts, cmd, func(s domain.State) (engine.Action, bool, error) {
				if p, ok := s.Product(id); ok {
					return engine.AddToCart(p, qty), true, nil
				}
				// Offline with an empty catalog, a restored line can still grow.
				if l, ok := s.CartItem(id); ok {
					return engine.AddToCart(l.Product, qty), true, nil
				}
				return engine.Action{}, false, NewExitError(ExitCommandError, fmt.Sprintf("product %q not found", id))
			})
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity to add")
	return cmd
}

func newCartSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <qty>",
		Short: "Set the quantity of a cart line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("quantity must be a non-negative integer, got %q", args[1]))
			}
			return runCart(opts, cmd, func(s domain.State) (engine.Action, bool, error) {
				if _, ok := s.CartItem(id); !ok {
					return engine.Action{}, false, notInCart(id)
				}
				return engine.UpdateCartQuantity(id, qty), true, nil
			})
		},
	}
}

func newCartRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return runCart(opts, cmd, func(s domain.State) (engine.Action, bool, error) {
				if _, ok := s.CartItem(id); !ok {
					return engine.Action{}, false, notInCart(id)
				}
				return engine.RemoveFromCart(id), true, nil
			})
		},
	}
}

func newCartClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(opts, cmd, func(domain.State) (engine.Action, bool, error) {
				return engine.ClearCart(), true, nil
			})
		},
	}
}

func notInCart(id string) error {
	return NewExitError(ExitCommandError, fmt.Sprintf("product %q is not in the cart", id))
}

// cartEdit picks the action to dispatch against the hydrated state.
// ok=false dispatches nothing.
type cartEdit func(domain.State) (a engine.Action, ok bool, err error)

func runCart(opts *RootOptions, cmd *cobra.Command, edit cartEdit) (err error) {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sess, err := openSession(opts)
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

	a, ok, err := edit(sess.Container.State())
	if err != nil {
		return err
	}
	if ok {
		out.VerboseLog("dispatch %s", a)
		sess.Container.Dispatch(a)
	}

	view := newCartView(sess.Container.State())
	if out.JSON() {
		return out.SuccessWithSession(sess.Orchestrator.Session(), view)
	}
	return writeCartText(out.Writer, view)
}

func newCartView(s domain.State) CartView {
	lines := make([]LineView, 0, len(s.Cart))
	for _, l := range s.Cart {
		lines = append(lines, LineView{
			ID:       l.ID,
			Name:     l.Name,
			Qty:      l.PurchaseQuantity,
			Price:    l.Price.StringFixed(2),
			Subtotal: l.Subtotal().StringFixed(2),
		})
	}
	return CartView{
		Lines: lines,
		Count: s.CartCount(),
		Total: s.CartTotal().StringFixed(2),
	}
}

func writeCartText(w io.Writer, view CartView) error {
	if len(view.Lines) == 0 {
		fmt.Fprintln(w, "Cart is empty.")
		return nil
	}
	headStyle.Fprintf(w, "Cart (%d %s)\n", view.Count, domain.Pluralize("item", view.Count))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, l := range view.Lines {
		fmt.Fprintf(tw, "  %s\t%s\tx%d\t%s\n", l.ID, l.Name, l.Qty, l.Subtotal)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	okStyle.Fprintf(w, "  Total: %s\n", view.Total)
	return nil
}
