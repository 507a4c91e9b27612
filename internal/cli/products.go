package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
)

// ProductsOptions holds flags for the products command.
type ProductsOptions struct {
	*RootOptions
	Category string
}

// ProductView is the printed form of a product.
type ProductView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	Category string `json:"category,omitempty"`
}

// ProductsResult is the JSON payload of the products command.
type ProductsResult struct {
	CurrentCategory string        `json:"current_category,omitempty"`
	Products        []ProductView `json:"products"`
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the hydrated catalog",
		Long: `List products after hydration, optionally narrowed to one category.

Examples:
  shopsync products
  shopsync products --category c1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProducts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only list products in this category")

	return cmd
}

func runProducts(opts *ProductsOptions, cmd *cobra.Command) (err error) {
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
	if opts.Category != "" {
		sess.Container.Dispatch(engine.SetCurrentCategory(opts.Category))
	}

	state := sess.Container.State()
	result := ProductsResult{
		CurrentCategory: state.CurrentCategory,
		Products:        productViews(state.FilteredProducts()),
	}

	if out.JSON() {
		return out.SuccessWithSession(sess.Orchestrator.Session(), result)
	}

	w := out.Writer
	if len(result.Products) == 0 {
		fmt.Fprintln(w, "No products.")
		return nil
	}
	headStyle.Fprintf(w, "%d %s\n", len(result.Products), domain.Pluralize("product", len(result.Products)))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range result.Products {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d in stock\n", p.ID, p.Name, p.Price, p.Stock)
	}
	return tw.Flush()
}

func productViews(products []domain.Product) []ProductView {
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		out = append(out, ProductView{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price.StringFixed(2),
			Stock:    p.Quantity,
			Category: string(p.Category),
		})
	}
	return out
}
